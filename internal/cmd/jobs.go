package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gobeacon/internal/observability"
	"github.com/3leaps/gobeacon/pkg/remote"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Submit and inspect processing jobs",
	Long: `Submit files to the job service and inspect job status.

These commands talk to the service directly and exit; use 'gobeacon watch'
for continuous tracking with lifecycle alerts.`,
}

var jobsSubmitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Submit a file for processing",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsSubmit,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show status for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job_id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <job_id>",
	Short: "Retry a failed job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRetry,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsSubmitCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsRetryCmd)

	jobsSubmitCmd.Flags().String("priority", "", "Processing priority hint")
	jobsSubmitCmd.Flags().String("webhook-url", "", "Completion webhook URL")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runJobsSubmit(cmd *cobra.Command, args []string) error {
	path := args[0]
	priority, _ := cmd.Flags().GetString("priority")
	webhookURL, _ := cmd.Flags().GetString("webhook-url")

	f, err := os.Open(path)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Cannot open file", err)
	}
	defer func() { _ = f.Close() }()

	client := newJobClient()
	result, err := client.Submit(cmd.Context(), filepath.Base(path), f, remote.SubmitOptions{
		Priority:   priority,
		WebhookURL: webhookURL,
	})
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Submit failed", err)
	}

	observability.CLILogger.Info("Job submitted",
		zap.String("job_id", result.JobID),
		zap.String("filename", filepath.Base(path)))
	fmt.Printf("job_id=%s\n", result.JobID)
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	jobID := strings.TrimSpace(args[0])
	if jobID == "" {
		return exitError(foundry.ExitInvalidArgument, "job_id is required", nil)
	}

	client := newJobClient()
	status, err := client.GetStatus(cmd.Context(), jobID)
	if err != nil {
		if remote.IsNotFound(err) {
			return exitError(foundry.ExitInvalidArgument, "Job not found", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Status fetch failed", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tFILENAME\tSTATUS\tPROGRESS\tCOMPLETED")
	progress := "-"
	if status.Progress != nil {
		progress = fmt.Sprintf("%d%%", *status.Progress)
	}
	completed := "-"
	if status.CompletedAt != nil {
		completed = status.CompletedAt.UTC().Format(time.RFC3339)
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		status.ID, status.Filename, status.Status, progress, completed)
	if status.ErrorMessage != "" {
		_, _ = fmt.Fprintf(w, "\nerror: %s\n", status.ErrorMessage)
	}
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	jobID := strings.TrimSpace(args[0])
	client := newJobClient()
	if err := client.Cancel(cmd.Context(), jobID); err != nil {
		if remote.IsNotFound(err) {
			return exitError(foundry.ExitInvalidArgument, "Job not found", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Cancel failed", err)
	}
	fmt.Printf("cancelled %s\n", jobID)
	return nil
}

func runJobsRetry(cmd *cobra.Command, args []string) error {
	jobID := strings.TrimSpace(args[0])
	client := newJobClient()
	if err := client.Retry(cmd.Context(), jobID); err != nil {
		if remote.IsNotFound(err) {
			return exitError(foundry.ExitInvalidArgument, "Job not found", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Retry failed", err)
	}
	fmt.Printf("retrying %s\n", jobID)
	return nil
}
