package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/gobeacon/pkg/remote"
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notify"},
	Short:   "Inspect and acknowledge notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications",
	RunE:  runNotificationsList,
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <id> [id...]",
	Short: "Mark notifications as read",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runNotificationsRead,
}

var notificationsReadAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification as read",
	RunE:  runNotificationsReadAll,
}

func init() {
	rootCmd.AddCommand(notificationsCmd)
	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsReadCmd)
	notificationsCmd.AddCommand(notificationsReadAllCmd)

	notificationsListCmd.Flags().Bool("json", false, "Output as JSON")
	notificationsListCmd.Flags().Bool("unread", false, "Only unread notifications")
	notificationsListCmd.Flags().Int("limit", 50, "Maximum notifications to fetch")
}

func runNotificationsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	unreadOnly, _ := cmd.Flags().GetBool("unread")
	limit, _ := cmd.Flags().GetInt("limit")

	client := newNotificationClient()
	list, err := client.GetNotifications(cmd.Context(), remote.ListOptions{
		UnreadOnly: unreadOnly,
		Limit:      limit,
	})
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Notification fetch failed", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(list.Notifications) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No notifications")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "ID\tTYPE\tTITLE\tREAD\tCREATED")
	for _, n := range list.Notifications {
		read := "no"
		if n.IsRead {
			read = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			shortID(n.ID), n.Type, n.Title, read, n.CreatedAt.UTC().Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "\n%d unread of %d total\n", list.UnreadCount, list.TotalCount)
	return nil
}

func runNotificationsRead(cmd *cobra.Command, args []string) error {
	client := newNotificationClient()

	if len(args) == 1 {
		if err := client.MarkRead(cmd.Context(), args[0]); err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Mark read failed", err)
		}
	} else if err := client.MarkManyRead(cmd.Context(), args); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Mark read failed", err)
	}

	fmt.Printf("marked %d read\n", len(args))
	return nil
}

func runNotificationsReadAll(cmd *cobra.Command, _ []string) error {
	client := newNotificationClient()
	if err := client.MarkAllRead(cmd.Context()); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Mark all read failed", err)
	}
	fmt.Println("all notifications marked read")
	return nil
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
