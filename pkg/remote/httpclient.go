package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// defaultTimeout bounds each request when the caller's http.Client
	// has no timeout of its own.
	defaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of an error response is kept for
	// diagnostics.
	maxErrorBody = 2048
)

// JobClient talks to the job service over HTTP.
//
// Endpoints:
//
//	POST   <base>/jobs                   multipart submit
//	GET    <base>/jobs/{id}              status
//	POST   <base>/jobs/{id}/cancel
//	POST   <base>/jobs/{id}/retry
type JobClient struct {
	base    string
	httpc   *http.Client
	session string
}

// NewJobClient creates a job service client.
//
// Parameters:
//   - baseURL: service root, e.g. "https://api.example.com/v1"
//   - httpc: optional HTTP client; nil uses a default with a 30s timeout
//
// The process session id is attached to every request.
func NewJobClient(baseURL string, httpc *http.Client) *JobClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: defaultTimeout}
	}
	return &JobClient{
		base:    strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
		session: ProcessSessionID(),
	}
}

func (c *JobClient) Submit(ctx context.Context, filename string, body io.Reader, opts SubmitOptions) (*SubmitResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build submit form: %w", err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return nil, fmt.Errorf("read submit body: %w", err)
	}
	if opts.Priority != "" {
		if err := mw.WriteField("priority", opts.Priority); err != nil {
			return nil, fmt.Errorf("build submit form: %w", err)
		}
	}
	if opts.WebhookURL != "" {
		if err := mw.WriteField("webhook_url", opts.WebhookURL); err != nil {
			return nil, fmt.Errorf("build submit form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize submit form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/jobs", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(SessionHeader, c.session)

	var out SubmitResult
	if err := c.do(req, "Submit", &out); err != nil {
		return nil, err
	}
	if out.JobID == "" {
		return nil, fmt.Errorf("submit response missing job_id")
	}
	return &out, nil
}

func (c *JobClient) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(SessionHeader, c.session)

	var out JobStatus
	if err := c.do(req, "GetStatus", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *JobClient) Cancel(ctx context.Context, jobID string) error {
	return c.post(ctx, "Cancel", "/jobs/"+url.PathEscape(jobID)+"/cancel", nil)
}

func (c *JobClient) Retry(ctx context.Context, jobID string) error {
	return c.post(ctx, "Retry", "/jobs/"+url.PathEscape(jobID)+"/retry", nil)
}

func (c *JobClient) post(ctx context.Context, op, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(SessionHeader, c.session)
	return c.do(req, op, nil)
}

func (c *JobClient) do(req *http.Request, op string, out any) error {
	return doJSON(c.httpc, req, op, out)
}

// NotificationClient talks to the notification service over HTTP.
//
// Endpoints:
//
//	GET  <base>/notifications/unread-count
//	GET  <base>/notifications?unread_only=&limit=&offset=
//	POST <base>/notifications/{id}/read
//	POST <base>/notifications/read          {"ids": [...]}
//	POST <base>/notifications/read-all
type NotificationClient struct {
	base    string
	httpc   *http.Client
	session string
}

// NewNotificationClient creates a notification service client.
// A nil httpc uses a default client with a 30s timeout.
func NewNotificationClient(baseURL string, httpc *http.Client) *NotificationClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: defaultTimeout}
	}
	return &NotificationClient{
		base:    strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
		session: ProcessSessionID(),
	}
}

func (c *NotificationClient) GetUnreadCount(ctx context.Context) (*UnreadCount, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/notifications/unread-count", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(SessionHeader, c.session)

	var out UnreadCount
	if err := doJSON(c.httpc, req, "GetUnreadCount", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *NotificationClient) GetNotifications(ctx context.Context, opts ListOptions) (*NotificationList, error) {
	q := url.Values{}
	if opts.UnreadOnly {
		q.Set("unread_only", "true")
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	u := c.base + "/notifications"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(SessionHeader, c.session)

	var out NotificationList
	if err := doJSON(c.httpc, req, "GetNotifications", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *NotificationClient) MarkRead(ctx context.Context, id string) error {
	return c.post(ctx, "MarkRead", "/notifications/"+url.PathEscape(id)+"/read", nil)
}

func (c *NotificationClient) MarkManyRead(ctx context.Context, ids []string) error {
	payload := struct {
		IDs []string `json:"ids"`
	}{IDs: ids}
	return c.post(ctx, "MarkManyRead", "/notifications/read", payload)
}

func (c *NotificationClient) MarkAllRead(ctx context.Context) error {
	return c.post(ctx, "MarkAllRead", "/notifications/read-all", nil)
}

func (c *NotificationClient) post(ctx context.Context, op, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(SessionHeader, c.session)
	return doJSON(c.httpc, req, op, nil)
}

// doJSON executes the request, classifies non-2xx responses, and decodes a
// JSON body into out when out is non-nil.
func doJSON(httpc *http.Client, req *http.Request, op string, out any) error {
	resp, err := httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// Compile-time checks that the HTTP clients implement the contracts.
var (
	_ JobAPI          = (*JobClient)(nil)
	_ NotificationAPI = (*NotificationClient)(nil)
)
