package alignd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/llamasearchai/OpenManufacturing/pkg/logger"
	"github.com/llamasearchai/OpenManufacturing/pkg/models"
	"github.com/llamasearchai/OpenManufacturing/pkg/utils"
)

// NotificationPayload is the JSON body posted to the callback URL when
// a job reaches a terminal status.
type NotificationPayload struct {
	JobID            string                  `json:"job_id"`
	DeviceID         string                  `json:"device_id"`
	Strategy         models.Strategy         `json:"strategy"`
	Status           models.JobStatus        `json:"status"`
	Error            string                  `json:"error,omitempty"`
	Result           *models.AlignmentResult `json:"result,omitempty"`
	SubmittedAt      time.Time               `json:"submitted_at"`
	CompletedAt      time.Time               `json:"completed_at,omitempty"`
	NotifiedAtUnixMs int64                   `json:"notified_at_unix_ms"`
}

// Notifier posts job completions to a configured callback URL with
// retries and exponential backoff.
type Notifier struct {
	httpClient *http.Client
	url        string
	secret     string
	maxRetries int
	backoff    utils.BackoffStrategy
}

// NewNotifier creates a notifier for the given callback URL. The URL
// may contain a {job_id} template.
func NewNotifier(callbackURL, secret string) *Notifier {
	return &Notifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		url:        callbackURL,
		secret:     secret,
		maxRetries: 3,
		backoff:    utils.NewExponentialBackoff(1*time.Second, 30*time.Second),
	}
}

// Notify sends a notification for the job asynchronously. It returns
// immediately; delivery failures are logged, not surfaced.
func (n *Notifier) Notify(job *models.AlignmentJob) {
	if n.url == "" || job == nil {
		return
	}

	payload := NotificationPayload{
		JobID:            job.ID,
		DeviceID:         job.DeviceID,
		Strategy:         job.Strategy,
		Status:           job.Status,
		Error:            job.Error,
		Result:           job.Result,
		SubmittedAt:      job.SubmittedAt,
		CompletedAt:      job.CompletedAt,
		NotifiedAtUnixMs: time.Now().UTC().UnixMilli(),
	}

	finalURL := strings.ReplaceAll(n.url, "{job_id}", job.ID)
	go n.send(finalURL, payload)
}

// send performs the HTTP POST with retry logic.
func (n *Notifier) send(callbackURL string, payload NotificationPayload) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal notification payload",
			"callback_url", callbackURL, "job_id", payload.JobID, "error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.backoff.NextDelay(attempt - 1)
			logger.Debug("retrying notification",
				"callback_url", callbackURL, "job_id", payload.JobID,
				"attempt", attempt, "delay", delay)
			time.Sleep(delay)
		}

		req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(payloadJSON))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "alignd/1.0")
		if n.secret != "" {
			req.Header.Set("X-Alignment-Callback-Secret", n.secret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn("notification attempt failed",
				"callback_url", callbackURL, "job_id", payload.JobID,
				"attempt", attempt+1, "error", err)
			continue
		}

		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notification sent",
				"job_id", payload.JobID,
				"status", string(payload.Status),
				"status_code", resp.StatusCode)
			return
		}

		responseBody := string(bodyBytes)
		if len(responseBody) > 200 {
			responseBody = responseBody[:200] + "..."
		}
		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		logger.Warn("notification returned non-2xx status",
			"callback_url", callbackURL, "job_id", payload.JobID,
			"status_code", resp.StatusCode,
			"response_body", responseBody,
			"attempt", attempt+1)
	}

	logger.Error("failed to send notification after retries",
		"callback_url", callbackURL,
		"job_id", payload.JobID,
		"max_retries", n.maxRetries,
		"last_error", lastErr)
}
