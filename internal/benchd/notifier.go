package benchd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/bench-core/internal/suite"
	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
	"github.com/GoSim-25-26J-441/bench-core/pkg/utils"
)

// NotificationPayload is the JSON body posted to the callback URL when a
// suite finishes
type NotificationPayload struct {
	RunID     string       `json:"run_id"`
	Phase     suite.Phase  `json:"phase"`
	Error     string       `json:"error,omitempty"`
	Result    suite.Result `json:"result"`
	Timestamp int64        `json:"timestamp"` // unix ms when sent
}

// Notifier posts completion callbacks
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	backoff    utils.BackoffStrategy
}

// NewNotifier creates a notifier with three retries and exponential backoff
// from one second
func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		backoff:    utils.NewExponentialBackoff(time.Second, 8*time.Second, 2, false),
	}
}

// Notify posts payload to callbackURL, replacing a {run_id} placeholder.
// It blocks until the callback is accepted, retries are exhausted or ctx
// is done.
func (n *Notifier) Notify(ctx context.Context, callbackURL, secret string, payload NotificationPayload) error {
	if callbackURL == "" {
		return nil
	}
	finalURL := strings.ReplaceAll(callbackURL, "{run_id}", payload.RunID)
	payload.Timestamp = time.Now().UTC().UnixMilli()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.backoff.NextDelay(attempt - 1)
			logger.Debug("retrying notification", "callback_url", finalURL, "run_id", payload.RunID, "attempt", attempt, "delay", delay)
			if err := utils.Sleep(ctx, delay); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, finalURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create notification request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "bench-core/1.0")
		if secret != "" {
			req.Header.Set("X-Bench-Callback-Secret", secret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn("notification attempt failed", "callback_url", finalURL, "run_id", payload.RunID, "attempt", attempt+1, "error", err)
			continue
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notification sent", "run_id", payload.RunID, "phase", payload.Phase, "status_code", resp.StatusCode)
			return nil
		}
		text := string(respBody)
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		logger.Warn("notification returned non-2xx status", "callback_url", finalURL, "run_id", payload.RunID, "status_code", resp.StatusCode, "response_body", text, "attempt", attempt+1)
	}

	logger.Error("failed to send notification after retries", "callback_url", finalURL, "run_id", payload.RunID, "max_retries", n.maxRetries, "last_error", lastErr)
	return lastErr
}
