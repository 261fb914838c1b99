// Package notify pushes run summaries to an ntfy-style endpoint. Optional;
// an empty endpoint disables it upstream.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RunSummary carries the fields worth pushing when a scrape run ends.
type RunSummary struct {
	RunID     string
	ItemCount int
	Duration  time.Duration
	Err       error
}

// Message renders the plain-text notification body.
func (s RunSummary) Message() string {
	if s.Err != nil {
		return fmt.Sprintf("scrape run %s failed after %s with %d items captured: %v",
			s.RunID, s.Duration.Round(time.Second), s.ItemCount, s.Err)
	}
	return fmt.Sprintf("scrape run %s complete: %d items in %s",
		s.RunID, s.ItemCount, s.Duration.Round(time.Second))
}

// SendRunSummary posts a run summary to the endpoint.
func SendRunSummary(ctx context.Context, client *http.Client, endpoint string, summary RunSummary) error {
	return Send(ctx, client, endpoint, summary.Message())
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
