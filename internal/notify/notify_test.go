package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestSendPostsRunSummary(t *testing.T) {
	ctx := context.Background()

	var receivedMethod string
	var receivedPath string
	var receivedBody string
	var receivedContentType string

	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			receivedMethod = r.Method
			receivedPath = r.URL.Path
			receivedContentType = r.Header.Get("Content-Type")
			rawBody, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			receivedBody = string(rawBody)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("ok")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	summary := RunSummary{RunID: "run-1", ItemCount: 42, Duration: 90 * time.Second}
	if err := SendRunSummary(ctx, client, "http://example.com/notifications", summary); err != nil {
		t.Fatalf("SendRunSummary() error = %v", err)
	}

	if got, want := receivedMethod, http.MethodPost; got != want {
		t.Fatalf("method = %q; want %q", got, want)
	}
	if got, want := receivedPath, "/notifications"; got != want {
		t.Fatalf("path = %q; want %q", got, want)
	}
	if got, want := receivedContentType, "text/plain"; got != want {
		t.Fatalf("content-type = %q; want %q", got, want)
	}
	if !strings.Contains(receivedBody, "42 items") {
		t.Fatalf("body = %q; want item count", receivedBody)
	}
	if !strings.Contains(receivedBody, "run-1") {
		t.Fatalf("body = %q; want run id", receivedBody)
	}
}

func TestRunSummaryMessageForFailedRun(t *testing.T) {
	summary := RunSummary{
		RunID:     "run-2",
		ItemCount: 7,
		Duration:  30 * time.Second,
		Err:       errors.New("tab gone"),
	}
	msg := summary.Message()
	if !strings.Contains(msg, "failed") {
		t.Fatalf("Message() = %q; want failure wording", msg)
	}
	if !strings.Contains(msg, "7 items") {
		t.Fatalf("Message() = %q; want partial item count", msg)
	}
}

func TestSendReturnsErrorForServerError(t *testing.T) {
	ctx := context.Background()

	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader("server failure")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	err := Send(ctx, client, "http://example.com/notifications", "hello")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "ntfy notification failed") {
		t.Fatalf("error = %q; want to contain %q", err, "ntfy notification failed")
	}
}

func TestSendDisallowsMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	err := Send(ctx, http.DefaultClient, "", "hello")
	if err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}
