// Package cdpcontrol implements the feed collaborator over the Chrome
// DevTools Protocol. It owns tab discovery, session attachment, JS
// evaluation, and transient-failure recovery; callers see plain snapshot
// and scroll primitives.
package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
}

type tabSession struct {
	info      FeedInfo
	mu        sync.Mutex
	sessionID string // CDP session ID from Target.attachToTarget
}

// Client talks to the single feed tab matching the configured URL filter.
// All collaborator calls are serialized through evalLock; the engine is
// sequential anyway and the browser dislikes concurrent evaluations on one
// session.
type Client struct {
	cdpURL            string
	tabFilter         string
	containerSelector string
	evalTimeout       time.Duration

	mu   sync.Mutex
	cdp  *rawCDP
	feed *tabSession

	evalLock sync.Mutex
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func NewClient(cdpURL, tabFilter, containerSelector string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:            cdpURL,
		tabFilter:         strings.ToLower(strings.TrimSpace(tabFilter)),
		containerSelector: strings.TrimSpace(containerSelector),
		evalTimeout:       evalTimeout,
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	if err := c.syncFeedLocked(ctx); err != nil {
		slog.Error("cdpcontrol initial tab sync failed", "error", err)
		c.cleanupLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "feed_found", c.feed != nil)
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	// Detach from the active session without closing the target.
	if c.cdp != nil {
		if c.feed != nil {
			c.feed.mu.Lock()
			if c.feed.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				_ = c.cdp.detachFromTarget(ctx, c.feed.sessionID)
				cancel()
				c.feed.sessionID = ""
			}
			c.feed.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.feed = nil
}

// Feed returns the discovered feed tab, refreshing the target list first.
func (c *Client) Feed(ctx context.Context) (FeedInfo, error) {
	if err := c.refreshFeed(ctx); err != nil {
		return FeedInfo{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feed == nil {
		return FeedInfo{}, newError(CodeFeedNotFound, "no feed tab matching filter: "+c.tabFilter, nil)
	}
	return c.feed.info, nil
}

// Snapshot returns the feed tab's full-page markup.
func (c *Client) Snapshot(ctx context.Context) (string, error) {
	var out struct {
		Markup string `json:"markup"`
	}
	if err := c.evalOnFeed(ctx, jsSnapshot(), &out); err != nil {
		return "", err
	}
	return out.Markup, nil
}

// ScrollContainerTo scrolls the feed container to an absolute pixel offset
// and returns the offset the browser actually settled on. Offsets past the
// extent clamp; that is the engine's bottom signal, not an error.
func (c *Client) ScrollContainerTo(ctx context.Context, offset int) (int, error) {
	if offset < 0 {
		return 0, newError(CodeValidation, "offset must be >= 0", nil)
	}
	var out struct {
		Offset int `json:"offset"`
	}
	if err := c.evalOnFeed(ctx, jsScrollContainerTo(c.containerSelector, offset), &out); err != nil {
		return 0, err
	}
	return out.Offset, nil
}

// ContainerExtent reports the container's scroll offset and total height.
func (c *Client) ContainerExtent(ctx context.Context) (int, int, error) {
	var out struct {
		Offset      int `json:"offset"`
		TotalHeight int `json:"total_height"`
	}
	if err := c.evalOnFeed(ctx, jsContainerExtent(c.containerSelector), &out); err != nil {
		return 0, 0, err
	}
	return out.Offset, out.TotalHeight, nil
}

// Elapse waits out a settle period on the Go side. The page needs wall time
// to mount cards, not another evaluation.
func (c *Client) Elapse(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) evalOnFeed(ctx context.Context, js string, out any) error {
	c.evalLock.Lock()
	defer c.evalLock.Unlock()

	// First attempt.
	session, err := c.resolveFeedSession(ctx)
	if err != nil {
		slog.Warn("cdpcontrol feed resolve failed", "error", err)
	} else {
		err = c.evalOnSession(ctx, session, js, out)
	}
	if err == nil {
		return nil
	}
	if !c.shouldRetry(err) {
		return err
	}

	// Retry after recovery.
	slog.Warn("cdpcontrol eval retry after transient failure", "error", err)
	if c.asCode(err, CodeCDPUnavailable) {
		if recErr := c.reconnect(ctx); recErr != nil {
			slog.Error("cdpcontrol reconnect failed during retry", "error", recErr)
			return recErr
		}
	} else {
		if syncErr := c.refreshFeed(ctx); syncErr != nil {
			slog.Warn("cdpcontrol tab refresh failed during retry", "error", syncErr)
		}
	}

	session, err = c.resolveFeedSession(ctx)
	if err != nil {
		slog.Warn("cdpcontrol feed resolve failed (retry)", "error", err)
		return err
	}
	return c.evalOnSession(ctx, session, js, out)
}

func (c *Client) evalOnSession(ctx context.Context, session *tabSession, js string, out any) error {
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	sessionID, err := c.ensureSession(ctx, cdp, session)
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "target_id", session.info.TargetID, "error", err)
		// Reset session so a fresh attach happens on retry.
		session.mu.Lock()
		session.sessionID = ""
		session.mu.Unlock()

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// ensureSession returns a CDP session ID for the feed tab, attaching if needed.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, session *tabSession) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID != "" {
		return session.sessionID, nil
	}

	sid, err := cdp.attachToTarget(ctx, session.info.TargetID)
	if err != nil {
		return "", newError(CodeCDPUnavailable, "attach to target failed", err)
	}
	session.sessionID = sid
	slog.Debug("cdpcontrol session attached", "target_id", session.info.TargetID, "session_id", sid)
	return sid, nil
}

func (c *Client) resolveFeedSession(ctx context.Context) (*tabSession, error) {
	c.mu.Lock()
	session := c.feed
	c.mu.Unlock()
	if session != nil {
		return session, nil
	}

	if err := c.refreshFeed(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	session = c.feed
	c.mu.Unlock()
	if session == nil {
		return nil, newError(CodeFeedNotFound, "no feed tab matching filter: "+c.tabFilter, nil)
	}
	return session, nil
}

func (c *Client) refreshFeed(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.syncFeedLocked(ctx)
	c.mu.Unlock()
	if err == nil {
		return nil
	}
	return newError(CodeCDPUnavailable, "failed to list targets", err)
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

// syncFeedLocked rebinds c.feed to the first page target whose URL contains
// the filter. The previous session survives when the target is unchanged.
func (c *Client) syncFeedLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return err
	}

	var found *FeedInfo
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if c.tabFilter != "" && !strings.Contains(strings.ToLower(t.URL), c.tabFilter) {
			continue
		}
		found = &FeedInfo{TargetID: string(t.TargetID), URL: t.URL, Title: t.Title}
		break
	}

	if found == nil {
		c.feed = nil
		slog.Debug("cdpcontrol tab sync", "targets", len(targets), "feed_found", false)
		return nil
	}

	if c.feed != nil && c.feed.info.TargetID == found.TargetID {
		c.feed.info = *found
	} else {
		c.feed = &tabSession{info: *found}
	}
	slog.Debug("cdpcontrol tab sync", "targets", len(targets), "feed_url", found.URL)
	return nil
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodeFeedNotFound:
		return true
	case CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}

func (c *Client) asCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}
