// Package cdp holds the chromedp-based page lifecycle helper. The scraping
// loop itself talks raw CDP; chromedp is only used up front, where its
// navigation and wait actions are worth the heavier session setup.
package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// Navigator brings the feed tab into a scrapeable state: a page target on
// the base URL with the first item cards rendered.
type Navigator struct {
	cdpURL       string
	baseURL      string
	tabURLFilter string
	cardSelector string

	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewNavigator creates a navigator for the given CDP endpoint. cardSelector
// is the selector whose first match signals that the feed has rendered.
func NewNavigator(cdpURL, baseURL, tabURLFilter, cardSelector string) *Navigator {
	return &Navigator{
		cdpURL:       cdpURL,
		baseURL:      baseURL,
		tabURLFilter: strings.ToLower(strings.TrimSpace(tabURLFilter)),
		cardSelector: cardSelector,
	}
}

// EnsureFeed connects to the browser, makes sure a tab is showing the feed,
// and waits until the first cards are visible. An existing matching tab is
// reused; otherwise the first page tab is navigated to the base URL.
func (n *Navigator) EnsureFeed(ctx context.Context, timeout time.Duration) error {
	n.allocCtx, n.allocCancel = chromedp.NewRemoteAllocator(context.Background(), n.cdpURL)

	tempCtx, tempCancel := chromedp.NewContext(n.allocCtx)
	defer tempCancel()
	if err := chromedp.Run(tempCtx); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}

	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		return fmt.Errorf("enumerate targets: %w", err)
	}

	feedTarget, blankTarget := n.pickTargets(targets)
	switch {
	case feedTarget != "":
		slog.Info("reusing feed tab", "target_id", feedTarget)
		return n.waitForCards(ctx, feedTarget, "", timeout)
	case blankTarget != "":
		slog.Info("navigating existing tab to feed", "target_id", blankTarget, "url", n.baseURL)
		return n.waitForCards(ctx, blankTarget, n.baseURL, timeout)
	default:
		slog.Info("opening new feed tab", "url", n.baseURL)
		return n.openNewTab(ctx, timeout)
	}
}

// Reload reloads the feed tab and waits for the cards again. Used when a
// run wants a clean virtualizer state without restarting the browser.
func (n *Navigator) Reload(ctx context.Context, timeout time.Duration) error {
	if n.allocCtx == nil {
		return fmt.Errorf("navigator not connected")
	}

	tempCtx, tempCancel := chromedp.NewContext(n.allocCtx)
	defer tempCancel()
	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		return fmt.Errorf("enumerate targets: %w", err)
	}

	feedTarget, _ := n.pickTargets(targets)
	if feedTarget == "" {
		return fmt.Errorf("no feed tab to reload")
	}

	tabCtx, tabCancel := chromedp.NewContext(n.allocCtx, chromedp.WithTargetID(feedTarget))
	defer tabCancel()
	// Actions must run on the tab context; the caller's context only feeds
	// in cancellation.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()
	runCtx, runCancel := context.WithTimeout(tabCtx, timeout)
	defer runCancel()

	if err := chromedp.Run(runCtx,
		chromedp.Reload(),
		chromedp.WaitVisible(n.cardSelector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("reload feed tab: %w", err)
	}
	slog.Info("feed tab reloaded", "target_id", feedTarget)
	return nil
}

// Close releases the allocator. The browser and its tabs stay up.
func (n *Navigator) Close() {
	if n.allocCancel != nil {
		n.allocCancel()
		n.allocCancel = nil
		n.allocCtx = nil
	}
}

// pickTargets classifies the open page targets: one already on the feed, or
// failing that a blank tab safe to take over.
func (n *Navigator) pickTargets(targets []*target.Info) (feed, blank target.ID) {
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		url := strings.ToLower(t.URL)
		if n.tabURLFilter != "" && strings.Contains(url, n.tabURLFilter) && feed == "" {
			feed = t.TargetID
		}
		if (url == "about:blank" || url == "chrome://newtab/" || url == "chrome://new-tab-page/") && blank == "" {
			blank = t.TargetID
		}
	}
	return feed, blank
}

func (n *Navigator) waitForCards(ctx context.Context, targetID target.ID, navigateTo string, timeout time.Duration) error {
	tabCtx, tabCancel := chromedp.NewContext(n.allocCtx, chromedp.WithTargetID(targetID))
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()
	runCtx, runCancel := context.WithTimeout(tabCtx, timeout)
	defer runCancel()

	actions := []chromedp.Action{}
	if navigateTo != "" {
		actions = append(actions, chromedp.Navigate(navigateTo))
	}
	actions = append(actions, chromedp.WaitVisible(n.cardSelector, chromedp.ByQuery))

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("wait for feed cards: %w", err)
	}
	slog.Info("feed cards visible", "target_id", targetID, "selector", n.cardSelector)
	return nil
}

// openNewTab creates the target explicitly so that it outlives the chromedp
// context; the raw CDP client takes over the tab once navigation settles.
func (n *Navigator) openNewTab(ctx context.Context, timeout time.Duration) error {
	tempCtx, tempCancel := chromedp.NewContext(n.allocCtx)
	defer tempCancel()

	var targetID target.ID
	err := chromedp.Run(tempCtx, chromedp.ActionFunc(func(runCtx context.Context) error {
		id, createErr := target.CreateTarget(n.baseURL).Do(runCtx)
		targetID = id
		return createErr
	}))
	if err != nil {
		return fmt.Errorf("create feed tab: %w", err)
	}

	slog.Info("feed tab opened", "target_id", targetID, "url", n.baseURL)
	return n.waitForCards(ctx, targetID, "", timeout)
}
