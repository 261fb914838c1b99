// Package paginate drives scroll/snapshot/extract cycles against a
// virtualized feed until the feed stops yielding new items. The engine is
// single-threaded; one cycle runs at a time and cancellation is honored at
// cycle boundaries.
package paginate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/odb_agent/internal/extract"
)

// Collaborator is the engine's only window onto the page. Implementations
// own selector resolution and transport details; the engine never sees CSS
// or CDP.
type Collaborator interface {
	// Snapshot returns the current full-page markup.
	Snapshot(ctx context.Context) (string, error)
	// ScrollContainerTo scrolls the feed container to an absolute pixel
	// offset and returns the offset actually reached. Requesting an offset
	// at or past the extent clamps; it is not an error.
	ScrollContainerTo(ctx context.Context, offset int) (int, error)
	// ContainerExtent reports the container's current scroll offset and
	// total scrollable height.
	ContainerExtent(ctx context.Context) (offset, totalHeight int, err error)
	// Elapse waits for the given duration, honoring cancellation.
	Elapse(ctx context.Context, d time.Duration) error
}

// ErrCollaboratorUnavailable marks a fatal transport failure. Run still
// returns the items captured before the failure alongside this error.
var ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

// Options tune one engine instance. Zero values select the defaults.
type Options struct {
	ScrollStepPx        int           // absolute pixels per scroll advance
	NoProgressThreshold int           // consecutive no-progress scans before stopping
	SettleWait          time.Duration // wait after each scroll
	SettleRetries       int           // attempts per settle phase
	MaxCycles           int           // hard safety bound on scan cycles
}

const (
	defaultScrollStepPx        = 300
	defaultNoProgressThreshold = 10
	defaultSettleWait          = 2 * time.Second
	defaultSettleRetries       = 3
	defaultMaxCycles           = 10000
)

func (o Options) withDefaults() Options {
	if o.ScrollStepPx <= 0 {
		o.ScrollStepPx = defaultScrollStepPx
	}
	if o.NoProgressThreshold <= 0 {
		o.NoProgressThreshold = defaultNoProgressThreshold
	}
	if o.SettleWait <= 0 {
		o.SettleWait = defaultSettleWait
	}
	if o.SettleRetries <= 0 {
		o.SettleRetries = defaultSettleRetries
	}
	if o.MaxCycles <= 0 {
		o.MaxCycles = defaultMaxCycles
	}
	return o
}

type state int

const (
	stateLoading state = iota
	stateScanning
	stateScrolling
	stateSettling
	stateDone
)

func (s state) String() string {
	switch s {
	case stateLoading:
		return "loading"
	case stateScanning:
		return "scanning"
	case stateScrolling:
		return "scrolling"
	case stateSettling:
		return "settling"
	case stateDone:
		return "done"
	}
	return "unknown"
}

// Paginator runs the capture loop. Safe to reuse: every Run builds a fresh
// session, so a finished engine can simply be run again.
type Paginator struct {
	collab    Collaborator
	extractor *extract.Extractor
	opts      Options
}

// New builds an engine over the given collaborator. A nil extractor selects
// one with the default fingerprint table.
func New(collab Collaborator, extractor *extract.Extractor, opts Options) *Paginator {
	if extractor == nil {
		extractor = extract.New(nil)
	}
	return &Paginator{collab: collab, extractor: extractor, opts: opts.withDefaults()}
}

// Run executes cycles until the feed is exhausted, the context is canceled,
// or the collaborator fails. The returned slice is always sorted ascending
// by logical index and contains only complete items; on error it holds
// whatever was captured up to the failure.
func (p *Paginator) Run(ctx context.Context) ([]extract.Record, error) {
	s := newSession()
	st := stateLoading
	cycles := 0
	started := time.Now()

	var runErr error
loop:
	for st != stateDone {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		switch st {
		case stateLoading:
			off, height, err := p.collab.ContainerExtent(ctx)
			if err != nil {
				runErr = fmt.Errorf("%w: initial extent: %v", ErrCollaboratorUnavailable, err)
				break loop
			}
			s.scrollPos, s.containerHeight = off, height
			slog.Info("feed ready", "offset", off, "height", height)
			st = stateScanning

		case stateScanning:
			cycles++
			if cycles > p.opts.MaxCycles {
				slog.Warn("cycle bound reached", "cycles", cycles)
				st = stateDone
				continue
			}
			progress, err := p.scan(ctx, s)
			if err != nil {
				runErr = err
				break loop
			}
			if progress {
				s.noProgressStreak = 0
			} else {
				s.noProgressStreak++
			}
			slog.Debug("scan complete",
				"cycle", cycles,
				"items", len(s.items),
				"highest_index", s.highestIndexSeen,
				"no_progress_streak", s.noProgressStreak,
			)
			// Both exhaustion signals are required: a long no-progress
			// streak alone can just mean a slow network, and a pinned
			// scrollbar alone can be a transient layout state.
			if s.noProgressStreak >= p.opts.NoProgressThreshold && s.stalledScrolls >= 2 {
				st = stateDone
				continue
			}
			st = stateScrolling

		case stateScrolling:
			target := s.scrollPos + p.opts.ScrollStepPx
			actual, err := p.collab.ScrollContainerTo(ctx, target)
			if err != nil {
				runErr = fmt.Errorf("%w: scroll: %v", ErrCollaboratorUnavailable, err)
				break loop
			}
			if actual <= s.scrollPos {
				s.stalledScrolls++
			} else {
				s.stalledScrolls = 0
			}
			s.scrollPos = actual
			if _, height, err := p.collab.ContainerExtent(ctx); err == nil && height > s.containerHeight {
				s.containerHeight = height
			}
			st = stateSettling

		case stateSettling:
			p.settle(ctx)
			st = stateScanning
		}
	}

	items := s.ordered()
	if runErr != nil {
		slog.Warn("run aborted",
			"items", len(items),
			"cycles", cycles,
			"duration_ms", time.Since(started).Milliseconds(),
			"error", runErr,
		)
		return items, runErr
	}
	slog.Info("run complete",
		"items", len(items),
		"highest_index", s.highestIndexSeen,
		"cycles", cycles,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return items, nil
}

// scan takes one snapshot and extracts every unprocessed fragment in it.
// Returns whether at least one new complete item was captured. A markup
// parse failure is logged and treated as a no-progress scan, never a run
// failure.
func (p *Paginator) scan(ctx context.Context, s *session) (bool, error) {
	markup, err := p.collab.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: snapshot: %v", ErrCollaboratorUnavailable, err)
	}

	doc, err := extract.ParseSnapshot(markup)
	if err != nil {
		slog.Warn("snapshot unparseable, skipping cycle", "error", err)
		return false, nil
	}

	progress := false
	for _, frag := range extract.Fragments(doc) {
		s.observe(frag.Index)
		if s.isProcessed(frag.Index) {
			continue
		}
		rec, complete := p.extractor.Extract(frag)
		if !complete {
			slog.Debug("card not hydrated yet", "index", frag.Index)
			continue
		}
		s.capture(rec)
		progress = true
	}
	return progress, nil
}

// settle waits for the page to render newly mounted cards. Best effort: a
// failed wait is retried up to the bound and then given up on; the next
// scan simply sees whatever made it into the DOM.
func (p *Paginator) settle(ctx context.Context) {
	for attempt := 1; attempt <= p.opts.SettleRetries; attempt++ {
		err := p.collab.Elapse(ctx, p.opts.SettleWait)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		slog.Debug("settle wait failed", "attempt", attempt, "error", err)
	}
}
