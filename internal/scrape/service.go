// Package scrape owns run orchestration: it drives the pagination engine,
// exports the results, and keeps a registry of past runs for the control
// API. One run executes at a time.
package scrape

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/odb_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/odb_agent/internal/export"
	"github.com/dgnsrekt/odb_agent/internal/extract"
	"github.com/dgnsrekt/odb_agent/internal/notify"
	"github.com/dgnsrekt/odb_agent/internal/pagedump"
	"github.com/dgnsrekt/odb_agent/internal/paginate"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Error codes specific to run management, mapped by the API layer.
const (
	CodeRunNotFound   = "RUN_NOT_FOUND"
	CodeRunInProgress = "RUN_IN_PROGRESS"
)

// Run describes one scrape run, live or finished.
type Run struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ItemCount  int        `json:"item_count"`
	CSVPath    string     `json:"csv_path,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Options tune the service around the engine.
type Options struct {
	Engine       paginate.Options
	OutputDir    string
	DumpHTML     bool
	NtfyEndpoint string
}

type runState struct {
	run    Run
	items  []extract.Record
	cancel context.CancelFunc
}

// Service executes scrape runs against a collaborator and records their
// outcomes. The dump store and archive writer are optional; nil disables
// that surface.
type Service struct {
	collab    paginate.Collaborator
	extractor *extract.Extractor
	dumps     *pagedump.Store
	archive   *export.JSONLWriter
	opts      Options

	mu     sync.Mutex
	runs   map[string]*runState
	order  []string
	active string
	wg     sync.WaitGroup
}

func NewService(collab paginate.Collaborator, extractor *extract.Extractor, dumps *pagedump.Store, archive *export.JSONLWriter, opts Options) *Service {
	if opts.OutputDir == "" {
		opts.OutputDir = "./output"
	}
	return &Service{
		collab:    collab,
		extractor: extractor,
		dumps:     dumps,
		archive:   archive,
		opts:      opts,
		runs:      make(map[string]*runState),
	}
}

// RunOnce executes a run synchronously and returns its record and items.
// The returned error is the engine's failure, if any; the run registry
// keeps the partial results either way.
func (s *Service) RunOnce(ctx context.Context) (Run, []extract.Record, error) {
	state, err := s.beginRun(nil)
	if err != nil {
		return Run{}, nil, err
	}
	runErr := s.execute(ctx, state)
	s.mu.Lock()
	run := state.run
	items := state.items
	s.mu.Unlock()
	return run, items, runErr
}

// StartRun launches a run in the background and returns its initial record.
// Fails when a run is already active.
func (s *Service) StartRun(ctx context.Context) (Run, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	state, err := s.beginRun(cancel)
	if err != nil {
		cancel()
		return Run{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		_ = s.execute(runCtx, state)
	}()

	s.mu.Lock()
	run := state.run
	s.mu.Unlock()
	return run, nil
}

// StopRun cancels the active run. The run winds down at the next cycle
// boundary and keeps its partial results.
func (s *Service) StopRun() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		return &cdpcontrol.CodedError{Code: CodeRunNotFound, Message: "no active run"}
	}
	state := s.runs[s.active]
	if state != nil && state.cancel != nil {
		state.cancel()
	}
	return nil
}

// Shutdown cancels any active run and waits for it to finish.
func (s *Service) Shutdown() {
	_ = s.StopRun()
	s.wg.Wait()
}

// Feed reports the feed tab the collaborator is attached to, when the
// collaborator exposes one.
func (s *Service) Feed(ctx context.Context) (cdpcontrol.FeedInfo, error) {
	type feedProvider interface {
		Feed(ctx context.Context) (cdpcontrol.FeedInfo, error)
	}
	fp, ok := s.collab.(feedProvider)
	if !ok {
		return cdpcontrol.FeedInfo{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeCDPUnavailable, Message: "collaborator does not expose feed info"}
	}
	return fp.Feed(ctx)
}

// ListRuns returns all runs, newest first.
func (s *Service) ListRuns() []Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.runs[s.order[i]].run)
	}
	return out
}

// GetRun returns one run by id.
func (s *Service) GetRun(id string) (Run, error) {
	state, err := s.lookup(id)
	if err != nil {
		return Run{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return state.run, nil
}

// RunItems returns the records a run captured so far, sorted ascending by
// logical index.
func (s *Service) RunItems(id string) ([]extract.Record, error) {
	state, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]extract.Record, len(state.items))
	copy(items, state.items)
	return items, nil
}

// ListDumps exposes the page dump metadata when dumps are enabled.
func (s *Service) ListDumps() ([]pagedump.DumpMeta, error) {
	if s.dumps == nil {
		return []pagedump.DumpMeta{}, nil
	}
	return s.dumps.List()
}

// GetDumpMarkup reads a stored page dump.
func (s *Service) GetDumpMarkup(id string) (string, error) {
	if s.dumps == nil {
		return "", &cdpcontrol.CodedError{Code: CodeRunNotFound, Message: "page dumps are disabled"}
	}
	if strings.TrimSpace(id) == "" {
		return "", &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "dump id is required"}
	}
	return s.dumps.ReadMarkup(strings.TrimSpace(id))
}

func (s *Service) lookup(id string) (*runState, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "run id is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[id]
	if !ok {
		return nil, &cdpcontrol.CodedError{Code: CodeRunNotFound, Message: "run not found: " + id}
	}
	return state, nil
}

func (s *Service) beginRun(cancel context.CancelFunc) (*runState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		return nil, &cdpcontrol.CodedError{Code: CodeRunInProgress, Message: "a run is already in progress: " + s.active}
	}

	state := &runState{
		run: Run{
			ID:        uuid.New().String(),
			Status:    StatusRunning,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	s.runs[state.run.ID] = state
	s.order = append(s.order, state.run.ID)
	s.active = state.run.ID
	slog.Info("scrape run started", "run_id", state.run.ID)
	return state, nil
}

// execute drives the engine and finalizes the run record. Partial results
// are exported even when the engine fails.
func (s *Service) execute(ctx context.Context, state *runState) error {
	started := time.Now()
	engine := paginate.New(s.collab, s.extractor, s.opts.Engine)
	items, runErr := engine.Run(ctx)

	if s.archive != nil {
		for _, rec := range items {
			_ = s.archive.Write(rec)
		}
	}

	csvPath := ""
	if len(items) > 0 {
		path, err := export.WriteCSV(s.opts.OutputDir, items)
		if err != nil {
			slog.Error("csv export failed", "run_id", state.run.ID, "error", err)
		} else {
			csvPath = path
		}
	}

	if s.opts.DumpHTML && s.dumps != nil {
		s.saveDump(ctx, state.run.ID)
	}

	s.mu.Lock()
	now := time.Now().UTC()
	state.items = items
	state.run.ItemCount = len(items)
	state.run.CSVPath = csvPath
	state.run.FinishedAt = &now
	if runErr != nil {
		state.run.Status = StatusFailed
		state.run.Error = runErr.Error()
	} else {
		state.run.Status = StatusCompleted
	}
	run := state.run
	s.active = ""
	s.mu.Unlock()

	if s.opts.NtfyEndpoint != "" {
		summary := notify.RunSummary{
			RunID:     run.ID,
			ItemCount: run.ItemCount,
			Duration:  time.Since(started),
			Err:       runErr,
		}
		notifyCtx, notifyCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := notify.SendRunSummary(notifyCtx, http.DefaultClient, s.opts.NtfyEndpoint, summary); err != nil {
			slog.Warn("run notification failed", "run_id", run.ID, "error", err)
		}
		notifyCancel()
	}

	slog.Info("scrape run finished",
		"run_id", run.ID,
		"status", run.Status,
		"items", run.ItemCount,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return runErr
}

// saveDump stores the page markup as seen at the end of a run.
func (s *Service) saveDump(ctx context.Context, runID string) {
	markup, err := s.collab.Snapshot(ctx)
	if err != nil {
		slog.Warn("page dump snapshot failed", "run_id", runID, "error", err)
		return
	}
	meta := pagedump.DumpMeta{
		ID:        uuid.New().String(),
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Note:      "end of run",
	}
	if err := s.dumps.Save(meta, markup); err != nil {
		slog.Warn("page dump save failed", "run_id", runID, "error", err)
		return
	}
	slog.Debug("page dump saved", "run_id", runID, "dump_id", meta.ID)
}
