package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/odb_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/odb_agent/internal/extract"
	"github.com/dgnsrekt/odb_agent/internal/pagedump"
	"github.com/dgnsrekt/odb_agent/internal/scrape"
)

type stubService struct {
	runs     []scrape.Run
	startErr error
	getErr   error
	items    []extract.Record
}

func (s *stubService) Feed(ctx context.Context) (cdpcontrol.FeedInfo, error) {
	return cdpcontrol.FeedInfo{TargetID: "t1", URL: "https://outlierdb.com/", Title: "OutlierDB"}, nil
}

func (s *stubService) StartRun(ctx context.Context) (scrape.Run, error) {
	if s.startErr != nil {
		return scrape.Run{}, s.startErr
	}
	return scrape.Run{ID: "run-1", Status: scrape.StatusRunning, StartedAt: time.Now().UTC()}, nil
}

func (s *stubService) StopRun() error { return nil }

func (s *stubService) ListRuns() []scrape.Run { return s.runs }

func (s *stubService) GetRun(id string) (scrape.Run, error) {
	if s.getErr != nil {
		return scrape.Run{}, s.getErr
	}
	return scrape.Run{ID: id, Status: scrape.StatusCompleted}, nil
}

func (s *stubService) RunItems(id string) ([]extract.Record, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.items, nil
}

func (s *stubService) ListDumps() ([]pagedump.DumpMeta, error) { return []pagedump.DumpMeta{}, nil }

func (s *stubService) GetDumpMarkup(id string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	return "<html></html>", nil
}

func doRequest(t *testing.T, svc Service, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewServer(svc)
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := doRequest(t, &stubService{}, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("body = %q; want ok status", w.Body.String())
	}
}

func TestDocsDarkMode(t *testing.T) {
	w := doRequest(t, &stubService{}, http.MethodGet, "/docs")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
}

func TestListRunsEmptyIsArray(t *testing.T) {
	w := doRequest(t, &stubService{}, http.MethodGet, "/api/v1/runs")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	var out struct {
		Runs []scrape.Run `json:"runs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Runs == nil {
		t.Fatal("runs is null; want empty array")
	}
}

func TestStartRunConflictMapsTo409(t *testing.T) {
	svc := &stubService{
		startErr: &cdpcontrol.CodedError{Code: scrape.CodeRunInProgress, Message: "a run is already in progress"},
	}
	w := doRequest(t, svc, http.MethodPost, "/api/v1/runs")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusConflict)
	}
}

func TestGetRunNotFoundMapsTo404(t *testing.T) {
	svc := &stubService{
		getErr: &cdpcontrol.CodedError{Code: scrape.CodeRunNotFound, Message: "run not found"},
	}
	w := doRequest(t, svc, http.MethodGet, "/api/v1/runs/missing")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetRunItemsReturnsRecords(t *testing.T) {
	svc := &stubService{
		items: []extract.Record{
			{LogicalIndex: 0, VideoID: "abc", VideoURL: "https://www.youtube.com/embed/abc"},
			{LogicalIndex: 3, VideoID: "def", VideoURL: "https://www.youtube.com/embed/def"},
		},
	}
	w := doRequest(t, svc, http.MethodGet, "/api/v1/runs/run-1/items")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	var out struct {
		RunID string           `json:"run_id"`
		Items []extract.Record `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.RunID != "run-1" || len(out.Items) != 2 {
		t.Fatalf("run_id = %q, len(items) = %d; want run-1, 2", out.RunID, len(out.Items))
	}
	if out.Items[1].LogicalIndex != 3 {
		t.Fatalf("items[1].LogicalIndex = %d; want 3", out.Items[1].LogicalIndex)
	}
}

func TestCDPUnavailableMapsTo502(t *testing.T) {
	svc := &stubService{
		getErr: &cdpcontrol.CodedError{Code: cdpcontrol.CodeCDPUnavailable, Message: "not connected"},
	}
	w := doRequest(t, svc, http.MethodGet, "/api/v1/runs/run-1/items")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusBadGateway)
	}
}

func TestMissingDumpMapsTo404(t *testing.T) {
	svc := &stubService{
		getErr: &cdpcontrol.CodedError{Code: pagedump.CodeDumpNotFound, Message: "dump not found"},
	}
	w := doRequest(t, svc, http.MethodGet, "/api/v1/dumps/0b9af7a5-14c8-4f8e-a071-1b1f0a9c2d11/markup")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusNotFound)
	}
}

func TestDumpMarkupServedAsHTML(t *testing.T) {
	w := doRequest(t, &stubService{}, http.MethodGet, "/api/v1/dumps/0b9af7a5-14c8-4f8e-a071-1b1f0a9c2d11/markup")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("content-type = %q; want text/html", ct)
	}
}
