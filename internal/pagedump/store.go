// Package pagedump stores raw page markup captured during runs. The dumps
// are a debugging aid for when extraction quietly starts missing fields
// after a site redesign.
package pagedump

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/odb_agent/internal/cdpcontrol"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// CodeDumpNotFound is mapped by the API layer.
const CodeDumpNotFound = "DUMP_NOT_FOUND"

// DumpMeta describes stored page dump metadata.
type DumpMeta struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	URL       string    `json:"url,omitempty"`
	Cycle     int       `json:"cycle,omitempty"`
	SizeBytes int       `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	Note      string    `json:"note,omitempty"`
}

// Store manages page dump files on disk.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pagedump store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) validateID(id string) error {
	if !uuidRe.MatchString(id) {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fmt.Sprintf("invalid dump id: %q", id)}
	}
	return nil
}

// Save writes both the markup file and metadata sidecar.
func (s *Store) Save(meta DumpMeta, markup string) error {
	if err := s.validateID(meta.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	htmlPath := filepath.Join(s.dir, meta.ID+".html")
	jsonPath := filepath.Join(s.dir, meta.ID+".json")

	meta.SizeBytes = len(markup)
	if err := os.WriteFile(htmlPath, []byte(markup), 0o644); err != nil {
		return fmt.Errorf("pagedump store: write markup: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.Remove(htmlPath)
		return fmt.Errorf("pagedump store: marshal meta: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		_ = os.Remove(htmlPath)
		return fmt.Errorf("pagedump store: write meta: %w", err)
	}

	return nil
}

// Get reads dump metadata by ID.
func (s *Store) Get(id string) (DumpMeta, error) {
	if err := s.validateID(id); err != nil {
		return DumpMeta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	jsonPath := filepath.Join(s.dir, id+".json")
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DumpMeta{}, &cdpcontrol.CodedError{Code: CodeDumpNotFound, Message: "dump not found: " + id}
		}
		return DumpMeta{}, fmt.Errorf("pagedump store: read meta: %w", err)
	}

	var meta DumpMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return DumpMeta{}, fmt.Errorf("pagedump store: unmarshal meta: %w", err)
	}
	return meta, nil
}

// List returns all dumps sorted by creation time (newest first).
func (s *Store) List() ([]DumpMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("pagedump store: glob: %w", err)
	}

	metas := make([]DumpMeta, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var meta DumpMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})

	return metas, nil
}

// ReadMarkup reads the raw markup for a dump.
func (s *Store) ReadMarkup(id string) (string, error) {
	if err := s.validateID(id); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	htmlPath := filepath.Join(s.dir, id+".html")
	data, err := os.ReadFile(htmlPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &cdpcontrol.CodedError{Code: CodeDumpNotFound, Message: "dump markup not found: " + id}
		}
		return "", fmt.Errorf("pagedump store: read markup: %w", err)
	}
	return string(data), nil
}

// Delete removes both the markup and metadata files.
func (s *Store) Delete(id string) error {
	if err := s.validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	htmlPath := filepath.Join(s.dir, id+".html")
	jsonPath := filepath.Join(s.dir, id+".json")

	if err := os.Remove(htmlPath); err != nil && !os.IsNotExist(err) {
		slog.Debug("dump markup cleanup failed", "id", id, "error", err)
	}
	if err := os.Remove(jsonPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pagedump store: remove meta: %w", err)
	}
	return nil
}
