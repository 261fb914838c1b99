package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/odb_agent/internal/extract"
)

// JSONLWriter appends records to a date-organized archive as they are
// captured, one JSON line per record. Writes are async so the scrape loop
// never blocks on disk.
type JSONLWriter struct {
	baseDir     string
	maxSizeMB   int
	writeCh     chan extract.Record
	done        chan struct{}
	wg          sync.WaitGroup
	currentDate string
	logger      *lumberjack.Logger
	mu          sync.Mutex
}

// NewJSONLWriter creates an async archive writer rooted at baseDir.
func NewJSONLWriter(baseDir string, bufferSize, maxSizeMB int) *JSONLWriter {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	w := &JSONLWriter{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan extract.Record, bufferSize),
		done:      make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writeLoop()

	return w
}

// Write queues a record for async writing. A full buffer drops the record
// rather than stalling the engine.
func (w *JSONLWriter) Write(rec extract.Record) error {
	select {
	case <-w.done:
		return fmt.Errorf("writer is closed")
	default:
	}
	select {
	case w.writeCh <- rec:
		return nil
	default:
		slog.Warn("archive buffer full, dropping record", "logical_index", rec.LogicalIndex)
		return fmt.Errorf("buffer full")
	}
}

// Close shuts down the writer and flushes pending data.
func (w *JSONLWriter) Close() error {
	close(w.done)

	// Drain remaining items with timeout.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case rec := <-w.writeCh:
			w.writeRecord(rec)
		case <-timeout:
			slog.Warn("archive close timeout, some records may be lost")
			goto done
		default:
			goto done
		}
	}

done:
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		return w.logger.Close()
	}
	return nil
}

func (w *JSONLWriter) writeLoop() {
	defer w.wg.Done()

	for {
		select {
		case rec := <-w.writeCh:
			w.writeRecord(rec)
		case <-w.done:
			return
		}
	}
}

func (w *JSONLWriter) writeRecord(rec extract.Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Error("failed to marshal record", "error", err, "logical_index", rec.LogicalIndex)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	currentDate := time.Now().UTC().Format("2006-01-02")
	if currentDate != w.currentDate || w.logger == nil {
		w.rotateForDate(currentDate)
	}
	if w.logger == nil {
		return
	}

	if _, err = w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("failed to write record", "error", err, "logical_index", rec.LogicalIndex)
	}
}

func (w *JSONLWriter) rotateForDate(date string) {
	if w.logger != nil {
		w.logger.Close()
		w.logger = nil
	}

	dir := filepath.Join(w.baseDir, date)
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("failed to create archive directory", "error", err, "dir", dir)
		return
	}

	filename := filepath.Join(dir, "records.jsonl")
	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		Compress:   false,
		LocalTime:  false, // Use UTC
	}

	w.currentDate = date
	slog.Info("opened archive file", "file", filename)
}
