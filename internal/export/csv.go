// Package export writes captured records out: a CSV file per completed run
// and a rolling JSONL archive for downstream ingestion.
package export

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/odb_agent/internal/extract"
)

var csvHeader = []string{
	"logical_index",
	"video_id",
	"video_url",
	"likes",
	"comments",
	"shares",
	"saves",
	"tags",
	"description",
	"captured_at",
}

// WriteCSV writes the records to a timestamped CSV file in dir and returns
// the file path. Tags are joined with spaces, matching how they read on the
// page.
func WriteCSV(dir string, records []extract.Record) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: create output dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("sequences_%s.csv", time.Now().UTC().Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("export: create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("export: write header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			strconv.Itoa(rec.LogicalIndex),
			rec.VideoID,
			rec.VideoURL,
			strconv.Itoa(rec.Likes),
			strconv.Itoa(rec.Comments),
			strconv.Itoa(rec.Shares),
			strconv.Itoa(rec.Saves),
			strings.Join(rec.Tags, " "),
			rec.Description,
			rec.CapturedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("export: write row %d: %w", rec.LogicalIndex, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("export: flush csv: %w", err)
	}

	slog.Info("csv written", "path", path, "records", len(records))
	return path, nil
}
