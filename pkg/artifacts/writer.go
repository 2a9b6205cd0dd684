// Package artifacts persists Result JSON files. Writes are atomic:
// readers of the output directory never observe a partially-written
// artifact, only absence or the complete file.
package artifacts

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/triadworks/triad/pkg/models"
)

// runIDPrefixLen is how much of the run id goes into the filename.
// Full UUIDs make filenames unwieldy; eight hex chars keep them unique
// enough alongside the timestamp.
const runIDPrefixLen = 8

// Writer writes Result artifacts into a single output directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a writer targeting dir. The directory must exist.
func NewWriter(dir string) *Writer {
	return &Writer{
		dir:    dir,
		logger: slog.Default().With("component", "artifacts"),
	}
}

// Filename computes the artifact name for a result:
// result_{YYYY-MM-DD_HH-MM-SS}_{run_id_prefix}.json.
func Filename(result *models.Result) string {
	prefix := result.RunID
	if len(prefix) > runIDPrefixLen {
		prefix = prefix[:runIDPrefixLen]
	}
	stamp := result.TimestampUTC.UTC().Format("2006-01-02_15-04-05")
	return fmt.Sprintf("result_%s_%s.json", stamp, prefix)
}

// WriteResult serializes the result with two-space indentation and
// writes it atomically: temp file in the same directory, fsync,
// rename, then fsync the directory so the entry survives a crash.
// Returns the final filename (basename, not the full path).
func (w *Writer) WriteResult(result *models.Result) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result %s: %w", result.RunID, err)
	}
	data = append(data, '\n')

	filename := Filename(result)
	if err := AtomicWrite(filepath.Join(w.dir, filename), data); err != nil {
		return "", err
	}

	w.logger.Info("Result artifact written",
		"run_id", result.RunID, "filename", filename, "bytes", len(data))
	return filename, nil
}

// AtomicWrite writes data to path through a same-directory temp file
// and a rename, with fsyncs on both the file and its directory.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpName, path, err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory %s: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync directory %s: %w", dir, err)
	}
	return nil
}
