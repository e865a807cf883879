// Package local persists harvested documents to the export directory as a
// JSON record plus a multi-sheet spreadsheet.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/kennygrant/sanitize"
	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/metrics"
)

// DefaultPrefix names files whose prefix sanitizes to nothing.
const DefaultPrefix = "dataset"

const (
	timestampLayout = "20060102_150405"
	// maxCollisions bounds the _<n> suffix search.
	maxCollisions = 10000
)

// Config captures the parameters for the export writer.
type Config struct {
	// ExportDir is the directory both files are written to.
	ExportDir string `mapstructure:"export_dir"`
}

// Writer implements harvest.Writer on the local filesystem.
type Writer struct {
	dir    string
	clock  harvest.Clock
	logger *zap.Logger
}

// New creates the export directory if needed and checks it is writable.
func New(cfg Config, clock harvest.Clock, logger *zap.Logger) (*Writer, error) {
	if strings.TrimSpace(cfg.ExportDir) == "" {
		return nil, fmt.Errorf("export directory is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(cfg.ExportDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat export directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.ExportDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create export directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("export directory path is not a directory")
	}

	testFile := filepath.Join(cfg.ExportDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("export directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Writer{dir: cfg.ExportDir, clock: clock, logger: logger.Named("writer")}, nil
}

// Dir returns the export directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Save writes <prefix>_<timestamp>.json and .xlsx. A nil document is a
// no-op. A failed record write returns *harvest.PersistenceError; a failed
// spreadsheet is logged and leaves Paths.Table empty.
func (w *Writer) Save(ctx context.Context, doc *harvest.Document, prefix string) (harvest.Paths, error) {
	if doc == nil {
		return harvest.Paths{}, nil
	}
	if err := ctx.Err(); err != nil {
		return harvest.Paths{}, fmt.Errorf("save canceled: %w", err)
	}

	stem := SanitizePrefix(prefix) + "_" + w.clock.Now().Format(timestampLayout)
	record, path, err := w.claim(stem)
	if err != nil {
		metrics.ObserveSave("json", "failure")
		return harvest.Paths{}, err
	}

	if err := writeRecord(record, doc); err != nil {
		_ = os.Remove(path) //nolint:errcheck // partial file cleanup
		metrics.ObserveSave("json", "failure")
		return harvest.Paths{}, &harvest.PersistenceError{Path: path, Err: err}
	}
	metrics.ObserveSave("json", "success")
	w.logger.Info("record saved", zap.String("path", path), zap.String("url", doc.Metadata.URL))

	paths := harvest.Paths{Record: path}
	tablePath := strings.TrimSuffix(path, ".json") + ".xlsx"
	if err := writeWorkbook(tablePath, doc); err != nil {
		metrics.ObserveSave("xlsx", "failure")
		w.logger.Error("spreadsheet not saved", zap.String("path", tablePath), zap.Error(err))
		return paths, nil
	}
	metrics.ObserveSave("xlsx", "success")
	w.logger.Info("spreadsheet saved", zap.String("path", tablePath))
	paths.Table = tablePath
	return paths, nil
}

// claim exclusively creates the record file, adding _<n> until the name is
// free so concurrent or same-second saves never overwrite each other.
func (w *Writer) claim(stem string) (*os.File, string, error) {
	for n := 0; n < maxCollisions; n++ {
		name := stem
		if n > 0 {
			name = stem + "_" + strconv.Itoa(n)
		}
		path := filepath.Join(w.dir, name+".json")
		if _, err := os.Stat(strings.TrimSuffix(path, ".json") + ".xlsx"); err == nil {
			continue
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // path built from sanitized prefix
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", &harvest.PersistenceError{Path: path, Err: err}
		}
	}
	return nil, "", &harvest.PersistenceError{
		Path: filepath.Join(w.dir, stem+".json"),
		Err:  fmt.Errorf("no free file name after %d attempts", maxCollisions),
	}
}

func writeRecord(f *os.File, doc *harvest.Document) error {
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		_ = f.Close() //nolint:errcheck // encode error takes precedence
		return fmt.Errorf("encode record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close record: %w", err)
	}
	return nil
}

// SanitizePrefix makes prefix safe as a file name stem. Hyphens and
// underscores pass through untouched so host-derived prefixes such as
// "my-site_com" or "xn--mnchen-3ya_de" survive; whitespace becomes "_" and
// every other rune goes through sanitize.BaseName, which flattens accents,
// turns separators into "-" and drops the rest.
func SanitizePrefix(prefix string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(prefix) {
		switch {
		case r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte('_')
		default:
			b.WriteString(sanitize.BaseName(string(r)))
		}
	}
	cleaned := strings.Trim(b.String(), "-_")
	if cleaned == "" {
		return DefaultPrefix
	}
	return cleaned
}
