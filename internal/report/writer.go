package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/archdoc/internal/walker"
	"github.com/dshills/archdoc/pkg/types"
)

// Output file names
const (
	ArchitectureFile = "technical_architecture.md"
	ErrorsFile       = "analysis_errors.json"
	RootSummaryFile  = "root_summary.md"
	FilesDir         = "files"
	DirsDir          = "dirs"
)

// Writer writes run outputs under a single directory
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a writer rooted at dir
func NewWriter(dir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, logger: logger}
}

// Dir returns the output directory
func (w *Writer) Dir() string {
	return w.dir
}

// Write stores per-file reports, directory summaries, the architecture
// document and the error collection
func (w *Writer) Write(tree *walker.Tree, src Source, rep *Report) error {
	for d := range tree.PreOrder() {
		for _, id := range d.Files {
			if err := w.writeText(FilePath(w.dir, id), fileDocument(src, id)); err != nil {
				return err
			}
		}
		if err := w.writeText(DirPath(w.dir, d.ID), dirDocument(src, d)); err != nil {
			return err
		}
	}

	if err := w.writeText(filepath.Join(w.dir, ArchitectureFile), rep.Markdown); err != nil {
		return err
	}
	if err := w.WriteErrors(rep.Errors); err != nil {
		return err
	}

	w.logger.Info("wrote outputs",
		slog.String("dir", w.dir),
		slog.Int("files", rep.Files),
		slog.Int("directories", rep.Directories),
		slog.Int("errors", len(rep.Errors)))
	return nil
}

// WriteErrors writes the error collection as a JSON array
func (w *Writer) WriteErrors(records []types.ErrorRecord) error {
	if records == nil {
		records = []types.ErrorRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode errors: %w", err)
	}
	return w.writeText(filepath.Join(w.dir, ErrorsFile), string(data)+"\n")
}

// writeText writes through a temporary file so readers never see a
// partial document
func (w *Writer) writeText(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// FilePath returns the location of the report for file id
func FilePath(dir, id string) string {
	return filepath.Join(dir, FilesDir, filepath.FromSlash(id)+".md")
}

// DirPath returns the location of the summary for directory id. The root
// summary sits beside the architecture document, outside the dirs tree.
func DirPath(dir, id string) string {
	if id == types.RootID {
		return filepath.Join(dir, RootSummaryFile)
	}
	return filepath.Join(dir, DirsDir, filepath.FromSlash(id)+".md")
}

func fileDocument(src Source, id string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# File Analysis: %s\n\n", id)
	writeResult(&b, src, id)
	return b.String()
}

func dirDocument(src Source, d *walker.Directory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Directory Technical Summary: %s\n\n", d.ID)
	fmt.Fprintf(&b, "**Total Files:** %d\n", len(d.Files))
	fmt.Fprintf(&b, "**Subdirectories:** %d\n\n", len(d.Dirs))
	writeResult(&b, src, d.ID)
	return b.String()
}
