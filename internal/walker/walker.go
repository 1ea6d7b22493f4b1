// Package walker enumerates a project tree in a deterministic order.
package walker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/dshills/archdoc/pkg/types"
)

// DefaultExtensions lists the source extensions analysed when none are configured
var DefaultExtensions = []string{
	".cs", ".go", ".py", ".java", ".kt", ".js", ".ts", ".tsx", ".jsx",
	".c", ".h", ".cc", ".cpp", ".hpp", ".rs", ".rb", ".php", ".swift", ".scala", ".lua",
}

var skipDirs = map[string]struct{}{
	"__pycache__":        {},
	"node_modules":       {},
	"vendor":             {},
	"venv":               {},
	"build":              {},
	"dist":               {},
	"bin":                {},
	"obj":                {},
	"Library":            {},
	"Temp":               {},
	"technical_analysis": {},
}

// ErrNotDirectory is returned when the walk root is not a directory
var ErrNotDirectory = errors.New("walk root is not a directory")

// Options controls which entries the walker includes
type Options struct {
	Extensions   []string // File extensions to include (default: DefaultExtensions)
	ExcludeDirs  []string // Extra directory names to skip
	MaxFileSize  int64    // Skip files larger than this many bytes (0: no limit)
	UseGitignore bool     // Honour the root .gitignore
}

// DefaultOptions returns the options used when none are supplied
func DefaultOptions() Options {
	return Options{
		Extensions:   DefaultExtensions,
		UseGitignore: true,
	}
}

// Walk enumerates root and returns its source tree.
// Unreadable entries are recorded in Tree.Errors and skipped; only an
// unreadable root is fatal.
func Walk(root string, opts Options) (*Tree, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, absRoot)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	extSet := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		extSet[strings.ToLower(e)] = struct{}{}
	}
	excluded := make(map[string]struct{}, len(opts.ExcludeDirs))
	for _, d := range opts.ExcludeDirs {
		excluded[d] = struct{}{}
	}

	var gi *ignore.GitIgnore
	if opts.UseGitignore {
		gi = loadGitignore(absRoot)
	}

	t := newTree(absRoot)
	now := time.Now()

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		id := types.NormalizeID(rel)

		if err != nil {
			if path == absRoot {
				return err
			}
			t.recordAccessError(id, err, now)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()

		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if _, skip := excluded[name]; skip {
				return filepath.SkipDir
			}
			if gi != nil && (gi.MatchesPath(id) || gi.MatchesPath(id+"/")) {
				return filepath.SkipDir
			}
			t.addDirectory(id)
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		if _, ok := extSet[strings.ToLower(filepath.Ext(name))]; !ok {
			return nil
		}

		if gi != nil && gi.MatchesPath(id) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			t.recordAccessError(id, err, now)
			return nil
		}
		if opts.MaxFileSize > 0 && fi.Size() > opts.MaxFileSize {
			return nil
		}

		t.addFile(id, path, fi.Size())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", absRoot, err)
	}

	t.finish()
	return t, nil
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
