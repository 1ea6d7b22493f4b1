package walker

import (
	"iter"
	"path"
	"sort"
	"time"

	"github.com/dshills/archdoc/pkg/types"
)

// SourceFile is a discovered file with its position in walk order
type SourceFile struct {
	ID      string // Normalized path relative to the root
	AbsPath string
	Dir     string // Identity of the containing directory
	Ordinal int    // Zero-based position in the flattened file order
	Size    int64
}

// Directory is a node of the project tree
type Directory struct {
	ID     string
	Depth  int
	Files  []string     // Child file identities, sorted by name
	Dirs   []*Directory // Child directories, sorted by name
	Parent *Directory
}

// Name returns the last path segment of the directory
func (d *Directory) Name() string {
	if d.ID == types.RootID {
		return types.RootID
	}
	return path.Base(d.ID)
}

// ChildIDs returns the identities of all direct children: files first, then
// subdirectories, each in their fixed order
func (d *Directory) ChildIDs() []string {
	ids := make([]string, 0, len(d.Files)+len(d.Dirs))
	ids = append(ids, d.Files...)
	for _, sub := range d.Dirs {
		ids = append(ids, sub.ID)
	}
	return ids
}

// EntryKind distinguishes files from directories in a walk sequence
type EntryKind int

const (
	EntryFile EntryKind = iota
	EntryDirectory
)

// Entry is one element of the walk sequence
type Entry struct {
	Kind EntryKind
	File *SourceFile
	Dir  *Directory
}

// ID returns the identity of the entry
func (e Entry) ID() string {
	if e.Kind == EntryFile {
		return e.File.ID
	}
	return e.Dir.ID
}

// Tree is the result of walking a project root
type Tree struct {
	Root   string // Absolute path of the project root
	Errors []types.ErrorRecord

	root   *Directory
	dirs   map[string]*Directory
	files  []SourceFile
	byID   map[string]int
	staged map[string]*SourceFile
}

func newTree(absRoot string) *Tree {
	root := &Directory{ID: types.RootID}
	return &Tree{
		Root:   absRoot,
		root:   root,
		dirs:   map[string]*Directory{types.RootID: root},
		byID:   make(map[string]int),
		staged: make(map[string]*SourceFile),
	}
}

func (t *Tree) addDirectory(id string) *Directory {
	if d, ok := t.dirs[id]; ok {
		return d
	}
	parent := t.addDirectory(types.ParentID(id))
	d := &Directory{ID: id, Depth: types.Depth(id), Parent: parent}
	parent.Dirs = append(parent.Dirs, d)
	t.dirs[id] = d
	return d
}

func (t *Tree) addFile(id, absPath string, size int64) {
	dir := t.addDirectory(types.ParentID(id))
	dir.Files = append(dir.Files, id)
	t.staged[id] = &SourceFile{ID: id, AbsPath: absPath, Dir: dir.ID, Size: size}
}

func (t *Tree) recordAccessError(id string, err error, at time.Time) {
	t.Errors = append(t.Errors, types.ErrorRecord{
		ID:        id,
		Attempt:   1,
		Kind:      types.ErrorKindAccess,
		Message:   err.Error(),
		Timestamp: at,
	})
}

// finish sorts children, prunes directories without source files and
// assigns ordinals in flattened pre-order
func (t *Tree) finish() {
	var prune func(d *Directory) bool
	prune = func(d *Directory) bool {
		sort.Strings(d.Files)
		sort.Slice(d.Dirs, func(i, j int) bool { return d.Dirs[i].ID < d.Dirs[j].ID })
		kept := d.Dirs[:0]
		for _, sub := range d.Dirs {
			if prune(sub) {
				kept = append(kept, sub)
			} else {
				delete(t.dirs, sub.ID)
			}
		}
		d.Dirs = kept
		return len(d.Files) > 0 || len(d.Dirs) > 0
	}
	prune(t.root)

	for d := range t.PreOrder() {
		for _, id := range d.Files {
			f := t.staged[id]
			f.Ordinal = len(t.files)
			t.byID[id] = f.Ordinal
			t.files = append(t.files, *f)
		}
	}
	t.staged = nil
}

// RootDir returns the root directory node
func (t *Tree) RootDir() *Directory {
	return t.root
}

// Files returns all source files in ordinal order
func (t *Tree) Files() []SourceFile {
	out := make([]SourceFile, len(t.files))
	copy(out, t.files)
	return out
}

// FileCount returns the number of source files
func (t *Tree) FileCount() int {
	return len(t.files)
}

// File looks up a source file by identity
func (t *Tree) File(id string) (SourceFile, bool) {
	i, ok := t.byID[id]
	if !ok {
		return SourceFile{}, false
	}
	return t.files[i], true
}

// Directory looks up a directory by identity
func (t *Tree) Directory(id string) (*Directory, bool) {
	d, ok := t.dirs[id]
	return d, ok
}

// DirectoryCount returns the number of directories, root included
func (t *Tree) DirectoryCount() int {
	return len(t.dirs)
}

// PreOrder yields directories parent-first
func (t *Tree) PreOrder() iter.Seq[*Directory] {
	return func(yield func(*Directory) bool) {
		var visit func(d *Directory) bool
		visit = func(d *Directory) bool {
			if !yield(d) {
				return false
			}
			for _, sub := range d.Dirs {
				if !visit(sub) {
					return false
				}
			}
			return true
		}
		visit(t.root)
	}
}

// PostOrder yields directories children-first
func (t *Tree) PostOrder() iter.Seq[*Directory] {
	return func(yield func(*Directory) bool) {
		var visit func(d *Directory) bool
		visit = func(d *Directory) bool {
			for _, sub := range d.Dirs {
				if !visit(sub) {
					return false
				}
			}
			return yield(d)
		}
		visit(t.root)
	}
}

// Sequence yields every file and directory in walk order: a directory's
// files, then its subdirectories recursively, then the directory itself once
// its whole subtree has been produced. File entries appear in ordinal order.
func (t *Tree) Sequence() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		var visit func(d *Directory) bool
		visit = func(d *Directory) bool {
			for _, id := range d.Files {
				f := t.files[t.byID[id]]
				if !yield(Entry{Kind: EntryFile, File: &f}) {
					return false
				}
			}
			for _, sub := range d.Dirs {
				if !visit(sub) {
					return false
				}
			}
			return yield(Entry{Kind: EntryDirectory, Dir: d})
		}
		visit(t.root)
	}
}
