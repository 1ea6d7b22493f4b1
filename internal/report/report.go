// Package report assembles the whole-project architecture document from
// stored results and writes every run output to disk.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/archdoc/internal/walker"
	"github.com/dshills/archdoc/pkg/types"
)

// DefaultTitle is used when Options.Title is empty
const DefaultTitle = "Technical Architecture"

// Source provides the results and errors a report is built from
type Source interface {
	Get(id string) (types.AnalysisResult, bool)
	Errors() []types.ErrorRecord
}

// Options controls the report preamble
type Options struct {
	Title   string
	Context string // Framework context document, reproduced verbatim
}

// Report is the assembled architecture document
type Report struct {
	Title    string
	Markdown string
	Errors   []types.ErrorRecord

	Files             int
	Directories       int
	FailedFiles       int
	FailedDirectories int
}

// Build emits the project overview, when one is stored, then walks tree in
// pre-order and concatenates every directory summary followed by the
// reports of its files. It reads only from src and does not
// depend on the clock, so equal inputs give byte-identical output.
func Build(tree *walker.Tree, src Source, opts Options) *Report {
	title := opts.Title
	if title == "" {
		title = DefaultTitle
	}
	rep := &Report{Title: title}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if ctx := strings.TrimSpace(opts.Context); ctx != "" {
		fmt.Fprintf(&b, "## Framework Context\n\n%s\n\n", ctx)
	}
	if _, ok := src.Get(types.ProjectID); ok {
		b.WriteString("## Project Overview\n\n")
		writeResult(&b, src, types.ProjectID)
		b.WriteString("\n")
	}
	b.WriteString("## Code Structure Analysis\n")

	for d := range tree.PreOrder() {
		rep.Directories++
		fmt.Fprintf(&b, "\n<!-- dir: %s depth=%d -->\n", d.ID, d.Depth)
		fmt.Fprintf(&b, "%s %s\n\n", heading(d.Depth), dirTitle(d))
		if !writeResult(&b, src, d.ID) {
			rep.FailedDirectories++
		}

		for _, id := range d.Files {
			rep.Files++
			depth := types.Depth(id)
			fmt.Fprintf(&b, "\n<!-- file: %s depth=%d -->\n", id, depth)
			fmt.Fprintf(&b, "%s %s\n\n", heading(depth), id)
			if !writeResult(&b, src, id) {
				rep.FailedFiles++
			}
		}
	}

	rep.Markdown = b.String()
	rep.Errors = CollectErrors(tree, src)
	return rep
}

// heading returns the markdown heading prefix for a tree depth.
// The root sits at level 3 below the document and section titles.
func heading(depth int) string {
	return strings.Repeat("#", min(depth+3, 6))
}

func dirTitle(d *walker.Directory) string {
	if d.ID == types.RootID {
		return "Directory: . (project root)"
	}
	return "Directory: " + d.ID
}

// writeResult emits the text of id, or its failure marker, and reports
// whether a Success was found
func writeResult(b *strings.Builder, src Source, id string) bool {
	r, ok := src.Get(id)
	switch {
	case !ok:
		b.WriteString(Marker(types.ErrorKindNotAnalyzed, "no result"))
	case r.Succeeded():
		if text := strings.TrimSpace(r.Text); text != "" {
			b.WriteString(text)
		} else {
			b.WriteString("_No content._")
		}
	default:
		b.WriteString(Marker(r.ErrorKind, r.Message))
	}
	b.WriteString("\n")
	return ok && r.Succeeded()
}

// Marker renders the inline marker written in place of a failed result
func Marker(kind types.ErrorKind, msg string) string {
	return fmt.Sprintf("[FAILED: %s - %s]", kind, msg)
}

// CollectErrors returns the error collection of a run: every recorded
// error plus one derived record per Failed result in tree, or Failed
// project overview, that has no record of its own. Records are sorted by path, then attempt.
func CollectErrors(tree *walker.Tree, src Source) []types.ErrorRecord {
	records := src.Errors()
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		seen[rec.ID] = struct{}{}
	}

	derive := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		r, ok := src.Get(id)
		if !ok || r.Succeeded() {
			return
		}
		records = append(records, types.ErrorRecord{
			ID:        r.ID,
			Attempt:   r.Attempts,
			Kind:      r.ErrorKind,
			Message:   r.Message,
			Timestamp: r.CompletedAt,
			RunID:     r.RunID,
		})
		seen[id] = struct{}{}
	}

	derive(types.ProjectID)
	for d := range tree.PreOrder() {
		derive(d.ID)
		for _, id := range d.Files {
			derive(id)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ID != records[j].ID {
			return records[i].ID < records[j].ID
		}
		if records[i].Attempt != records[j].Attempt {
			return records[i].Attempt < records[j].Attempt
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records
}
