package walker

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/archdoc/pkg/types"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func sequenceIDs(tree *Tree) []string {
	var ids []string
	for e := range tree.Sequence() {
		ids = append(ids, e.ID())
	}
	return ids
}

func TestWalkScenarioTree(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "b.cs", "class B {}")
	writeFile(t, dir, "a.cs", "class A {}")
	writeFile(t, dir, "Sub/c.cs", "class C {}")

	tree, err := Walk(dir, DefaultOptions())
	require.NoError(t, err)

	files := tree.Files()
	require.Len(t, files, 3)
	assert.Equal(t, "a.cs", files[0].ID)
	assert.Equal(t, "b.cs", files[1].ID)
	assert.Equal(t, "Sub/c.cs", files[2].ID)
	for i, f := range files {
		assert.Equal(t, i, f.Ordinal)
	}

	root := tree.RootDir()
	assert.Equal(t, []string{"a.cs", "b.cs"}, root.Files)
	require.Len(t, root.Dirs, 1)
	assert.Equal(t, "Sub", root.Dirs[0].ID)
	assert.Equal(t, 1, root.Dirs[0].Depth)
	assert.Equal(t, []string{"a.cs", "b.cs", "Sub"}, root.ChildIDs())

	assert.Equal(t, []string{"a.cs", "b.cs", "Sub/c.cs", "Sub", types.RootID}, sequenceIDs(tree))
	assert.Empty(t, tree.Errors)
}

func TestWalkDeterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "z.go", "package z")
	writeFile(t, dir, "m/n/deep.go", "package n")
	writeFile(t, dir, "m/a.go", "package m")
	writeFile(t, dir, "b/b.go", "package b")
	writeFile(t, dir, "a.go", "package a")

	first, err := Walk(dir, DefaultOptions())
	require.NoError(t, err)
	second, err := Walk(dir, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, sequenceIDs(first), sequenceIDs(second))
	assert.Equal(t, first.Files(), second.Files())

	var ordinals []string
	for _, f := range first.Files() {
		ordinals = append(ordinals, f.ID)
	}
	assert.Equal(t, []string{"a.go", "z.go", "b/b.go", "m/a.go", "m/n/deep.go"}, ordinals)

	var pre, post []string
	for d := range first.PreOrder() {
		pre = append(pre, d.ID)
	}
	for d := range first.PostOrder() {
		post = append(post, d.ID)
	}
	assert.Equal(t, []string{".", "b", "m", "m/n"}, pre)
	assert.Equal(t, []string{"b", "m/n", "m", "."}, post)
}

func TestWalkFilters(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main")
	writeFile(t, dir, "readme.txt", "hello")
	writeFile(t, dir, ".hidden.go", "package hidden")
	writeFile(t, dir, "node_modules/pkg.js", "x")
	writeFile(t, dir, ".git/config.go", "x")
	writeFile(t, dir, "technical_analysis/old.go", "x")
	writeFile(t, dir, "generated/gen.go", "package gen")
	writeFile(t, dir, "docs/only.txt", "no source here")
	writeFile(t, dir, ".gitignore", "generated/\n")

	tree, err := Walk(dir, DefaultOptions())
	require.NoError(t, err)

	var ids []string
	for _, f := range tree.Files() {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"main.go"}, ids)

	_, ok := tree.Directory("docs")
	assert.False(t, ok, "directories without source files are pruned")
	assert.Equal(t, 1, tree.DirectoryCount())
}

func TestWalkExtensionsAndSize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.cs", "small")
	writeFile(t, dir, "big.cs", "this file is larger than the limit")
	writeFile(t, dir, "c.go", "package c")

	tree, err := Walk(dir, Options{Extensions: []string{".CS"}, MaxFileSize: 10})
	require.NoError(t, err)

	files := tree.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "a.cs", files[0].ID)
	assert.Equal(t, int64(5), files[0].Size)

	f, ok := tree.File("a.cs")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(tree.Root, "a.cs"), f.AbsPath)
}

func TestWalkRecordsAccessErrors(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "ok.go", "package ok")
	writeFile(t, dir, "locked/hidden.go", "package locked")
	locked := filepath.Join(dir, "locked")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { _ = os.Chmod(locked, 0755) })

	tree, err := Walk(dir, DefaultOptions())
	require.NoError(t, err)

	require.Len(t, tree.Errors, 1)
	assert.Equal(t, "locked", tree.Errors[0].ID)
	assert.Equal(t, types.ErrorKindAccess, tree.Errors[0].Kind)
	assert.Equal(t, 1, tree.FileCount())
}

func TestWalkRootErrors(t *testing.T) {
	t.Parallel()

	_, err := Walk(filepath.Join(t.TempDir(), "missing"), DefaultOptions())
	assert.Error(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "file.go", "package f")
	_, err = Walk(filepath.Join(dir, "file.go"), DefaultOptions())
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestSequenceStopsEarly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a")
	writeFile(t, dir, "b.go", "package a")

	tree, err := Walk(dir, DefaultOptions())
	require.NoError(t, err)

	var seen []string
	for e := range tree.Sequence() {
		seen = append(seen, e.ID())
		break
	}
	assert.Equal(t, []string{"a.go"}, seen)
	assert.True(t, slices.Contains(sequenceIDs(tree), types.RootID))
}

func TestPreprocess(t *testing.T) {
	src := "using System;\n// full line comment\n\n\nclass A { // trailing\n    string u = \"http://example.com\";\n#region Fields\n}\n"
	got := Preprocess(src)
	want := "using System;\nclass A {\n    string u = \"http://example.com\";\n#region Fields\n}"
	assert.Equal(t, want, got)
}

func TestPreprocessCommentAfterString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"comment after url", "var u = \"http://x\"; // note", "var u = \"http://x\";"},
		{"two urls then comment", "f(\"a://b\", \"c://d\") // call", "f(\"a://b\", \"c://d\")"},
		{"url without comment", "var u = \"http://x\";", "var u = \"http://x\";"},
		{"escaped quote", "s = \"a\\\"//b\" // c", "s = \"a\\\"//b\""},
		{"comment only after code", "x = 1 // a // b", "x = 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Preprocess(tt.in))
		})
	}
}
