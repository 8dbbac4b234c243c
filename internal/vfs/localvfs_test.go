package vfs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ajj/internal/vfs"
)

func TestLocalLoadAndTimestamp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.html"), []byte("hi"), 0o644))

	l := vfs.NewLocal(dir)
	data, ts, err := l.Load("a.html")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	current, err := l.IsCurrent("a.html", ts)
	require.NoError(t, err)
	assert.True(t, current)
}

func TestLocalIsCurrentAfterRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.html")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	l := vfs.NewLocal(dir)
	_, ts, err := l.Load("a.html")
	require.NoError(t, err)

	future := ts.Add(1)
	require.NoError(t, os.Chtimes(path, future, future))
	current, err := l.IsCurrent("a.html", ts)
	require.NoError(t, err)
	assert.False(t, current)
}

func TestLocalRejectsEscapingPath(t *testing.T) {
	dir := t.TempDir()
	l := vfs.NewLocal(dir)
	_, _, err := l.Load("../../etc/passwd")
	require.Error(t, err)
}

func TestLocalMissingFile(t *testing.T) {
	dir := t.TempDir()
	l := vfs.NewLocal(dir)
	_, _, err := l.Load("nope.html")
	require.Error(t, err)
}
