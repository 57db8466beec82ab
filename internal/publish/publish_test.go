package publish

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func readDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestWrite_CreatesAndReplaces(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	require.NoError(t, Write(dir, []File{
		{Name: "clash.yaml", Data: []byte("v1")},
		{Name: "nodes.json", Data: []byte("[]")},
	}))
	require.ElementsMatch(t, []string{"clash.yaml", "nodes.json"}, readDir(t, dir))

	require.NoError(t, Write(dir, []File{{Name: "clash.yaml", Data: []byte("v2")}}))
	got, err := os.ReadFile(filepath.Join(dir, "clash.yaml"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(got))
	require.ElementsMatch(t, []string{"clash.yaml", "nodes.json"}, readDir(t, dir))
}

func TestWrite_FailureKeepsPreviousOutputs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, []File{
		{Name: "clash.yaml", Data: []byte("old clash")},
		{Name: "subscription.txt", Data: []byte("old sub")},
	}))

	orig := writeFile
	t.Cleanup(func() { writeFile = orig })
	calls := 0
	writeFile = func(path string, data []byte, perm os.FileMode) error {
		calls++
		if calls == 2 {
			return errors.New("disk full")
		}
		return orig(path, data, perm)
	}

	err := Write(dir, []File{
		{Name: "clash.yaml", Data: []byte("new clash")},
		{Name: "subscription.txt", Data: []byte("new sub")},
	})
	var pe *Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "PUBLISH_FAILED", pe.AppError.Code)
	require.Equal(t, "subscription.txt", pe.AppError.URL)

	for name, want := range map[string]string{"clash.yaml": "old clash", "subscription.txt": "old sub"} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}
	require.ElementsMatch(t, []string{"clash.yaml", "subscription.txt"}, readDir(t, dir), "staging dir must be removed")
}

func TestWrite_RenameFailureRestoresPreviousSet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, []File{
		{Name: "nodes.json", Data: []byte("old nodes")},
		{Name: "clash.yaml", Data: []byte("old clash")},
		{Name: "clash_meta.yaml", Data: []byte("old meta")},
	}))

	orig := rename
	t.Cleanup(func() { rename = orig })
	calls := 0
	rename = func(from, to string) error {
		calls++
		if calls == 3 {
			return errors.New("rename: input/output error")
		}
		return orig(from, to)
	}

	err := Write(dir, []File{
		{Name: "nodes.json", Data: []byte("new nodes")},
		{Name: "clash.yaml", Data: []byte("new clash")},
		{Name: "clash_meta.yaml", Data: []byte("new meta")},
		{Name: "subscription.txt", Data: []byte("new sub")},
	})
	var pe *Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "clash_meta.yaml", pe.AppError.URL)

	for name, want := range map[string]string{
		"nodes.json":      "old nodes",
		"clash.yaml":      "old clash",
		"clash_meta.yaml": "old meta",
	} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		require.Equal(t, want, string(got), name)
	}
	require.ElementsMatch(t, []string{"nodes.json", "clash.yaml", "clash_meta.yaml"}, readDir(t, dir))
}

func TestWrite_RejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	for _, files := range [][]File{
		nil,
		{{Name: ""}},
		{{Name: "../escape"}},
		{{Name: "a/b"}},
		{{Name: ".staging-x"}},
		{{Name: "a"}, {Name: "a"}},
	} {
		err := Write(dir, files)
		var pe *Error
		require.ErrorAs(t, err, &pe, "%v", files)
		require.Equal(t, "INVALID_ARGUMENT", pe.AppError.Code)
	}
	require.Empty(t, readDir(t, dir))

	require.Error(t, Write("", []File{{Name: "a"}}))
}

func TestWrite_DirIsAFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	err := Write(path, []File{{Name: "clash.yaml", Data: []byte("v")}})
	var pe *Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "PUBLISH_FAILED", pe.AppError.Code)
}
