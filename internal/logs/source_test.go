package logs

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestStepPath(t *testing.T) {
	assert.Equal(t, "build/1_Set up job.txt", StepPath("build", 1, "Set up job"))
	assert.Equal(t, "build/3_Run actionscheckout@v4.txt", StepPath("build", 3, "Run actions/checkout@v4"))
}

func TestDirSourceOpen(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "build"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build", "2_Run make.txt"), []byte("hello\n"), 0o644))

	src := NewDirSource(dir)

	rc, err := src.Open("build", 2, "Run make")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(body))

	_, err = src.Open("build", 3, "Run tests")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestArchiveSourceOpen(t *testing.T) {
	data := buildArchive(t, map[string]string{
		"1_build.txt":                  "whole job log\n",
		"build/1_Set up job.txt":       "setup\n",
		"build/2_Run actionssetup.txt": "setup-go\n",
	})

	src, err := NewArchiveSource(data)
	require.NoError(t, err)
	assert.Equal(t, 3, src.Len())

	rc, err := src.Open("build", 2, "Run actions/setup")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "setup-go\n", string(body))

	_, err = src.Open("build", 9, "Post checkout")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestNewArchiveSourceInvalid(t *testing.T) {
	_, err := NewArchiveSource([]byte("not a zip"))
	assert.Error(t, err)
}

func TestLines(t *testing.T) {
	var got []string
	err := Lines(strings.NewReader("one\r\ntwo\n\nthree"), func(line string) {
		got = append(got, line)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "", "three"}, got)
}
