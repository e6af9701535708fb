// Package logs locates and reads the per-step log files of a workflow run.
package logs

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
)

// maxLineSize bounds a single log line. Longer lines fail the scan.
const maxLineSize = 1 << 20

// Source opens the raw log text of a step.
type Source interface {
	Open(job string, number int64, step string) (io.ReadCloser, error)
}

// StepPath returns the archive-relative path of a step's log file: "<job>/<number>_<step>.txt".
// Slashes in the step name are dropped, as the archive does.
func StepPath(job string, number int64, step string) string {
	return job + "/" + strconv.FormatInt(number, 10) + "_" + strings.ReplaceAll(step, "/", "") + ".txt"
}

// DirSource reads step logs from an extracted archive directory.
type DirSource struct {
	root string
}

// NewDirSource creates a source rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{root: dir}
}

// Open opens the step's log file. A missing file yields an error wrapping fs.ErrNotExist.
func (s *DirSource) Open(job string, number int64, step string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(StepPath(job, number, step))))
	if err != nil {
		return nil, fmt.Errorf("failed to open step log: %w", err)
	}
	return f, nil
}

// ArchiveSource reads step logs straight from a downloaded run log archive.
type ArchiveSource struct {
	files map[string]*zip.File
}

// NewArchiveSource indexes the zip archive held in data.
func NewArchiveSource(data []byte) (*ArchiveSource, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to read log archive: %w", err)
	}

	files := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		files[path.Clean(f.Name)] = f
	}
	return &ArchiveSource{files: files}, nil
}

// Open opens the step's log entry. A missing entry yields an error wrapping fs.ErrNotExist.
func (s *ArchiveSource) Open(job string, number int64, step string) (io.ReadCloser, error) {
	name := StepPath(job, number, step)
	f, ok := s.files[path.Clean(name)]
	if !ok {
		return nil, fmt.Errorf("failed to open step log %s: %w", name, fs.ErrNotExist)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open step log %s: %w", name, err)
	}
	return rc, nil
}

// Len returns the number of entries in the archive.
func (s *ArchiveSource) Len() int {
	return len(s.files)
}

// Lines calls fn for every line of r in order. Line terminators are not included.
func Lines(r io.Reader, fn func(line string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading step log: %w", err)
	}
	return nil
}
