package pipeline

import (
	"context"
	"fmt"

	"worldeconomics/internal/safeio"
)

// DirSink writes every output file into one flat directory, ignoring the run
// id. Concurrent runs sharing a directory overwrite each other's files.
type DirSink struct {
	fs *safeio.Dir
}

// NewDirSink roots a sink at dir, creating it if needed.
func NewDirSink(dir string) (*DirSink, error) {
	fs, err := safeio.OpenDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pipeline: output dir: %w", err)
	}
	return &DirSink{fs: fs}, nil
}

// Dir is the absolute output directory.
func (s *DirSink) Dir() string { return s.fs.Root() }

func (s *DirSink) Persist(ctx context.Context, _ string, file, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.fs.WriteFile(file, []byte(text))
}

// ReadFile returns a previously persisted output.
func (s *DirSink) ReadFile(file string) (string, error) {
	b, err := s.fs.ReadFile(file)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
