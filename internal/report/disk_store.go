package report

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"worldeconomics/internal/safeio"
)

// DiskStore persists files under root/<run_id>/<path>.
type DiskStore struct {
	fs *safeio.Dir
}

func NewDiskStore(root string) (*DiskStore, error) {
	sfs, err := safeio.OpenDir(root)
	if err != nil {
		return nil, fmt.Errorf("report store: %w", err)
	}
	return &DiskStore{fs: sfs}, nil
}

// Root is the absolute storage directory.
func (s *DiskStore) Root() string { return s.fs.Root() }

func (s *DiskStore) Put(ctx context.Context, runID, p string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runID, p, err := cleanKey(runID, p)
	if err != nil {
		return err
	}
	_, err = s.fs.WriteFile(filepath.FromSlash(objectKey(runID, p)), content)
	return err
}

func (s *DiskStore) Get(ctx context.Context, runID, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runID, p, err := cleanKey(runID, p)
	if err != nil {
		return nil, err
	}
	b, err := s.fs.ReadFile(filepath.FromSlash(objectKey(runID, p)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *DiskStore) GetURL(context.Context, string, string) (string, error) {
	return "", nil
}

func (s *DiskStore) List(_ context.Context, runID string) ([]string, error) {
	runID, err := cleanRunID(runID)
	if err != nil {
		return nil, err
	}
	files, err := s.fs.Files(runID)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (s *DiskStore) Runs(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.fs.Root())
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
