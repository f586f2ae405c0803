// Package safeio confines file access to one directory tree.
package safeio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var (
	ErrEmptyPath = errors.New("safeio: empty path")
	ErrTraversal = errors.New("safeio: path escapes root")
)

// Dir is a directory that relative paths cannot leave, either lexically or
// through symlinks.
type Dir struct {
	root string
}

// OpenDir creates root when missing and binds a Dir to its resolved path.
func OpenDir(root string) (*Dir, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("safeio: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, err
	}
	resolved, err = filepath.Abs(resolved)
	if err != nil {
		return nil, err
	}
	return &Dir{root: resolved}, nil
}

// Root is the absolute, symlink-free root.
func (d *Dir) Root() string { return d.root }

// ReadFile reads name relative to the root.
func (d *Dir) ReadFile(name string) ([]byte, error) {
	p, err := d.locate(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// WriteFile replaces name with data, creating parents. It returns the
// absolute path written.
func (d *Dir) WriteFile(name string, data []byte) (string, error) {
	p, err := d.locate(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

// Files lists regular files below sub, slash-separated and sorted. A missing
// sub is an empty listing.
func (d *Dir) Files(sub string) ([]string, error) {
	base, err := d.locate(sub)
	if err != nil {
		return nil, err
	}
	var out []string
	err = filepath.WalkDir(base, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !e.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err == nil {
			out = append(out, filepath.ToSlash(rel))
		}
		return err
	})
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	slices.Sort(out)
	return out, nil
}

// locate maps name to an absolute path under the root. The longest existing
// prefix of the path is resolved through symlinks and must stay inside.
func (d *Dir) locate(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyPath
	}
	if !filepath.IsLocal(name) {
		return "", ErrTraversal
	}
	target := filepath.Join(d.root, name)

	existing, rest := target, ""
	for existing != d.root {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = filepath.Dir(existing)
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	if !within(d.root, resolved) {
		return "", fmt.Errorf("%w: %s resolves to %s", ErrTraversal, name, resolved)
	}
	return filepath.Join(resolved, rest), nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && (rel == "." || filepath.IsLocal(rel))
}
