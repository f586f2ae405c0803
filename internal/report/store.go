// Package report stores run outputs keyed by run id and tracks which run
// holds the latest successful report.
package report

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Store persists run files under <run_id>/<path>. Put fully replaces any
// previous content at the same key.
type Store interface {
	Put(ctx context.Context, runID, path string, content []byte) error
	Get(ctx context.Context, runID, path string) ([]byte, error)
	// GetURL returns a direct download URL, or "" when the backend has none.
	GetURL(ctx context.Context, runID, path string) (string, error)
	List(ctx context.Context, runID string) ([]string, error)
}

// RunLister is implemented by stores that can enumerate run ids.
type RunLister interface {
	Runs(ctx context.Context) ([]string, error)
}

var (
	ErrNotFound   = errors.New("report: not found")
	ErrInvalidKey = errors.New("report: invalid key")
)

// cleanKey validates and normalizes a run id and a slash-separated path.
func cleanKey(runID, p string) (string, string, error) {
	runID, err := cleanRunID(runID)
	if err != nil {
		return "", "", err
	}
	p = strings.TrimLeft(strings.TrimSpace(strings.ReplaceAll(p, `\`, "/")), "/")
	if p == "" {
		return "", "", fmt.Errorf("%w: path is required", ErrInvalidKey)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", "", fmt.Errorf("%w: path %q", ErrInvalidKey, p)
	}
	return runID, clean, nil
}

func cleanRunID(runID string) (string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return "", fmt.Errorf("%w: run id is required", ErrInvalidKey)
	}
	if runID == "." || runID == ".." || strings.ContainsAny(runID, `/\`) {
		return "", fmt.Errorf("%w: run id %q", ErrInvalidKey, runID)
	}
	return runID, nil
}

func objectKey(runID, p string) string {
	return runID + "/" + p
}
