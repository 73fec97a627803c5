// Package fs stores raw document snapshots on the local filesystem.
package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fwojciec/autoprobe"
)

var _ autoprobe.SnapshotStore = (*SnapshotStore)(nil)

// SnapshotStore implements autoprobe.SnapshotStore with one file per page
// under a directory per task. Files are written to a temporary name and
// renamed into place, so a reader never sees a partial snapshot.
type SnapshotStore struct {
	baseDir string
}

// NewSnapshotStore creates a SnapshotStore rooted at baseDir. The directory
// is created on first save.
func NewSnapshotStore(baseDir string) *SnapshotStore {
	return &SnapshotStore{baseDir: baseDir}
}

// Save writes content for page n of a task and returns its reference, a
// slash-separated path relative to the base directory.
func (s *SnapshotStore) Save(ctx context.Context, taskID string, n int, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if taskID == "" || strings.ContainsAny(taskID, `/\`) || taskID == "." || taskID == ".." {
		return "", autoprobe.Errorf(autoprobe.EINVALID, "invalid task id %q", taskID)
	}
	if n < 0 {
		return "", autoprobe.Errorf(autoprobe.EINVALID, "invalid page number %d", n)
	}

	ref := path.Join(taskID, fmt.Sprintf("page-%04d.html", n))
	full := filepath.Join(s.baseDir, filepath.FromSlash(ref))
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", err
	}
	return ref, nil
}

// Load returns the snapshot stored under ref.
func (s *SnapshotStore) Load(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !iofs.ValidPath(ref) || ref == "." {
		return "", autoprobe.Errorf(autoprobe.EINVALID, "invalid snapshot reference %q", ref)
	}

	b, err := os.ReadFile(filepath.Join(s.baseDir, filepath.FromSlash(ref)))
	if errors.Is(err, iofs.ErrNotExist) {
		return "", autoprobe.Errorf(autoprobe.ENOTFOUND, "snapshot not found")
	} else if err != nil {
		return "", err
	}
	return string(b), nil
}

// DeleteTask removes every snapshot of a task. Missing tasks are ignored.
func (s *SnapshotStore) DeleteTask(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !iofs.ValidPath(taskID) || strings.Contains(taskID, "/") || taskID == "." {
		return autoprobe.Errorf(autoprobe.EINVALID, "invalid task id %q", taskID)
	}
	return os.RemoveAll(filepath.Join(s.baseDir, taskID))
}
