// Package transport moves the durable store between its long-lived home
// and the local filesystem. A run downloads the store once at start and
// uploads it once at end; a crash mid-run leaves the last uploaded state
// untouched.
package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/service"
)

const storeFilename = "bidwatch.db"

// LocalTransport keeps the durable store in a local directory. Uploads are
// atomic: the store is copied to a temp file and renamed into place.
type LocalTransport struct {
	homeDir string
	workDir string
}

// NewLocalTransport creates a local transport. homeDir is the store's
// long-lived location; workDir receives the working copy for a run.
func NewLocalTransport(homeDir, workDir string) *LocalTransport {
	return &LocalTransport{
		homeDir: homeDir,
		workDir: workDir,
	}
}

// Download copies the durable store into the working directory and returns
// the local path. A missing store is not an error: first runs start with
// an empty database at the returned path.
func (t *LocalTransport) Download(_ context.Context) (string, error) {
	if err := os.MkdirAll(t.workDir, 0750); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrStoreDownload, err)
	}

	src := filepath.Join(t.homeDir, storeFilename)
	dst := filepath.Join(t.workDir, storeFilename)

	if _, err := os.Stat(src); os.IsNotExist(err) {
		return dst, nil
	}

	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrStoreDownload, err)
	}
	return dst, nil
}

// Upload copies the working store back to its long-lived home.
func (t *LocalTransport) Upload(_ context.Context, localPath string) error {
	if err := os.MkdirAll(t.homeDir, 0750); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUpload, err)
	}

	dst := filepath.Join(t.homeDir, storeFilename)
	if err := copyFile(localPath, dst); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUpload, err)
	}
	return nil
}

// copyFile writes src's contents to a temp file next to dst and renames it
// into place, so a partially written store is never observable.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".store-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, dst)
}

var _ service.StoreTransport = (*LocalTransport)(nil)
