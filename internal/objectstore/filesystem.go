package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemClient stores objects as plain files under a root directory,
// one tenant-prefixed path per key. This is the default local/dev backend,
// the filesystem analogue of pkg/blob/supabase_storage.go's bucket model.
type FilesystemClient struct {
	root string
}

func NewFilesystemClient(root string) *FilesystemClient {
	return &FilesystemClient{root: root}
}

func (f *FilesystemClient) path(tenantID, key string) string {
	return filepath.Join(f.root, tenantKey(tenantID, key))
}

func (f *FilesystemClient) Put(ctx context.Context, tenantID, key string, data []byte) (string, string, error) {
	p := f.path(tenantID, key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", "", fmt.Errorf("objectstore: mkdir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", "", fmt.Errorf("objectstore: write: %w", err)
	}
	return "file://" + p, Checksum(data), nil
}

func (f *FilesystemClient) Get(ctx context.Context, tenantID, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(tenantID, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &ErrNotFound{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("objectstore: read: %w", err)
	}
	return data, nil
}

func (f *FilesystemClient) Exists(ctx context.Context, tenantID, key string) (bool, error) {
	_, err := os.Stat(f.path(tenantID, key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("objectstore: stat: %w", err)
	}
	return true, nil
}

func (f *FilesystemClient) Delete(ctx context.Context, tenantID, key string) error {
	err := os.Remove(f.path(tenantID, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("objectstore: remove: %w", err)
	}
	return nil
}
