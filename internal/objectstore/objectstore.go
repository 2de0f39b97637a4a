// Package objectstore provides tenant-scoped blob storage for raw uploads,
// validation error reports, drift artifacts, and other content-addressed
// byte blobs, generalizing pkg/blob/supabase_storage.go's TenantStorage
// tenant-key-namespacing pattern away from Supabase to a pluggable backend.
package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
)

// Client is the storage surface every pipeline stage that reads or writes
// an artifact depends on. Put returns the checksum of the stored bytes so
// callers can record it on the owning entity without a second hash pass.
type Client interface {
	Put(ctx context.Context, tenantID, key string, data []byte) (uri string, checksum string, err error)
	Get(ctx context.Context, tenantID, key string) ([]byte, error)
	Exists(ctx context.Context, tenantID, key string) (bool, error)
	Delete(ctx context.Context, tenantID, key string) error
}

// Checksum computes the content-addressing digest used by every Client
// implementation, mirroring internal/canon.SHA256Hex for raw byte blobs
// that are not run through canonical JSON encoding first.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// sanitizeKey prevents directory traversal and normalizes slashes, the way
// supabase_storage.go's sanitizeKey does for Supabase Storage keys.
func sanitizeKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	key = path.Clean(key)
	key = strings.ReplaceAll(key, "..", "_")
	return key
}

// tenantKey namespaces every object under its tenant, the same invariant
// pkg/blob/supabase_storage.go's TenantStorage.tenantKey enforces: no
// backend call should ever be able to read or write across tenants.
func tenantKey(tenantID, key string) string {
	return path.Join(tenantID, sanitizeKey(key))
}

// ErrNotFound is returned by Get when the key does not exist under the
// given tenant. Delete of a missing key succeeds and returns nil.
type ErrNotFound struct {
	Key string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("objectstore: object not found: %s", e.Key)
}
