// Package blob resolves attachment references to their stored bytes.
//
// The ledger records attachments only as name+path references
// (ledger.AttachmentRef); this package owns retrieval. The export
// aggregator fetches through the Storage interface and degrades a
// failed fetch into a missing-item note instead of failing the run.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// Storage stores and retrieves attachment bytes by path.
type Storage interface {
	// Put stores the object under the given path.
	Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error

	// Fetch returns a reader for the stored object. The caller closes
	// it. A missing or unreachable object returns an error the caller
	// can classify with ledger.ErrExternalResource.
	Fetch(ctx context.Context, path string) (io.ReadCloser, error)
}

// =============================================================================
// MEMORY STORAGE - for tests and dev
// =============================================================================

// Memory keeps objects in a map. Test double for Storage.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// FailPaths lists paths whose Fetch should fail, to exercise the
	// export's missing-items handling.
	FailPaths map[string]bool
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte), FailPaths: make(map[string]bool)}
}

func (m *Memory) Put(_ context.Context, path string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = data
	return nil
}

func (m *Memory) Fetch(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailPaths[path] {
		return nil, fmt.Errorf("fetch %s: storage unavailable", path)
	}
	data, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("fetch %s: object not found", path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

var _ Storage = (*Memory)(nil)
