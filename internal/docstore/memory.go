package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/claimdesk/expense-ledger/internal/domain/errors"
)

// MemoryStore is an in-memory Store implementation, safe for concurrent use.
// It backs tests and local development runs.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]json.RawMessage
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]json.RawMessage),
	}
}

func (m *MemoryStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[path]
	if !ok {
		return nil, errors.NewNotFoundError("document not found").WithDetail("path", path)
	}
	copied := make(json.RawMessage, len(doc))
	copy(copied, doc)
	return copied, nil
}

func (m *MemoryStore) Put(ctx context.Context, path string, doc json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make(json.RawMessage, len(doc))
	copy(copied, doc)
	m.docs[path] = copied
	return nil
}

func (m *MemoryStore) List(ctx context.Context, dir string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := dir + "/"
	var paths []string
	for path := range m.docs {
		if strings.HasPrefix(path, prefix) && !strings.Contains(path[len(prefix):], "/") {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

var _ Store = (*MemoryStore)(nil)
