package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MemoryStorage keeps saved assets in a map, for tests and local runs
// without an object store.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string]memoryObject

	// FailWith, when set, is returned by Save instead of storing the asset.
	FailWith error
}

type memoryObject struct {
	contentType string
	data        []byte
}

// NewMemoryStorage returns an empty in-memory asset store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]memoryObject)}
}

// Save buffers the asset and returns a mem:// URL for it.
func (s *MemoryStorage) Save(_ context.Context, name, contentType string, r io.Reader) (string, error) {
	key := strings.TrimLeft(name, "/")
	if key == "" {
		return "", fmt.Errorf("memory storage: empty key")
	}

	s.mu.Lock()
	fail := s.FailWith
	s.mu.Unlock()
	if fail != nil {
		return "", fail
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("memory storage read %s: %w", key, err)
	}

	s.mu.Lock()
	s.objects[key] = memoryObject{contentType: contentType, data: data}
	s.mu.Unlock()

	return "mem://" + key, nil
}

// Object returns the stored bytes and content type for a key.
func (s *MemoryStorage) Object(key string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, "", false
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, obj.contentType, true
}

// Len reports how many assets were saved.
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
