package store

import (
	"os"
	"sync"

	"github.com/gravitational/trace"
	"github.com/peterbourgon/diskv/v3"
)

const (
	// TokenKey holds the saved OAuth credential.
	TokenKey = "token.json"
	// SnapshotKey holds the last computed list of unreplied emails.
	SnapshotKey = "integration.json"

	cacheSizeMaxBytes = 64 * 1024
	filePerm          = 0600
)

// Store is a flat key-value store for the little state the service keeps.
// Read and Erase return a NotFound error for keys that were never written.
type Store interface {
	Read(key string) ([]byte, error)
	Write(key string, value []byte) error
	Has(key string) bool
	Erase(key string) error
}

// DiskStore keeps every key as a file directly under its base directory.
// NB: racy across processes, no file locking.
type DiskStore struct {
	dv *diskv.Diskv
}

// NewDiskStore creates a store rooted at dir. The directory is created on first write.
func NewDiskStore(dir string) *DiskStore {
	// Simplest transform function: put all the data files into the base dir.
	flatTransform := func(s string) []string { return []string{} }

	return &DiskStore{dv: diskv.New(diskv.Options{
		BasePath:     dir,
		Transform:    flatTransform,
		CacheSizeMax: cacheSizeMaxBytes,
		FilePerm:     filePerm,
	})}
}

func (s *DiskStore) Read(key string) ([]byte, error) {
	b, err := s.dv.Read(key)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	return b, nil
}

func (s *DiskStore) Write(key string, value []byte) error {
	return trace.ConvertSystemError(s.dv.Write(key, value))
}

func (s *DiskStore) Has(key string) bool {
	return s.dv.Has(key)
}

func (s *DiskStore) Erase(key string) error {
	err := s.dv.Erase(key)
	if err != nil && os.IsNotExist(err) {
		return trace.NotFound("key %q not found", key)
	}
	return trace.ConvertSystemError(err)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Read(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, trace.NotFound("key %q not found", key)
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Write(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

func (s *MemoryStore) Erase(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return trace.NotFound("key %q not found", key)
	}
	delete(s.data, key)
	return nil
}
