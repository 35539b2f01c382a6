package apikey

import (
	"context"
	"errors"
	"sync"
)

// ErrRecordNotFound is returned by Store.Get when no record exists for an id.
var ErrRecordNotFound = errors.New("api key record not found")

// Store is the durable map of key id to Record behind the Manager.
//
// Implementations must return ErrRecordNotFound from Get for unknown ids
// and report any other failure (I/O, connectivity, encoding of writes) as
// an error. Entries that cannot be decoded on read are skipped by GetAll
// and reported as ErrRecordNotFound by Get.
type Store interface {
	// GetAll returns every record keyed by id.
	GetAll(ctx context.Context) (map[string]*Record, error)

	// SetAll replaces the whole content of the store.
	SetAll(ctx context.Context, records map[string]*Record) error

	// Get returns a single record.
	Get(ctx context.Context, keyID string) (*Record, error)

	// Set inserts or replaces a single record.
	Set(ctx context.Context, keyID string, record *Record) error

	// Delete removes a record and reports whether it existed.
	Delete(ctx context.Context, keyID string) (bool, error)
}

// MemoryStore is an in-memory implementation of the Store interface.
type MemoryStore struct {
	keys map[string]*Record
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory API key store, optionally seeded.
func NewMemoryStore(initial map[string]*Record) *MemoryStore {
	s := &MemoryStore{keys: make(map[string]*Record, len(initial))}
	for id, r := range initial {
		s.keys[id] = r.Clone()
	}
	return s
}

// GetAll returns a copy of every record.
func (s *MemoryStore) GetAll(_ context.Context) (map[string]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*Record, len(s.keys))
	for id, r := range s.keys {
		out[id] = r.Clone()
	}
	return out, nil
}

// SetAll replaces the store content.
func (s *MemoryStore) SetAll(_ context.Context, records map[string]*Record) error {
	next := make(map[string]*Record, len(records))
	for id, r := range records {
		if r != nil {
			next[id] = r.Clone()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = next
	return nil
}

// Get retrieves a record by id.
func (s *MemoryStore) Get(_ context.Context, keyID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.keys[keyID]
	if !ok || r == nil {
		return nil, ErrRecordNotFound
	}
	return r.Clone(), nil
}

// Set stores a record.
func (s *MemoryStore) Set(_ context.Context, keyID string, record *Record) error {
	if record == nil {
		return errors.New("record is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[keyID] = record.Clone()
	return nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(_ context.Context, keyID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[keyID]; !ok {
		return false, nil
	}
	delete(s.keys, keyID)
	return true, nil
}

// Count returns the number of records in the store.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

var _ Store = (*MemoryStore)(nil)
