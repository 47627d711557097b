package resource

import "sync"

// MemStore is an in-memory Store for tests and in-process demos. The
// mutex only makes each Read and each Write individually whole-value,
// matching the per-operation atomicity of FileStore; it does not close
// the read-delay-write window, which stays as racy as the file-backed
// path.
type MemStore struct {
	mu          sync.Mutex
	rec         Record
	initialized bool
}

// NewMemStore creates an empty, uninitialized store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Init sets the starting state, discarding anything stale.
func (s *MemStore) Init(value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = initRecord(value)
	s.initialized = true
	return nil
}

// Read returns the current record.
func (s *MemStore) Read() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return Record{}, ErrNotInitialized
	}
	return s.rec, nil
}

// Write replaces the whole record.
func (s *MemStore) Write(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec
	s.initialized = true
	return nil
}

// Teardown discards the record.
func (s *MemStore) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = Record{}
	s.initialized = false
	return nil
}
