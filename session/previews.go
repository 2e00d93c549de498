package session

import (
	"fmt"
	"sync"

	"filealchemy/models"

	"github.com/google/uuid"
)

// PreviewStore creates and releases preview handles for selected files.
// Every handle it creates must be released exactly once.
type PreviewStore interface {
	Create(f models.InputFile) (string, error)
	Release(handle string)
}

// HandleStore is an in-memory PreviewStore handing out "preview:<uuid>"
// handles.
type HandleStore struct {
	mu      sync.Mutex
	handles map[string]models.InputFile
}

func NewHandleStore() *HandleStore {
	return &HandleStore{handles: make(map[string]models.InputFile)}
}

func (s *HandleStore) Create(f models.InputFile) (string, error) {
	handle := fmt.Sprintf("preview:%s", uuid.NewString())
	s.mu.Lock()
	s.handles[handle] = f
	s.mu.Unlock()
	return handle, nil
}

func (s *HandleStore) Release(handle string) {
	s.mu.Lock()
	delete(s.handles, handle)
	s.mu.Unlock()
}

// Resolve returns the file behind a live handle.
func (s *HandleStore) Resolve(handle string) (models.InputFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.handles[handle]
	return f, ok
}

// Live counts handles not yet released.
func (s *HandleStore) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
