// internal/editor/history/store.go
package history

import (
	"errors"
	"sync"
)

// DefaultDepth bounds the number of retained snapshots.
const DefaultDepth = 100

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Store is the in-memory owner of the authoritative document. Entries form a
// linear timeline; the cursor names the current one.
type Store struct {
	mu      sync.Mutex
	entries []string
	cursor  int
	depth   int
}

// NewStore starts a timeline at initial. A depth below 1 uses DefaultDepth.
func NewStore(initial string, depth int) *Store {
	if depth < 1 {
		depth = DefaultDepth
	}
	return &Store{entries: []string{initial}, depth: depth}
}

// Save appends doc as the newest entry, dropping anything that could have
// been redone. It reports false when doc equals the current entry.
func (s *Store) Save(doc string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[s.cursor] == doc {
		return false
	}
	s.entries = append(s.entries[:s.cursor+1], doc)
	if over := len(s.entries) - s.depth; over > 0 {
		// Copy forward so the dropped prefix is released.
		s.entries = append([]string(nil), s.entries[over:]...)
	}
	s.cursor = len(s.entries) - 1
	return true
}

// Undo steps back one entry and returns it.
func (s *Store) Undo() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == 0 {
		return "", ErrNothingToUndo
	}
	s.cursor--
	return s.entries[s.cursor], nil
}

// Redo steps forward one entry and returns it.
func (s *Store) Redo() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == len(s.entries)-1 {
		return "", ErrNothingToRedo
	}
	s.cursor++
	return s.entries[s.cursor], nil
}

// Current returns the document at the cursor.
func (s *Store) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[s.cursor]
}

func (s *Store) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor > 0
}

func (s *Store) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor < len(s.entries)-1
}

// Len is the number of retained entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Reset discards the timeline and starts a new one at doc.
func (s *Store) Reset(doc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = []string{doc}
	s.cursor = 0
}
