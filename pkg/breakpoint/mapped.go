package breakpoint

import (
	"strings"
	"sync"
)

type mappedKey struct {
	file string
	line int
}

// MappedSet holds breakpoints placed in mapped sources such as templates.
// They are matched against the position a frame reports inside the mapped
// source rather than its own file and line.
type MappedSet struct {
	mu    sync.RWMutex
	byKey map[mappedKey]int32
}

// NewMappedSet creates an empty set.
func NewMappedSet() *MappedSet {
	return &MappedSet{byKey: make(map[mappedKey]int32)}
}

func keyFor(file string, line int) mappedKey {
	return mappedKey{file: foldPath(file), line: line}
}

// Add places breakpoint id at file:line.
func (s *MappedSet) Add(id int32, file string, line int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[keyFor(file, line)] = id
}

// Remove deletes the breakpoint at file:line if it has the given id.
func (s *MappedSet) Remove(id int32, file string, line int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyFor(file, line)
	if cur, ok := s.byKey[k]; ok && cur == id {
		delete(s.byKey, k)
		return true
	}
	return false
}

// Lookup returns the breakpoint at file:line.
func (s *MappedSet) Lookup(file string, line int) (int32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[keyFor(strings.TrimSpace(file), line)]
	return id, ok
}

// Len returns the number of mapped breakpoints.
func (s *MappedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

// Clear drops every mapped breakpoint.
func (s *MappedSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey = make(map[mappedKey]int32)
}
