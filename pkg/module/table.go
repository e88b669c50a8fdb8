// Package module records the compilation units the debuggee has loaded.
package module

import (
	"path/filepath"
	"strings"
	"sync"
)

// Module is a loaded compilation unit.
type Module struct {
	// ID is the load index, starting at 1.
	ID int
	// Filename is the name the runtime reported at load time.
	Filename string
	// Path is the absolute, case-folded form of Filename.
	Path string
}

// Table is the append-only list of loaded modules.
type Table struct {
	mu      sync.RWMutex
	modules []*Module
	byFile  map[string]*Module
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{byFile: make(map[string]*Module)}
}

// Resolve returns the absolute, cleaned, case-folded form of a filename.
func Resolve(filename string) string {
	p := filename
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return strings.ToLower(filepath.ToSlash(filepath.Clean(p)))
}

func (t *Table) registerLocked(filename string) *Module {
	m := &Module{
		ID:       len(t.modules) + 1,
		Filename: filename,
		Path:     Resolve(filename),
	}
	t.modules = append(t.modules, m)
	t.byFile[filename] = m
	return m
}

// LoadOrRegister returns the module already recorded for filename, or
// registers a new one. The boolean is true when the module is new.
func (t *Table) LoadOrRegister(filename string) (*Module, bool) {
	t.mu.RLock()
	m, ok := t.byFile[filename]
	t.mu.RUnlock()
	if ok {
		return m, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.byFile[filename]; ok {
		return m, false
	}
	return t.registerLocked(filename), true
}

// Len returns the number of modules.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.modules)
}

// Snapshot returns the modules in load order.
func (t *Table) Snapshot() []*Module {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Module, len(t.modules))
	copy(out, t.modules)
	return out
}

// Reset drops every module.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modules = nil
	t.byFile = make(map[string]*Module)
}
