package breakpoint

import (
	"log"
	"reflect"
	"sync"

	"github.com/aivorynet/debugger-go/pkg/hook"
	"github.com/aivorynet/debugger-go/pkg/module"
)

// ConditionFunc evaluates a condition expression in the scope of the
// statement being checked.
type ConditionFunc func(expr string) (any, error)

// Hit is the outcome of a lookup that stopped on at least one breakpoint.
type Hit struct {
	// ID is the last breakpoint evaluated that passed both its condition and
	// its pass count.
	ID int32
	// All lists every breakpoint that passed, in evaluation order.
	All []int32
}

// Registry stores bound and pending breakpoints.
type Registry struct {
	debug   bool
	matcher *PathMatcher

	mu      sync.Mutex
	byID    map[int32]*BreakpointInfo
	byLine  map[int][]*BreakpointInfo
	pending map[int32]*BreakpointInfo
}

// NewRegistry creates a registry that uses matcher for unbound breakpoints.
func NewRegistry(debug bool, matcher *PathMatcher) *Registry {
	if matcher == nil {
		matcher = NewPathMatcher()
	}
	return &Registry{
		debug:   debug,
		matcher: matcher,
		byID:    make(map[int32]*BreakpointInfo),
		byLine:  make(map[int][]*BreakpointInfo),
		pending: make(map[int32]*BreakpointInfo),
	}
}

// Add registers bp as pending. A breakpoint with the same ID is replaced.
func (r *Registry) Add(bp *BreakpointInfo) {
	r.mu.Lock()
	if old, ok := r.byID[bp.ID]; ok {
		r.removeLocked(old)
	}
	bp.Bound = false
	r.byID[bp.ID] = bp
	r.byLine[bp.Line] = append(r.byLine[bp.Line], bp)
	r.pending[bp.ID] = bp
	r.mu.Unlock()

	if r.debug {
		log.Printf("[AIVory Debugger] Breakpoint set: %d at %s:%d", bp.ID, bp.Filename, bp.Line)
	}
}

// Remove deletes a breakpoint. Removing an unknown ID is a no-op that
// returns false.
func (r *Registry) Remove(id int32) bool {
	r.mu.Lock()
	bp, ok := r.byID[id]
	if ok {
		r.removeLocked(bp)
	}
	r.mu.Unlock()

	if ok && r.debug {
		log.Printf("[AIVory Debugger] Breakpoint removed: %d", id)
	}
	return ok
}

func (r *Registry) removeLocked(bp *BreakpointInfo) {
	delete(r.byID, bp.ID)
	delete(r.pending, bp.ID)

	bps := r.byLine[bp.Line]
	for i, cur := range bps {
		if cur == bp {
			bps = append(bps[:i:i], bps[i+1:]...)
			break
		}
	}
	if len(bps) == 0 {
		delete(r.byLine, bp.Line)
	} else {
		r.byLine[bp.Line] = bps
	}
}

// FindByID returns a copy of the breakpoint with the given ID.
func (r *Registry) FindByID(id int32) (BreakpointInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bp, ok := r.byID[id]
	if !ok {
		return BreakpointInfo{}, false
	}
	return *bp, true
}

// Len returns the number of registered breakpoints.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// SetCondition replaces a breakpoint's condition and forgets the last
// observed value.
func (r *Registry) SetCondition(id int32, kind ConditionKind, expr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	bp, ok := r.byID[id]
	if !ok {
		return false
	}
	bp.ConditionKind = kind
	bp.Condition = expr
	bp.lastValue = nil
	bp.hasLast = false
	return true
}

// SetPassCount replaces a breakpoint's pass count policy.
func (r *Registry) SetPassCount(id int32, kind PassCountKind, count int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	bp, ok := r.byID[id]
	if !ok {
		return false
	}
	bp.PassCountKind = kind
	bp.PassCount = count
	return true
}

// SetHitCount overwrites a breakpoint's hit counter.
func (r *Registry) SetHitCount(id int32, count int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	bp, ok := r.byID[id]
	if !ok {
		return false
	}
	bp.HitCount = count
	return true
}

// HitCount returns a breakpoint's hit counter.
func (r *Registry) HitCount(id int32) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bp, ok := r.byID[id]
	if !ok {
		return 0, false
	}
	return bp.HitCount, true
}

// TryBind binds the pending breakpoint id to mod when the breakpoint's file
// resolves to the module's path. On success the breakpoint's filename becomes
// the module's load-reported filename.
func (r *Registry) TryBind(id int32, mod *module.Module) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	bp, ok := r.pending[id]
	if !ok {
		return false
	}
	return r.bindLocked(bp, mod)
}

// BindPending binds every pending breakpoint that targets mod and returns
// their IDs.
func (r *Registry) BindPending(mod *module.Module) []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var bound []int32
	for _, bp := range r.pending {
		if r.bindLocked(bp, mod) {
			bound = append(bound, bp.ID)
		}
	}
	return bound
}

func (r *Registry) bindLocked(bp *BreakpointInfo, mod *module.Module) bool {
	if module.Resolve(bp.Filename) != mod.Path {
		return false
	}
	bp.Filename = mod.Filename
	bp.Bound = true
	delete(r.pending, bp.ID)
	return true
}

func (r *Registry) pendingIDs() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int32, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	return ids
}

// Clear drops every breakpoint.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[int32]*BreakpointInfo)
	r.byLine = make(map[int][]*BreakpointInfo)
	r.pending = make(map[int32]*BreakpointInfo)
}

type candidate struct {
	bp       *BreakpointInfo
	filename string
	bound    bool
	kind     ConditionKind
	expr     string
}

// Lookup checks every breakpoint on line against file. Conditions are
// evaluated with eval outside the registry lock. A failing condition counts
// as true. Hit counters are updated on every breakpoint whose condition hit,
// even when its pass count or a later breakpoint decides the outcome.
func (r *Registry) Lookup(file string, line int, eval ConditionFunc) (Hit, bool) {
	r.mu.Lock()
	bps := r.byLine[line]
	cands := make([]candidate, 0, len(bps))
	for _, bp := range bps {
		cands = append(cands, candidate{
			bp:       bp,
			filename: bp.Filename,
			bound:    bp.Bound,
			kind:     bp.ConditionKind,
			expr:     bp.Condition,
		})
	}
	r.mu.Unlock()

	var hit Hit
	for _, c := range cands {
		if c.filename != file {
			if c.bound || !r.matcher.Match(c.filename, file) {
				continue
			}
		}

		var value any
		evaluated := false
		if c.kind != ConditionAlways && eval != nil {
			v, err := eval(c.expr)
			if err != nil {
				if r.debug {
					log.Printf("[AIVory Debugger] Breakpoint %d condition failed: %v", c.bp.ID, err)
				}
			} else {
				value = v
				evaluated = true
			}
		}

		r.mu.Lock()
		if r.byID[c.bp.ID] == c.bp && r.recordLocked(c.bp, c.kind, value, evaluated) {
			hit.ID = c.bp.ID
			hit.All = append(hit.All, c.bp.ID)
		}
		r.mu.Unlock()
	}
	return hit, len(hit.All) > 0
}

// recordLocked applies the condition outcome and pass count to bp.
func (r *Registry) recordLocked(bp *BreakpointInfo, kind ConditionKind, value any, evaluated bool) bool {
	if evaluated {
		switch kind {
		case ConditionWhenTrue:
			if !hook.Truthy(value) {
				return false
			}
		case ConditionWhenChanged:
			prev, had := bp.lastValue, bp.hasLast
			bp.lastValue, bp.hasLast = value, true
			if !had || reflect.DeepEqual(prev, value) {
				return false
			}
		}
	}

	bp.HitCount++
	return bp.passCountAllows()
}
