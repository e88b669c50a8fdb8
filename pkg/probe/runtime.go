// Package probe is a hand-instrumented host runtime. Programs call into a
// Thread at every function entry, statement and return, and the installed
// event hook sees those calls as runtime events.
package probe

import (
	"sort"
	"sync"

	"github.com/aivorynet/debugger-go/pkg/hook"
)

// Runtime is the set of instrumented threads. It implements hook.Host and
// hook.ThreadStartNotifier.
type Runtime struct {
	mu      sync.Mutex
	threads map[int64]*Thread
	nextID  int64
	onStart func(id int64, name string) hook.EventSink

	globalsMu sync.RWMutex
	globals   map[string]any
}

var (
	_ hook.Host                = (*Runtime)(nil)
	_ hook.ThreadStartNotifier = (*Runtime)(nil)
)

// NewRuntime creates an empty runtime.
func NewRuntime() *Runtime {
	return &Runtime{
		threads: make(map[int64]*Thread),
		globals: make(map[string]any),
	}
}

// SetGlobal sets a variable visible from every frame.
func (r *Runtime) SetGlobal(name string, value any) {
	r.globalsMu.Lock()
	defer r.globalsMu.Unlock()
	r.globals[name] = value
}

func (r *Runtime) globalsCopy() map[string]any {
	r.globalsMu.RLock()
	defer r.globalsMu.RUnlock()
	out := make(map[string]any, len(r.globals))
	for k, v := range r.globals {
		out[k] = v
	}
	return out
}

// OnThreadStart registers fn to supply the hook of new threads.
func (r *Runtime) OnThreadStart(fn func(id int64, name string) hook.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStart = fn
}

// NewThread registers a thread. Its hook comes from the thread start callback.
func (r *Runtime) NewThread(name string) *Thread {
	r.mu.Lock()
	r.nextID++
	t := &Thread{rt: r, id: r.nextID, name: name}
	r.threads[t.id] = t
	onStart := r.onStart
	r.mu.Unlock()

	if onStart != nil {
		t.sink = onStart(t.id, name)
	}
	return t
}

// Go runs fn on a new goroutine with a new thread and returns a channel that
// is closed when fn returns.
func (r *Runtime) Go(name string, fn func(t *Thread)) <-chan struct{} {
	done := make(chan struct{})
	t := r.NewThread(name)
	go func() {
		defer close(done)
		defer r.forget(t.id)
		fn(t)
	}()
	return done
}

func (r *Runtime) forget(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.threads, id)
}

// Threads implements hook.Host.
func (r *Runtime) Threads() []hook.ThreadInfo {
	r.mu.Lock()
	threads := make([]*Thread, 0, len(r.threads))
	for _, t := range r.threads {
		threads = append(threads, t)
	}
	r.mu.Unlock()

	sort.Slice(threads, func(i, j int) bool { return threads[i].id < threads[j].id })
	out := make([]hook.ThreadInfo, 0, len(threads))
	for _, t := range threads {
		out = append(out, hook.ThreadInfo{ID: t.id, Name: t.name, Frames: t.frames()})
	}
	return out
}

// SetHook implements hook.Host.
func (r *Runtime) SetHook(threadID int64, sink hook.EventSink) {
	r.mu.Lock()
	t, ok := r.threads[threadID]
	r.mu.Unlock()
	if ok {
		t.setSink(sink)
	}
}
