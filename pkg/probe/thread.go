package probe

import (
	"sync"

	"github.com/aivorynet/debugger-go/pkg/hook"
)

// Thread is one instrumented thread of execution. Its methods must be called
// from the goroutine running the thread.
type Thread struct {
	rt   *Runtime
	id   int64
	name string

	mu    sync.Mutex
	sink  hook.EventSink
	stack []*Frame

	// trace of the exception currently unwinding, innermost last.
	unwinding hook.Exception
	trace     []hook.Frame
}

// ID returns the thread id.
func (t *Thread) ID() int64 {
	return t.id
}

// Name returns the thread name.
func (t *Thread) Name() string {
	return t.name
}

func (t *Thread) setSink(sink hook.EventSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

// frames returns the live stack innermost first.
func (t *Thread) frames() []hook.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]hook.Frame, 0, len(t.stack))
	for i := len(t.stack) - 1; i >= 0; i-- {
		out = append(out, t.stack[i])
	}
	return out
}

// Top returns the innermost frame, nil when the stack is empty.
func (t *Thread) Top() *Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.stack) == 0 {
		return nil
	}
	return t.stack[len(t.stack)-1]
}

func (t *Thread) deliver(ev hook.Event) {
	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()
	if sink == nil {
		return
	}

	next := hook.Deliver(sink, ev)

	t.mu.Lock()
	if t.sink == sink {
		t.sink = next
	}
	t.mu.Unlock()
}

// Call enters a function. The returned frame becomes the innermost frame.
func (t *Thread) Call(file, fn string, line int, opts ...FrameOption) *Frame {
	f := &Frame{
		thread: t,
		file:   file,
		fn:     fn,
		first:  line,
		line:   line,
		locals: make(map[string]any),
	}
	for _, opt := range opts {
		opt(f)
	}

	t.mu.Lock()
	if n := len(t.stack); n > 0 {
		f.parent = t.stack[n-1]
	}
	t.stack = append(t.stack, f)
	t.mu.Unlock()

	t.deliver(hook.Event{Kind: hook.EventCall, Frame: f})
	return f
}

// Line reports that the innermost frame is about to run line. It returns the
// line to run, which differs when the debugger moved the next statement.
func (t *Thread) Line(line int) int {
	f := t.Top()
	if f == nil {
		return line
	}
	f.setLine(line)
	t.unwinding, t.trace = nil, nil

	t.deliver(hook.Event{Kind: hook.EventLine, Frame: f})
	return f.Line()
}

// Set assigns a local variable in the innermost frame.
func (t *Thread) Set(name string, value any) {
	if f := t.Top(); f != nil {
		f.SetLocal(name, value)
	}
}

// Get reads a local variable of the innermost frame.
func (t *Thread) Get(name string) any {
	if f := t.Top(); f != nil {
		return f.Local(name)
	}
	return nil
}

// Return leaves the innermost function.
func (t *Thread) Return() {
	f := t.Top()
	if f == nil {
		return
	}
	t.deliver(hook.Event{Kind: hook.EventReturn, Frame: f})

	t.mu.Lock()
	t.stack = t.stack[:len(t.stack)-1]
	t.mu.Unlock()
}

// Raise reports exc raised in the innermost frame.
func (t *Thread) Raise(exc hook.Exception) {
	f := t.Top()
	if f == nil {
		return
	}
	t.unwinding = exc
	t.trace = []hook.Frame{f}
	t.deliver(hook.Event{Kind: hook.EventException, Frame: f, Exception: exc, Trace: t.trace})
}

// Unwind returns from the innermost function while an exception raised by
// Raise is propagating, and reports the exception in the caller.
func (t *Thread) Unwind() {
	exc, trace := t.unwinding, t.trace
	t.Return()
	f := t.Top()
	if exc == nil || f == nil {
		return
	}
	t.unwinding = exc
	t.trace = append([]hook.Frame{f}, trace...)
	t.deliver(hook.Event{Kind: hook.EventException, Frame: f, Exception: exc, Trace: t.trace})
}
