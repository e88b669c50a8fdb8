package debugger

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/aivorynet/debugger-go/pkg/blocking"
	"github.com/aivorynet/debugger-go/pkg/capture"
	"github.com/aivorynet/debugger-go/pkg/exception"
	"github.com/aivorynet/debugger-go/pkg/hook"
	"github.com/aivorynet/debugger-go/pkg/wire"
)

// thread traces one host thread. The event methods run on the host thread
// itself; the dispatcher only touches the fields guarded by mu.
type thread struct {
	s    *Session
	id   int64
	name string
	gate *blocking.Gate

	// sending is set while this thread writes a message.
	sending atomic.Bool

	// stack is the shadow call stack, outermost first. Only the host thread
	// touches it once the hook is installed.
	stack []hook.Frame

	mu       sync.Mutex
	stepping StepMode
	lastLine int
	stopped  []hook.Frame
}

var _ hook.EventSink = (*thread)(nil)

// seed fills the shadow stack from frames listed innermost first.
func (t *thread) seed(frames []hook.Frame) {
	t.stack = t.stack[:0]
	for i := len(frames) - 1; i >= 0; i-- {
		t.stack = append(t.stack, frames[i])
	}
}

func (t *thread) setStepping(mode StepMode) {
	t.mu.Lock()
	t.stepping = mode
	t.mu.Unlock()
}

func (t *thread) mode() (StepMode, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stepping, t.lastLine
}

// stoppedFrames returns the frames reported by the current stop, nil while
// the thread runs.
func (t *thread) stoppedFrames() []hook.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// recoverFault turns a panic inside the tracer into a log line and stops
// tracing the thread. The debuggee keeps running.
func (t *thread) recoverFault(next *hook.EventSink) {
	r := recover()
	if r == nil {
		return
	}
	frames := capture.Callers(1)
	msg := fmt.Sprint(r)
	log.Printf("[AIVory Debugger] Tracer fault on thread %d, tracing disabled: %s [%s]\n%s",
		t.id, msg, capture.Fingerprint(msg, frames), capture.FormatStack(frames))
	*next = nil
}

// OnCall implements hook.EventSink.
func (t *thread) OnCall(f hook.Frame) (next hook.EventSink) {
	defer t.recoverFault(&next)
	if t.s.detached.Load() {
		return nil
	}
	if t.sending.Load() {
		return t
	}

	t.stack = append(t.stack, f)
	if !t.s.debuggable(f) {
		return t
	}
	t.s.noteModule(t, f)

	t.mu.Lock()
	mode := t.stepping
	if mode != StepBreak {
		m, reset := mode.onCall()
		t.stepping = m
		if reset {
			t.lastLine = -1
		}
	}
	t.mu.Unlock()

	if mode == StepBreak {
		t.stop(f, t.asyncBreakReport)
	}
	return t
}

// OnLine implements hook.EventSink.
func (t *thread) OnLine(f hook.Frame) (next hook.EventSink) {
	defer t.recoverFault(&next)
	if t.s.detached.Load() {
		return nil
	}
	if t.sending.Load() || !t.s.debuggable(f) {
		return t
	}

	mode, last := t.mode()
	switch mode {
	case StepBreak:
		t.stop(f, t.asyncBreakReport)
		return t
	case StepAttachBreak:
		t.stop(f, t.loadReport)
		return t
	case StepLaunchBreak:
		if t.s.modules.Len() > 0 {
			t.stop(f, t.loadReport)
			return t
		}
	}

	if id, ok := t.s.checkBreakpoints(f); ok {
		t.s.allStop(t)
		t.stop(f, func() {
			_ = t.s.send(t, func(w *wire.Writer) {
				w.WriteTag(wire.TagBreakpointHit).WriteInt(id).WriteInt(int32(t.id))
			})
		})
		return t
	}

	if mode.stopsOnLine() && f.Line() != last {
		t.stop(f, func() {
			_ = t.s.send(t, func(w *wire.Writer) {
				w.WriteTag(wire.TagStepDone).WriteInt(int32(t.id))
			})
		})
	}
	return t
}

// OnReturn implements hook.EventSink.
func (t *thread) OnReturn(f hook.Frame) (next hook.EventSink) {
	defer t.recoverFault(&next)
	if t.s.detached.Load() {
		return nil
	}
	if t.sending.Load() {
		return t
	}

	if len(t.stack) == 0 {
		return t
	}
	t.stack = t.stack[:len(t.stack)-1]

	if t.s.debuggable(f) {
		t.mu.Lock()
		m, reset := t.stepping.onReturn()
		t.stepping = m
		if reset {
			t.lastLine = -1
		}
		t.mu.Unlock()
	}

	if len(t.stack) == 0 {
		t.s.threadExited(t)
		return nil
	}
	return t
}

// OnException implements hook.EventSink. An exception is considered once,
// in the frame that raised it or in the first debuggable frame it reaches.
func (t *thread) OnException(f hook.Frame, exc hook.Exception, trace []hook.Frame) (next hook.EventSink) {
	defer t.recoverFault(&next)
	if t.s.detached.Load() {
		return nil
	}
	if t.sending.Load() || !t.s.debuggable(f) {
		return t
	}
	if len(trace) > 1 && t.s.debuggable(trace[1]) {
		return t
	}

	bt := t.s.policy.ShouldBreak(t.s.ctx, exc, trace)
	if bt == exception.BreakNone {
		return t
	}
	t.s.allStop(t)
	t.stop(f, func() { t.s.sendException(t, exc, bt) })
	return t
}

func (t *thread) asyncBreakReport() {
	if !t.s.asyncBreak.CompareAndSwap(true, false) {
		return
	}
	_ = t.s.send(t, func(w *wire.Writer) {
		w.WriteTag(wire.TagAsyncBreak).WriteInt(int32(t.id))
	})
}

func (t *thread) loadReport() {
	if !t.s.loadReported.CompareAndSwap(false, true) {
		return
	}
	_ = t.s.send(t, func(w *wire.Writer) {
		w.WriteTag(wire.TagProcessLoaded).WriteInt(int32(t.id))
	})
}

// visibleFrames lists the user-facing frames of the thread, innermost first,
// with f on top.
func (t *thread) visibleFrames(f hook.Frame) []hook.Frame {
	out := make([]hook.Frame, 0, len(t.stack)+1)
	if len(t.stack) == 0 || t.stack[len(t.stack)-1] != f {
		out = append(out, f)
	}
	for i := len(t.stack) - 1; i >= 0; i-- {
		if visible(t.stack[i]) {
			out = append(out, t.stack[i])
		}
	}
	return out
}

// stop parks the thread at f. report runs once the frames were sent and
// announces why the thread stopped; nil parks silently.
func (t *thread) stop(f hook.Frame, report func()) {
	frames := t.visibleFrames(f)

	t.mu.Lock()
	t.stepping = StepNone
	t.lastLine = f.Line()
	t.stopped = frames
	t.mu.Unlock()

	t.gate.Block(func() {
		t.s.sendFrames(t, frames)
		if report != nil {
			report()
		}
	})

	t.mu.Lock()
	t.stopped = nil
	t.mu.Unlock()
}
