package probe

import (
	"fmt"
	"sync"

	"github.com/aivorynet/debugger-go/pkg/hook"
)

// FrameOption configures a frame at call time.
type FrameOption func(*Frame)

// WithLocals seeds the frame's locals, typically the arguments.
func WithLocals(locals map[string]any) FrameOption {
	return func(f *Frame) {
		for k, v := range locals {
			f.locals[k] = v
		}
	}
}

// Internal hides the frame from the debugger.
func Internal() FrameOption {
	return func(f *Frame) {
		f.internal = true
	}
}

// Mapped makes the frame report a position in a mapped source. The
// position follows the frame's line by offset.
func Mapped(file string, offset int) FrameOption {
	return func(f *Frame) {
		f.mappedFile = file
		f.mappedOffset = offset
	}
}

// WithTypes lets handler expressions resolve to exception type names.
func WithTypes(types map[string]string) FrameOption {
	return func(f *Frame) {
		f.types = types
	}
}

// Frame is an activation record of a Thread.
type Frame struct {
	thread *Thread
	parent *Frame
	file   string
	fn     string
	first  int

	internal     bool
	mappedFile   string
	mappedOffset int
	types        map[string]string

	mu     sync.Mutex
	line   int
	locals map[string]any
}

var (
	_ hook.Frame        = (*Frame)(nil)
	_ hook.Internal     = (*Frame)(nil)
	_ hook.LineSetter   = (*Frame)(nil)
	_ hook.LocalSetter  = (*Frame)(nil)
	_ hook.SourceMapped = (*Frame)(nil)
	_ hook.TypeResolver = (*Frame)(nil)
)

func (f *Frame) File() string   { return f.file }
func (f *Frame) Func() string   { return f.fn }
func (f *Frame) FirstLine() int { return f.first }
func (f *Frame) Internal() bool { return f.internal }

func (f *Frame) Line() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.line
}

func (f *Frame) setLine(line int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.line = line
}

// Parent returns the caller's frame.
func (f *Frame) Parent() hook.Frame {
	if f.parent == nil {
		return nil
	}
	return f.parent
}

// Locals returns a copy of the local variables.
func (f *Frame) Locals() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]any, len(f.locals))
	for k, v := range f.locals {
		out[k] = v
	}
	return out
}

// Local returns one local variable.
func (f *Frame) Local(name string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locals[name]
}

// Globals returns the runtime's globals.
func (f *Frame) Globals() map[string]any {
	return f.thread.rt.globalsCopy()
}

// SetLocal implements hook.LocalSetter.
func (f *Frame) SetLocal(name string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locals[name] = value
}

// SetLine implements hook.LineSetter. The move takes effect when the
// program's pending Thread.Line call returns.
func (f *Frame) SetLine(line int) error {
	if line < f.first {
		return fmt.Errorf("line %d is before the start of %s", line, f.fn)
	}
	f.setLine(line)
	return nil
}

// MappedSource implements hook.SourceMapped.
func (f *Frame) MappedSource() (string, int, bool) {
	if f.mappedFile == "" {
		return "", 0, false
	}
	return f.mappedFile, f.Line() + f.mappedOffset, true
}

// ResolveType implements hook.TypeResolver.
func (f *Frame) ResolveType(expr string) (string, bool) {
	name, ok := f.types[expr]
	return name, ok
}
