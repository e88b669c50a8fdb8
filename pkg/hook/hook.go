// Package hook defines the boundary between the debugger engine and the host
// runtime that executes the debuggee.
//
// The host owns the real call stacks. It reports activity on each traced thread
// to an EventSink, in this order for every activation: exactly one call event,
// any number of line and exception events, then exactly one return event.
package hook

import "fmt"

// Frame is one activation record on a host thread.
type Frame interface {
	// File is the filename the runtime reported when the code was loaded.
	File() string
	// Line is the line currently executing.
	Line() int
	// FirstLine is the first line of the function.
	FirstLine() int
	// Func is the function name.
	Func() string
	// Parent is the calling frame, nil for the outermost frame.
	Parent() Frame
	// Locals returns the frame's local variables.
	Locals() map[string]any
	// Globals returns the variables visible from the enclosing module.
	Globals() map[string]any
}

// Internal is implemented by frames the host wants hidden from the user, such
// as runtime plumbing. Internal frames never stop and never move stepping depth.
type Internal interface {
	Internal() bool
}

// LineSetter is implemented by frames whose next statement can be moved.
type LineSetter interface {
	SetLine(line int) error
}

// LocalSetter is implemented by frames that accept writes to their locals.
type LocalSetter interface {
	SetLocal(name string, value any)
}

// SourceMapped is implemented by frames that render another source, such as a
// template, and can report the position inside that source.
type SourceMapped interface {
	MappedSource() (file string, line int, ok bool)
}

// TypeResolver is implemented by frames that can resolve a handler expression
// to a qualified exception type name in their scope.
type TypeResolver interface {
	ResolveType(expr string) (string, bool)
}

// EventSink receives runtime events for one thread. Each method returns the sink
// to use for subsequent events; a nil return disables tracing for the thread.
type EventSink interface {
	OnCall(frame Frame) EventSink
	OnLine(frame Frame) EventSink
	OnReturn(frame Frame) EventSink
	OnException(frame Frame, exc Exception, trace []Frame) EventSink
}

// EventKind enumerates the runtime events a host can deliver.
type EventKind int

const (
	EventCall EventKind = iota
	EventLine
	EventReturn
	EventException
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventCall:
		return "call"
	case EventLine:
		return "line"
	case EventReturn:
		return "return"
	case EventException:
		return "exception"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a single runtime notification.
type Event struct {
	Kind  EventKind
	Frame Frame

	// Exception and Trace are set for EventException only. Trace runs from the
	// frame currently handling the exception to the frame that raised it.
	Exception Exception
	Trace     []Frame
}

// Deliver routes ev to the matching sink method and returns the sink for the
// next event. A nil sink swallows the event.
func Deliver(sink EventSink, ev Event) EventSink {
	if sink == nil {
		return nil
	}
	switch ev.Kind {
	case EventCall:
		return sink.OnCall(ev.Frame)
	case EventLine:
		return sink.OnLine(ev.Frame)
	case EventReturn:
		return sink.OnReturn(ev.Frame)
	case EventException:
		return sink.OnException(ev.Frame, ev.Exception, ev.Trace)
	default:
		panic(fmt.Sprintf("hook: unknown event kind %d", int(ev.Kind)))
	}
}
