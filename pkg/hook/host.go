package hook

import "context"

// ThreadInfo describes a thread that was already running when the debugger
// attached.
type ThreadInfo struct {
	ID   int64
	Name string
	// Frames is the live stack, innermost first.
	Frames []Frame
}

// Host is the runtime's instrumentation API.
type Host interface {
	// Threads lists the threads running right now.
	Threads() []ThreadInfo
	// SetHook installs sink as the event hook of a thread. A nil sink removes it.
	SetHook(threadID int64, sink EventSink)
}

// ThreadStartNotifier is implemented by hosts that can announce new threads.
// The callback returns the sink to install on the new thread.
type ThreadStartNotifier interface {
	OnThreadStart(fn func(id int64, name string) EventSink)
}

// Evaluator evaluates source text in the scope of a frame.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string, frame Frame) (any, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, expr string, frame Frame) (any, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, expr string, frame Frame) (any, error) {
	return f(ctx, expr, frame)
}

// Truthy reports whether v counts as true in a condition.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int8:
		return x != 0
	case int16:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case uint:
		return x != 0
	case uint8:
		return x != 0
	case uint16:
		return x != 0
	case uint32:
		return x != 0
	case uint64:
		return x != 0
	case float32:
		return x != 0
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}
