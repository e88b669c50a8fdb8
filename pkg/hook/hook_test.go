package hook

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	kinds []EventKind
	stop  bool
}

func (s *recordingSink) next() EventSink {
	if s.stop {
		return nil
	}
	return s
}

func (s *recordingSink) OnCall(Frame) EventSink {
	s.kinds = append(s.kinds, EventCall)
	return s.next()
}

func (s *recordingSink) OnLine(Frame) EventSink {
	s.kinds = append(s.kinds, EventLine)
	return s.next()
}

func (s *recordingSink) OnReturn(Frame) EventSink {
	s.kinds = append(s.kinds, EventReturn)
	return s.next()
}

func (s *recordingSink) OnException(Frame, Exception, []Frame) EventSink {
	s.kinds = append(s.kinds, EventException)
	return s.next()
}

func TestDeliverRoutesEveryKind(t *testing.T) {
	sink := &recordingSink{}
	var next EventSink = sink
	for _, k := range []EventKind{EventCall, EventLine, EventException, EventReturn} {
		next = Deliver(next, Event{Kind: k})
	}
	assert.Equal(t, []EventKind{EventCall, EventLine, EventException, EventReturn}, sink.kinds)
	assert.Same(t, sink, next)
}

func TestDeliverNilSinkSwallows(t *testing.T) {
	assert.Nil(t, Deliver(nil, Event{Kind: EventLine}))

	sink := &recordingSink{stop: true}
	assert.Nil(t, Deliver(sink, Event{Kind: EventCall}))
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "exception", EventException.String())
	assert.Equal(t, "EventKind(9)", EventKind(9).String())
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(0))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy(0.0))
	assert.False(t, Truthy([]any{}))
	assert.True(t, Truthy(int64(3)))
	assert.True(t, Truthy("x"))
	assert.True(t, Truthy(struct{}{}))
}

type notFound struct{ name string }

func (e *notFound) Error() string { return e.name + " not found" }

func TestErrorExceptionHierarchy(t *testing.T) {
	exc := ErrorException{Err: fmt.Errorf("lookup: %w", &notFound{name: "x"})}

	assert.Equal(t, "fmt.wrapError", exc.TypeName())
	assert.True(t, exc.IsA("hook.notFound"))
	assert.False(t, exc.IsA("hook.ExitError"))
	assert.Equal(t, "lookup: x not found", exc.Message())

	_, isExit := exc.ExitCode()
	assert.False(t, isExit)
}

func TestErrorExceptionExit(t *testing.T) {
	exc := ErrorException{Err: fmt.Errorf("shutdown: %w", &ExitError{Code: 3})}
	code, isExit := exc.ExitCode()
	assert.True(t, isExit)
	assert.Equal(t, 3, code)
}
