package probe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aivorynet/debugger-go/pkg/hook"
)

type event struct {
	kind  hook.EventKind
	fn    string
	line  int
	trace []string
}

type recorder struct {
	events []event
	onLine func(hook.Frame)
}

func (r *recorder) add(kind hook.EventKind, f hook.Frame, trace []hook.Frame) {
	ev := event{kind: kind, fn: f.Func(), line: f.Line()}
	for _, tf := range trace {
		ev.trace = append(ev.trace, tf.Func())
	}
	r.events = append(r.events, ev)
}

func (r *recorder) OnCall(f hook.Frame) hook.EventSink {
	r.add(hook.EventCall, f, nil)
	return r
}

func (r *recorder) OnLine(f hook.Frame) hook.EventSink {
	r.add(hook.EventLine, f, nil)
	if r.onLine != nil {
		r.onLine(f)
	}
	return r
}

func (r *recorder) OnReturn(f hook.Frame) hook.EventSink {
	r.add(hook.EventReturn, f, nil)
	return r
}

func (r *recorder) OnException(f hook.Frame, _ hook.Exception, trace []hook.Frame) hook.EventSink {
	r.add(hook.EventException, f, trace)
	return r
}

func TestThreadDeliversEvents(t *testing.T) {
	rt := NewRuntime()
	rec := &recorder{}
	rt.OnThreadStart(func(int64, string) hook.EventSink { return rec })

	th := rt.NewThread("main")
	th.Call("/app/main.go", "main", 1)
	th.Line(2)
	th.Call("/app/util.go", "helper", 10, WithLocals(map[string]any{"n": 3}))
	assert.Equal(t, 3, th.Get("n"))
	th.Line(11)
	th.Return()
	th.Line(3)
	th.Return()

	kinds := make([]hook.EventKind, 0, len(rec.events))
	for _, ev := range rec.events {
		kinds = append(kinds, ev.kind)
	}
	assert.Equal(t, []hook.EventKind{
		hook.EventCall, hook.EventLine,
		hook.EventCall, hook.EventLine, hook.EventReturn,
		hook.EventLine, hook.EventReturn,
	}, kinds)
	assert.Equal(t, "helper", rec.events[3].fn)
	assert.Equal(t, 11, rec.events[3].line)
	assert.Nil(t, th.Top())
}

func TestUnwindBuildsTrace(t *testing.T) {
	rt := NewRuntime()
	rec := &recorder{}
	rt.OnThreadStart(func(int64, string) hook.EventSink { return rec })

	th := rt.NewThread("main")
	th.Call("/app/main.go", "main", 1)
	th.Call("/app/main.go", "inner", 5)
	th.Raise(hook.ErrorException{Err: errors.New("boom")})
	th.Unwind()

	require.Len(t, rec.events, 5)
	assert.Equal(t, []string{"inner"}, rec.events[2].trace)
	assert.Equal(t, hook.EventReturn, rec.events[3].kind)
	assert.Equal(t, []string{"main", "inner"}, rec.events[4].trace)
}

func TestSetHookAndThreads(t *testing.T) {
	rt := NewRuntime()
	th := rt.NewThread("worker")
	f := th.Call("/app/w.go", "work", 1)
	th.Call("/app/w.go", "step", 7)

	threads := rt.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, th.ID(), threads[0].ID)
	assert.Equal(t, "worker", threads[0].Name)
	require.Len(t, threads[0].Frames, 2)
	assert.Equal(t, "step", threads[0].Frames[0].Func())
	assert.Equal(t, f, threads[0].Frames[1])
	assert.Nil(t, threads[0].Frames[1].Parent())

	rec := &recorder{}
	rt.SetHook(th.ID(), rec)
	th.Line(8)
	require.Len(t, rec.events, 1)

	rt.SetHook(th.ID(), nil)
	th.Line(9)
	assert.Len(t, rec.events, 1)
}

func TestLineMovedByDebugger(t *testing.T) {
	rt := NewRuntime()
	rec := &recorder{onLine: func(f hook.Frame) {
		if f.Line() == 4 {
			require.NoError(t, f.(hook.LineSetter).SetLine(9))
		}
	}}
	rt.OnThreadStart(func(int64, string) hook.EventSink { return rec })

	th := rt.NewThread("main")
	f := th.Call("/app/main.go", "main", 2)
	assert.Equal(t, 3, th.Line(3))
	assert.Equal(t, 9, th.Line(4))
	assert.Error(t, f.SetLine(1))
}

func TestGoForgetsThread(t *testing.T) {
	rt := NewRuntime()
	rt.SetGlobal("mode", "test")
	var seen any
	done := rt.Go("bg", func(th *Thread) {
		f := th.Call("/app/bg.go", "run", 1)
		seen = f.Globals()["mode"]
		th.Return()
	})
	<-done
	assert.Equal(t, "test", seen)
	assert.Empty(t, rt.Threads())
}

func TestFrameOptions(t *testing.T) {
	rt := NewRuntime()
	th := rt.NewThread("main")
	f := th.Call("/tmpl/render.go", "render", 10,
		Internal(),
		Mapped("/templates/index.html", -5),
		WithTypes(map[string]string{"E": "pkg.E"}))

	assert.True(t, f.Internal())
	file, line, ok := f.MappedSource()
	assert.True(t, ok)
	assert.Equal(t, "/templates/index.html", file)
	assert.Equal(t, 5, line)

	name, ok := f.ResolveType("E")
	assert.True(t, ok)
	assert.Equal(t, "pkg.E", name)
}
