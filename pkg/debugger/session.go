// Package debugger is the engine root. A Session attaches to a host runtime,
// traces every thread, and serves the controller's commands over the wire
// protocol.
package debugger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aivorynet/debugger-go/pkg/blocking"
	"github.com/aivorynet/debugger-go/pkg/breakpoint"
	"github.com/aivorynet/debugger-go/pkg/capture"
	"github.com/aivorynet/debugger-go/pkg/exception"
	"github.com/aivorynet/debugger-go/pkg/hook"
	"github.com/aivorynet/debugger-go/pkg/module"
	"github.com/aivorynet/debugger-go/pkg/wire"
)

var (
	// ErrUnknownThread is returned for commands naming a thread that is not traced.
	ErrUnknownThread = errors.New("unknown thread")

	// ErrNoEvaluator is returned when evaluation is requested without an evaluator.
	ErrNoEvaluator = errors.New("no evaluator configured")

	// ErrNoThreadStart is returned by Debug for hosts that cannot announce threads.
	ErrNoThreadStart = errors.New("host cannot announce new threads")
)

// Frame kinds reported in thread frames.
const (
	FrameKindNormal int32 = 1
	FrameKindMapped int32 = 2
)

// Entry runs the debuggee's program and returns its exit code. stdout is
// where the program should write its output.
type Entry func(ctx context.Context, stdout io.Writer) int

// Session is one debugging session over one controller connection.
type Session struct {
	cfg  *Config
	id   string
	host hook.Host
	conn io.ReadWriteCloser
	r    *wire.Reader
	w    *wire.Writer

	ctx    context.Context
	cancel context.CancelFunc

	modules     *module.Table
	breakpoints *breakpoint.Registry
	mapped      *breakpoint.MappedSet
	policy      *exception.Policy
	regions     *exception.RegionCache
	coord       *blocking.Coordinator

	mu          sync.Mutex
	threads     map[int64]*thread
	launchBreak bool

	asyncBreak   atomic.Bool
	loadReported atomic.Bool
	detached     atomic.Bool
	detachOnce   sync.Once
	done         chan struct{}

	lastOnce sync.Once
	lastAck  chan struct{}
}

func newSession(ctx context.Context, host hook.Host, conn io.ReadWriteCloser, sessionID string, options []ConfigOption) *Session {
	cfg := NewConfig(options...)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s := &Session{
		cfg:     cfg,
		id:      sessionID,
		host:    host,
		conn:    conn,
		r:       wire.NewReader(conn),
		w:       wire.NewWriter(conn),
		modules: module.NewTable(),
		mapped:  breakpoint.NewMappedSet(),
		coord:   blocking.NewCoordinator(),
		threads: make(map[int64]*thread),
		done:    make(chan struct{}),
		lastAck: make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.breakpoints = breakpoint.NewRegistry(cfg.Debug, breakpoint.NewPathMatcher(cfg.PackageMarkers...))
	s.regions = exception.NewRegionCache(s.requestRegions, cfg.HandlerTimeout)

	analyzer := cfg.Analyzer
	if analyzer == nil {
		analyzer = &exception.RegionAnalyzer{Cache: s.regions, Debuggable: s.debuggable, Debug: cfg.Debug}
	}
	s.policy = exception.NewPolicy(cfg.Debug, analyzer)
	s.policy.SetBreakOnZeroExit(cfg.BreakOnZeroExit)
	return s
}

// Attach starts a session on conn. It sends the session id handshake, stops
// every running thread at its next statement, and serves commands until the
// controller detaches or ctx ends. An empty sessionID is replaced by a
// random one.
func Attach(ctx context.Context, host hook.Host, conn io.ReadWriteCloser, sessionID string, options ...ConfigOption) (*Session, error) {
	s := newSession(ctx, host, conn, sessionID, options)
	if err := s.handshake(); err != nil {
		s.cancel()
		_ = conn.Close()
		return nil, fmt.Errorf("attach: %w", err)
	}
	s.start(StepAttachBreak)
	s.logf("Attached session %s", s.id)
	return s, nil
}

// AttachExisting starts a session on a connection whose handshake the
// launcher already completed.
func AttachExisting(ctx context.Context, host hook.Host, conn io.ReadWriteCloser, options ...ConfigOption) *Session {
	s := newSession(ctx, host, conn, "", options)
	s.start(StepAttachBreak)
	s.logf("Attached to existing connection")
	return s
}

// Debug launches entry under the debugger and returns its exit code. The
// first thread the program starts stops before its first statement. After
// the program ends Debug reports the exit code, honors the wait-on-exit
// options, and waits for the controller to acknowledge the last message
// before detaching.
func Debug(ctx context.Context, host hook.Host, conn io.ReadWriteCloser, sessionID string, entry Entry, options ...ConfigOption) (int, error) {
	if _, ok := host.(hook.ThreadStartNotifier); !ok {
		return 0, ErrNoThreadStart
	}

	s := newSession(ctx, host, conn, sessionID, options)
	if err := s.handshake(); err != nil {
		s.cancel()
		_ = conn.Close()
		return 0, fmt.Errorf("debug: %w", err)
	}
	s.mu.Lock()
	s.launchBreak = true
	s.mu.Unlock()
	s.start(StepNone)

	var stdout io.Writer = os.Stdout
	if s.cfg.RedirectOutput {
		stdout = s.OutputWriter(0)
	}
	code := s.run(entry, stdout)
	s.finish(code)
	return code, nil
}

func (s *Session) run(entry Entry, stdout io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[AIVory Debugger] Program panicked: %v", r)
			code = 1
		}
	}()
	return entry(s.ctx, stdout)
}

func (s *Session) finish(code int) {
	_ = s.send(nil, func(w *wire.Writer) {
		w.WriteTag(wire.TagProcessExit).WriteInt(int32(code))
	})

	if (code != 0 && s.cfg.WaitOnAbnormalExit) || (code == 0 && s.cfg.WaitOnNormalExit) {
		s.logf("Waiting for the controller to detach")
		<-s.ctx.Done()
	}

	if !s.detached.Load() {
		_ = s.send(nil, func(w *wire.Writer) { w.WriteTag(wire.TagLast) })

		timer := time.NewTimer(s.cfg.LastAckTimeout)
		select {
		case <-s.lastAck:
		case <-s.done:
		case <-timer.C:
			s.logf("No final acknowledgement after %v", s.cfg.LastAckTimeout)
		}
		timer.Stop()
	}
	s.detach(false)
}

func (s *Session) handshake() error {
	return s.coord.WithSendLock(func() error {
		s.w.WriteString(s.id).WriteInt(wire.ProtocolVersion)
		return s.w.Flush()
	})
}

// start traces the threads already running, subscribes to new ones and
// starts serving commands.
func (s *Session) start(initial StepMode) {
	for _, ti := range s.host.Threads() {
		t := s.addThread(ti.ID, ti.Name, initial)
		t.seed(ti.Frames)
		for i := len(ti.Frames) - 1; i >= 0; i-- {
			if f := ti.Frames[i]; s.debuggable(f) {
				s.noteModule(t, f)
			}
		}
		s.host.SetHook(ti.ID, t)
	}
	if n, ok := s.host.(hook.ThreadStartNotifier); ok {
		n.OnThreadStart(s.ThreadStarted)
	}

	go s.loop()
	go func() {
		select {
		case <-s.ctx.Done():
			s.detach(false)
		case <-s.done:
		}
	}()
}

// ID returns the session id sent during the handshake.
func (s *Session) ID() string {
	return s.id
}

// Done is closed once the session has detached.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ThreadStarted registers a new thread and returns the hook to install on it.
func (s *Session) ThreadStarted(id int64, name string) hook.EventSink {
	if s.detached.Load() {
		return nil
	}
	mode := StepNone
	s.mu.Lock()
	if s.launchBreak {
		s.launchBreak = false
		mode = StepLaunchBreak
	}
	s.mu.Unlock()
	return s.addThread(id, name, mode)
}

func (s *Session) addThread(id int64, name string, mode StepMode) *thread {
	t := &thread{
		s:        s,
		id:       id,
		name:     name,
		gate:     s.coord.Gate(id),
		stepping: mode,
		lastLine: -1,
	}
	s.mu.Lock()
	s.threads[id] = t
	s.mu.Unlock()

	_ = s.send(nil, func(w *wire.Writer) {
		w.WriteTag(wire.TagNewThread).WriteInt(int32(id))
	})
	return t
}

func (s *Session) threadExited(t *thread) {
	s.mu.Lock()
	delete(s.threads, t.id)
	s.mu.Unlock()
	s.coord.Forget(t.id)

	_ = s.send(t, func(w *wire.Writer) {
		w.WriteTag(wire.TagThreadExit).WriteInt(int32(t.id))
	})
}

func (s *Session) thread(id int32) *thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads[int64(id)]
}

func (s *Session) threadList() []*thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	return out
}

// allStop asks every other running thread to park at its next event. A
// thread that already has a stop pending keeps it.
func (s *Session) allStop(except *thread) {
	for _, t := range s.threadList() {
		if t == except || t.gate.Blocked() {
			continue
		}
		t.mu.Lock()
		if !t.stepping.isMarker() {
			t.stepping = StepBreak
		}
		t.mu.Unlock()
	}
}

// breakAll asks every thread to stop. When all of them are already parked
// there is nothing to acknowledge, so the ASBR latch stays disarmed.
func (s *Session) breakAll() {
	threads := s.threadList()
	if len(threads) > 0 && len(s.coord.Blocked()) >= len(threads) {
		s.logf("Break all: every thread is already stopped")
		return
	}
	s.asyncBreak.Store(true)
	s.allStop(nil)
}

// resumeAll drops pending break requests and wakes every parked thread.
func (s *Session) resumeAll() {
	for _, t := range s.threadList() {
		t.mu.Lock()
		if t.stepping == StepBreak {
			t.stepping = StepNone
		}
		t.mu.Unlock()
	}
	s.coord.ResumeAll()
}

// Detach stops tracing every thread, releases the parked ones and closes the
// connection. It is safe to call more than once.
func (s *Session) Detach() {
	s.detach(true)
}

func (s *Session) detach(ack bool) {
	s.detachOnce.Do(func() {
		if ack {
			_ = s.coord.WithSendLock(func() error {
				s.w.WriteTag(wire.TagDetachAck)
				return s.w.Flush()
			})
		}
		s.detached.Store(true)
		s.cancel()

		for _, t := range s.threadList() {
			s.host.SetHook(t.id, nil)
		}
		s.coord.Release()
		s.breakpoints.Clear()
		s.mapped.Clear()
		s.regions.Clear()
		s.modules.Reset()
		_ = s.conn.Close()
		close(s.done)

		s.logf("Session %s detached", s.id)
	})
}

// send writes one message under the send lock. Once detached it does
// nothing. A write failure detaches the session.
func (s *Session) send(t *thread, write func(w *wire.Writer)) error {
	if s.detached.Load() {
		return nil
	}
	err := s.coord.WithSendLock(func() error {
		if s.detached.Load() {
			return nil
		}
		if t != nil {
			t.sending.Store(true)
			defer t.sending.Store(false)
		}
		write(s.w)
		return s.w.Flush()
	})
	if err != nil {
		log.Printf("[AIVory Debugger] Transport error, detaching: %v", err)
		s.detach(false)
	}
	return err
}

// Output forwards program output to the controller.
func (s *Session) Output(tid int64, text string) error {
	return s.send(nil, func(w *wire.Writer) {
		w.WriteTag(wire.TagOutput).WriteInt(int32(tid)).WriteString(text)
	})
}

// OutputWriter returns a writer that forwards to Output.
func (s *Session) OutputWriter(tid int64) io.Writer {
	return outputWriter{s: s, tid: tid}
}

type outputWriter struct {
	s   *Session
	tid int64
}

func (o outputWriter) Write(p []byte) (int, error) {
	if err := o.s.Output(o.tid, string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *Session) requestRegions(file string) error {
	return s.send(nil, func(w *wire.Writer) {
		w.WriteTag(wire.TagRequestHandlers).WriteString(file)
	})
}

// noteModule records the module of f the first time it runs and binds the
// pending breakpoints that target it.
func (s *Session) noteModule(t *thread, f hook.Frame) {
	mod, isNew := s.modules.LoadOrRegister(f.File())
	if !isNew {
		return
	}
	_ = s.send(t, func(w *wire.Writer) {
		w.WriteTag(wire.TagModuleLoad).WriteInt(int32(mod.ID)).WriteString(mod.Filename)
	})
	for _, id := range s.breakpoints.BindPending(mod) {
		_ = s.send(t, func(w *wire.Writer) {
			w.WriteTag(wire.TagBreakpointBound).WriteInt(id)
		})
	}
}

// visible reports whether f is user-facing code at all.
func visible(f hook.Frame) bool {
	file := f.File()
	if file == "" || (strings.HasPrefix(file, "<") && strings.HasSuffix(file, ">")) {
		return false
	}
	if in, ok := f.(hook.Internal); ok && in.Internal() {
		return false
	}
	return true
}

// debuggable reports whether the engine may stop in f.
func (s *Session) debuggable(f hook.Frame) bool {
	if f == nil || !visible(f) {
		return false
	}
	file := f.File()
	for _, p := range s.cfg.IgnoredPaths {
		if strings.HasPrefix(file, p) {
			return false
		}
	}
	if !s.cfg.DebugStdLib {
		for _, p := range s.cfg.StdLibPaths {
			if strings.HasPrefix(file, p) {
				return false
			}
		}
	}
	return true
}

func (s *Session) evaluate(expr string, f hook.Frame) (any, error) {
	if s.cfg.Evaluator == nil {
		return nil, ErrNoEvaluator
	}
	return s.cfg.Evaluator.Evaluate(s.ctx, expr, f)
}

// checkBreakpoints returns the breakpoint f stops on, if any.
func (s *Session) checkBreakpoints(f hook.Frame) (int32, bool) {
	if s.cfg.TemplateDebugging {
		if m, ok := f.(hook.SourceMapped); ok {
			if file, line, ok := m.MappedSource(); ok {
				if id, ok := s.mapped.Lookup(file, line); ok {
					return id, true
				}
			}
		}
	}
	if s.breakpoints.Len() == 0 {
		return 0, false
	}
	hit, ok := s.breakpoints.Lookup(f.File(), f.Line(), func(expr string) (any, error) {
		return s.evaluate(expr, f)
	})
	return hit.ID, ok
}

// sendFrames reports the stack of a stopping thread.
func (s *Session) sendFrames(t *thread, frames []hook.Frame) {
	_ = s.send(t, func(w *wire.Writer) {
		w.WriteTag(wire.TagThreadFrames).WriteInt(int32(t.id)).WriteString(t.name)
		w.WriteInt(int32(len(frames)))
		for _, f := range frames {
			file, line, kind := f.File(), f.Line(), FrameKindNormal
			if m, ok := f.(hook.SourceMapped); ok && s.cfg.TemplateDebugging {
				if mf, ml, ok := m.MappedSource(); ok {
					file, line, kind = mf, ml, FrameKindMapped
				}
			}
			w.WriteInt(int32(f.FirstLine())).WriteInt(0).WriteInt(int32(line))
			w.WriteString(f.Func()).WriteString(file)
			w.WriteInt(0).WriteInt(kind)

			locals := f.Locals()
			names := make([]string, 0, len(locals))
			for name := range locals {
				names = append(names, name)
			}
			sort.Strings(names)
			w.WriteInt(int32(len(names)))
			for _, name := range names {
				v := capture.Describe(name, locals[name], capture.ReprNormal, s.cfg.MaxReprLength)
				w.WriteString(name).WriteEvalResult(v.Result())
			}
		}
	})
}

func (s *Session) sendException(t *thread, exc hook.Exception, bt exception.BreakType) {
	pairs := [][2]string{
		{"typename", exc.TypeName()},
		{"message", exc.Message()},
	}
	if code, isExit := exc.ExitCode(); isExit {
		pairs = append(pairs, [2]string{"exitcode", strconv.Itoa(code)})
	}
	_ = s.send(t, func(w *wire.Writer) {
		w.WriteTag(wire.TagException).WriteString(exc.TypeName()).WriteInt(int32(t.id)).WriteInt(int32(bt))
		w.WriteInt(int32(len(pairs)))
		for _, p := range pairs {
			w.WriteString(p[0]).WriteString(p[1])
		}
	})
}

func (s *Session) logf(format string, args ...any) {
	if s.cfg.Debug {
		log.Printf("[AIVory Debugger] "+format, args...)
	}
}
