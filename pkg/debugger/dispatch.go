package debugger

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/aivorynet/debugger-go/pkg/blocking"
	"github.com/aivorynet/debugger-go/pkg/breakpoint"
	"github.com/aivorynet/debugger-go/pkg/capture"
	"github.com/aivorynet/debugger-go/pkg/exception"
	"github.com/aivorynet/debugger-go/pkg/hook"
	"github.com/aivorynet/debugger-go/pkg/wire"
)

// errDetach ends the command loop after a requested detach.
var errDetach = errors.New("detach requested")

// commands maps inbound tags to their handlers.
var commands = map[wire.Tag]func(*Session) error{
	wire.CmdStepInto:            (*Session).cmdStepInto,
	wire.CmdStepOut:             (*Session).cmdStepOut,
	wire.CmdStepOver:            (*Session).cmdStepOver,
	wire.CmdSetBreakpoint:       (*Session).cmdSetBreakpoint,
	wire.CmdSetCondition:        (*Session).cmdSetCondition,
	wire.CmdSetPassCount:        (*Session).cmdSetPassCount,
	wire.CmdSetHitCount:         (*Session).cmdSetHitCount,
	wire.CmdGetHitCount:         (*Session).cmdGetHitCount,
	wire.CmdRemoveBreakpoint:    (*Session).cmdRemoveBreakpoint,
	wire.CmdBreakAll:            (*Session).cmdBreakAll,
	wire.CmdResumeAll:           (*Session).cmdResumeAll,
	wire.CmdResumeThread:        (*Session).cmdResumeThread,
	wire.CmdAutoResume:          (*Session).cmdAutoResume,
	wire.CmdExecute:             (*Session).cmdExecute,
	wire.CmdEnumChildren:        (*Session).cmdEnumChildren,
	wire.CmdSetLineNumber:       (*Session).cmdSetLineNumber,
	wire.CmdDetach:              (*Session).cmdDetach,
	wire.CmdClearStepping:       (*Session).cmdClearStepping,
	wire.CmdSetExceptionInfo:    (*Session).cmdSetExceptionInfo,
	wire.CmdSetExceptionHandler: (*Session).cmdSetExceptionHandler,
	wire.CmdAddMappedBreak:      (*Session).cmdAddMappedBreak,
	wire.CmdRemoveMappedBreak:   (*Session).cmdRemoveMappedBreak,
	wire.CmdConnectSecondary:    (*Session).cmdConnectSecondary,
	wire.CmdDisconnectSecondary: (*Session).cmdDisconnectSecondary,
	wire.CmdLastAck:             (*Session).cmdLastAck,
}

// loop reads and runs commands until the connection fails, the controller
// sends something it does not understand, or it asks to detach.
func (s *Session) loop() {
	for {
		tag, err := s.r.ReadTag()
		if err != nil {
			if !s.detached.Load() {
				s.logf("Command stream closed: %v", err)
			}
			break
		}

		handle, ok := commands[tag]
		if !ok {
			log.Printf("[AIVory Debugger] Unknown command %q, detaching", tag.String())
			break
		}
		if err := handle(s); err != nil {
			if errors.Is(err, errDetach) {
				return
			}
			log.Printf("[AIVory Debugger] Command %s failed, detaching: %v", tag, err)
			break
		}
	}
	s.detach(false)
}

// fields reads a command payload and keeps the first error.
type fields struct {
	r   *wire.Reader
	err error
}

func (f *fields) int() int32 {
	if f.err != nil {
		return 0
	}
	var v int32
	v, f.err = f.r.ReadInt()
	return v
}

func (f *fields) str() string {
	if f.err != nil {
		return ""
	}
	var v string
	v, f.err = f.r.ReadString()
	return v
}

func (s *Session) fields() *fields {
	return &fields{r: s.r}
}

func (s *Session) step(mode StepMode) error {
	in := s.fields()
	tid := in.int()
	if in.err != nil {
		return in.err
	}
	if t := s.thread(tid); t != nil {
		t.setStepping(mode)
	}
	s.coord.ResumeAll()
	return nil
}

func (s *Session) cmdStepInto() error { return s.step(StepInto) }
func (s *Session) cmdStepOut() error  { return s.step(StepOut) }
func (s *Session) cmdStepOver() error { return s.step(StepOver) }

func (s *Session) cmdSetBreakpoint() error {
	in := s.fields()
	bp := &breakpoint.BreakpointInfo{
		ID:            in.int(),
		Line:          int(in.int()),
		Filename:      in.str(),
		ConditionKind: breakpoint.ConditionKind(in.int()),
		Condition:     in.str(),
		PassCountKind: breakpoint.PassCountKind(in.int()),
		PassCount:     int(in.int()),
	}
	if in.err != nil {
		return in.err
	}
	if !bp.ConditionKind.Valid() {
		return &wire.KindError{Field: "condition kind", Value: int32(bp.ConditionKind)}
	}
	if !bp.PassCountKind.Valid() {
		return &wire.KindError{Field: "pass count kind", Value: int32(bp.PassCountKind)}
	}

	s.breakpoints.Add(bp)
	for _, mod := range s.modules.Snapshot() {
		if s.breakpoints.TryBind(bp.ID, mod) {
			s.sendBreakpointTag(wire.TagBreakpointBound, bp.ID)
			return nil
		}
	}
	// A module loading concurrently may have bound it already.
	if info, ok := s.breakpoints.FindByID(bp.ID); ok && info.Bound {
		return nil
	}
	s.sendBreakpointTag(wire.TagBreakpointFail, bp.ID)
	return nil
}

func (s *Session) sendBreakpointTag(tag wire.Tag, id int32) {
	_ = s.send(nil, func(w *wire.Writer) {
		w.WriteTag(tag).WriteInt(id)
	})
}

func (s *Session) cmdSetCondition() error {
	in := s.fields()
	id, kind, expr := in.int(), breakpoint.ConditionKind(in.int()), in.str()
	if in.err != nil {
		return in.err
	}
	if !kind.Valid() {
		return &wire.KindError{Field: "condition kind", Value: int32(kind)}
	}
	s.breakpoints.SetCondition(id, kind, expr)
	return nil
}

func (s *Session) cmdSetPassCount() error {
	in := s.fields()
	id, kind, count := in.int(), breakpoint.PassCountKind(in.int()), in.int()
	if in.err != nil {
		return in.err
	}
	if !kind.Valid() {
		return &wire.KindError{Field: "pass count kind", Value: int32(kind)}
	}
	s.breakpoints.SetPassCount(id, kind, int(count))
	return nil
}

func (s *Session) cmdSetHitCount() error {
	in := s.fields()
	id, count := in.int(), in.int()
	if in.err != nil {
		return in.err
	}
	s.breakpoints.SetHitCount(id, int(count))
	return nil
}

func (s *Session) cmdGetHitCount() error {
	in := s.fields()
	reqID, id := in.int(), in.int()
	if in.err != nil {
		return in.err
	}
	count, _ := s.breakpoints.HitCount(id)
	_ = s.send(nil, func(w *wire.Writer) {
		w.WriteTag(wire.TagHitCountReply).WriteInt(reqID).WriteInt(int32(count))
	})
	return nil
}

func (s *Session) cmdRemoveBreakpoint() error {
	in := s.fields()
	_, id := in.int(), in.int()
	if in.err != nil {
		return in.err
	}
	s.breakpoints.Remove(id)
	return nil
}

func (s *Session) cmdBreakAll() error {
	s.breakAll()
	return nil
}

func (s *Session) cmdResumeAll() error {
	s.resumeAll()
	return nil
}

func (s *Session) cmdResumeThread() error {
	in := s.fields()
	tid := in.int()
	if in.err != nil {
		return in.err
	}
	if t := s.thread(tid); t != nil {
		t.gate.Resume()
	}
	return nil
}

func (s *Session) cmdAutoResume() error {
	in := s.fields()
	tid := in.int()
	if in.err != nil {
		return in.err
	}
	if t := s.thread(tid); t != nil {
		t.setStepping(StepNone)
	}
	s.resumeAll()
	return nil
}

func (s *Session) cmdClearStepping() error {
	in := s.fields()
	tid := in.int()
	if in.err != nil {
		return in.err
	}
	if t := s.thread(tid); t != nil {
		t.setStepping(StepNone)
	}
	return nil
}

// blockedFrame resolves a frame id of a parked thread.
func (s *Session) blockedFrame(tid, frameID int32) (*thread, hook.Frame, error) {
	t := s.thread(tid)
	if t == nil {
		return nil, nil, fmt.Errorf("thread %d: %w", tid, ErrUnknownThread)
	}
	frames := t.stoppedFrames()
	if frames == nil {
		return nil, nil, fmt.Errorf("thread %d: %w", tid, blocking.ErrNotBlocked)
	}
	if frameID < 0 || int(frameID) >= len(frames) {
		return nil, nil, fmt.Errorf("thread %d has no frame %d", tid, frameID)
	}
	return t, frames[frameID], nil
}

func (s *Session) sendEvalError(t *thread, execID int32, err error) {
	_ = s.send(t, func(w *wire.Writer) {
		w.WriteTag(wire.TagEvalError).WriteInt(execID).WriteString(err.Error())
	})
}

// schedule runs work on the parked thread t and then sends the reply work
// returns. A panic in work is reported as an evaluation error for execID.
func (s *Session) schedule(t *thread, execID int32, work func() func()) error {
	return t.gate.Schedule(func() (reply func()) {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("evaluation panicked: %v", r)
				reply = func() { s.sendEvalError(t, execID, err) }
			}
		}()
		return work()
	})
}

func (s *Session) cmdExecute() error {
	in := s.fields()
	text, tid, frameID, execID := in.str(), in.int(), in.int(), in.int()
	_, reprKind := in.int(), capture.ReprKind(in.int())
	if in.err != nil {
		return in.err
	}

	t, frame, err := s.blockedFrame(tid, frameID)
	if err == nil {
		err = s.schedule(t, execID, func() func() {
			v, err := s.evaluate(text, frame)
			if err != nil {
				return func() { s.sendEvalError(t, execID, err) }
			}
			res := capture.Describe(text, v, reprKind, s.cfg.MaxReprLength).Result()
			return func() {
				_ = s.send(t, func(w *wire.Writer) {
					w.WriteTag(wire.TagEvalResult).WriteInt(execID).WriteEvalResult(res)
				})
			}
		})
	}
	if err != nil {
		s.sendEvalError(nil, execID, err)
	}
	return nil
}

func (s *Session) cmdEnumChildren() error {
	in := s.fields()
	text, tid, frameID, execID := in.str(), in.int(), in.int(), in.int()
	_ = in.int()
	if in.err != nil {
		return in.err
	}

	t, frame, err := s.blockedFrame(tid, frameID)
	if err == nil {
		err = s.schedule(t, execID, func() func() {
			v, err := s.evaluate(text, frame)
			if err != nil {
				return func() { s.sendEvalError(t, execID, err) }
			}
			children := capture.Children(v, s.cfg.MaxReprLength)
			return func() {
				_ = s.send(t, func(w *wire.Writer) {
					w.WriteTag(wire.TagChildren).WriteInt(execID).WriteInt(int32(len(children)))
					for _, c := range children {
						w.WriteString(c.Name).WriteEvalResult(c.Result())
					}
				})
			}
		})
	}
	if err != nil {
		s.sendEvalError(nil, execID, err)
	}
	return nil
}

func (s *Session) sendSetLine(t *thread, ok bool, tid int32, line int) {
	var flag int32
	if ok {
		flag = 1
	}
	_ = s.send(t, func(w *wire.Writer) {
		w.WriteTag(wire.TagSetLineResult).WriteInt(flag).WriteInt(tid).WriteInt(int32(line))
	})
}

func (s *Session) cmdSetLineNumber() error {
	in := s.fields()
	tid, frameID, line := in.int(), in.int(), int(in.int())
	if in.err != nil {
		return in.err
	}

	t, frame, err := s.blockedFrame(tid, frameID)
	if err != nil {
		s.sendSetLine(nil, false, tid, 0)
		return nil
	}
	setter, ok := frame.(hook.LineSetter)
	if !ok {
		s.sendSetLine(nil, false, tid, frame.Line())
		return nil
	}

	err = t.gate.Schedule(func() func() {
		if err := setter.SetLine(line); err != nil {
			s.logf("Cannot move thread %d to line %d: %v", tid, line, err)
			current := frame.Line()
			return func() { s.sendSetLine(t, false, tid, current) }
		}
		t.mu.Lock()
		t.lastLine = line
		t.mu.Unlock()
		return func() { s.sendSetLine(t, true, tid, line) }
	})
	if err != nil {
		s.sendSetLine(nil, false, tid, frame.Line())
	}
	return nil
}

func (s *Session) cmdDetach() error {
	s.detach(true)
	return errDetach
}

func (s *Session) cmdSetExceptionInfo() error {
	in := s.fields()
	def, n := exception.BreakMode(in.int()), in.int()
	if in.err != nil {
		return in.err
	}
	modes := make(map[string]exception.BreakMode)
	for i := int32(0); i < n; i++ {
		mode, name := exception.BreakMode(in.int()), in.str()
		if in.err != nil {
			return in.err
		}
		modes[name] = mode
	}
	s.policy.SetModes(def, modes)
	return nil
}

func (s *Session) cmdSetExceptionHandler() error {
	in := s.fields()
	file, n := in.str(), in.int()
	if in.err != nil {
		return in.err
	}
	var regions []exception.Region
	for i := int32(0); i < n; i++ {
		start, end, exprs := in.int(), in.int(), in.str()
		if in.err != nil {
			return in.err
		}
		regions = append(regions, exception.Region{
			Start:    int(start),
			End:      int(end),
			Handlers: strings.Split(exprs, "\t"),
		})
	}
	s.regions.Put(file, regions)
	return nil
}

func (s *Session) cmdAddMappedBreak() error {
	in := s.fields()
	line, id, file := in.int(), in.int(), in.str()
	if in.err != nil {
		return in.err
	}
	s.mapped.Add(id, file, int(line))
	return nil
}

func (s *Session) cmdRemoveMappedBreak() error {
	in := s.fields()
	line, id, file := in.int(), in.int(), in.str()
	if in.err != nil {
		return in.err
	}
	s.mapped.Remove(id, file, int(line))
	return nil
}

func (s *Session) cmdConnectSecondary() error {
	in := s.fields()
	port, id := in.int(), in.str()
	if in.err != nil {
		return in.err
	}
	if s.cfg.Secondary == nil {
		log.Printf("[AIVory Debugger] No secondary channel configured, ignoring connect to port %d", port)
		return nil
	}
	if err := s.cfg.Secondary.Connect(int(port), id); err != nil {
		log.Printf("[AIVory Debugger] Secondary channel connect failed: %v", err)
	}
	return nil
}

func (s *Session) cmdDisconnectSecondary() error {
	if s.cfg.Secondary == nil {
		s.logf("No secondary channel configured, ignoring disconnect")
		return nil
	}
	if err := s.cfg.Secondary.Disconnect(); err != nil {
		log.Printf("[AIVory Debugger] Secondary channel disconnect failed: %v", err)
	}
	return nil
}

func (s *Session) cmdLastAck() error {
	s.lastOnce.Do(func() { close(s.lastAck) })
	return nil
}
