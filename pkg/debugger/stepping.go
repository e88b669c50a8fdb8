package debugger

import "fmt"

// StepMode is a thread's stepping state. Values above StepOver and below
// StepOut count how many calls deep the thread is relative to where the step
// started.
type StepMode int

const (
	StepOut         StepMode = -1
	StepNone        StepMode = 0
	StepBreak       StepMode = 1
	StepLaunchBreak StepMode = 2
	StepAttachBreak StepMode = 3
	StepInto        StepMode = 4
	StepOver        StepMode = 5
)

func (m StepMode) String() string {
	switch {
	case m == StepOut:
		return "out"
	case m == StepNone:
		return "none"
	case m == StepBreak:
		return "break"
	case m == StepLaunchBreak:
		return "launch-break"
	case m == StepAttachBreak:
		return "attach-break"
	case m == StepInto:
		return "into"
	case m == StepOver:
		return "over"
	case m > StepOver:
		return fmt.Sprintf("over+%d", int(m-StepOver))
	default:
		return fmt.Sprintf("out-%d", int(StepOut-m))
	}
}

// onCall returns the mode after entering a debuggable call. resetLine is set
// when the next line must stop even if it repeats the last stopped line.
func (m StepMode) onCall() (next StepMode, resetLine bool) {
	switch {
	case m == StepInto:
		return StepOver, true
	case m >= StepOver:
		return m + 1, false
	case m <= StepOut:
		return m - 1, false
	default:
		return m, false
	}
}

// onReturn returns the mode after leaving a debuggable call.
func (m StepMode) onReturn() (next StepMode, resetLine bool) {
	switch {
	case m > StepOver:
		return m - 1, false
	case m < StepOut:
		return m + 1, false
	case m == StepOut, m == StepInto, m == StepOver:
		return StepOver, true
	default:
		return m, false
	}
}

// stopsOnLine reports whether a step can complete at a line in this mode.
func (m StepMode) stopsOnLine() bool {
	return m == StepInto || m == StepOver
}

// isMarker reports whether m is a one-shot stop request.
func (m StepMode) isMarker() bool {
	return m == StepBreak || m == StepLaunchBreak || m == StepAttachBreak
}
