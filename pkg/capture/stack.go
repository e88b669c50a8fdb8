package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"
)

// StackFrame is one Go frame of the engine itself.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

func (f StackFrame) String() string {
	return fmt.Sprintf("%s (%s:%d)", f.Function, f.File, f.Line)
}

// Callers captures the calling goroutine's stack, skipping skip frames above
// the caller of Callers. Runtime internals are left out.
func Callers(skip int) []StackFrame {
	pcs := make([]uintptr, 50)
	n := runtime.Callers(skip+2, pcs)
	iter := runtime.CallersFrames(pcs[:n])

	var frames []StackFrame
	for {
		frame, more := iter.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") && frame.Function != "" {
			frames = append(frames, StackFrame{
				Function: shortFunc(frame.Function),
				File:     frame.File,
				Line:     frame.Line,
			})
		}
		if !more {
			break
		}
	}
	return frames
}

// Fingerprint identifies a fault by its message and innermost frames, so
// repeats of the same fault can be recognized.
func Fingerprint(msg string, frames []StackFrame) string {
	parts := []string{msg}
	for i, f := range frames {
		if i >= 5 {
			break
		}
		parts = append(parts, fmt.Sprintf("%s:%d", f.Function, f.Line))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:8])
}

// FormatStack renders frames one per line.
func FormatStack(frames []StackFrame) string {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString("\t")
		b.WriteString(f.String())
		b.WriteString("\n")
	}
	return b.String()
}

// shortFunc drops the import path from a qualified function name.
func shortFunc(full string) string {
	if i := strings.LastIndex(full, "/"); i >= 0 {
		return full[i+1:]
	}
	return full
}
