// Package exception decides whether a raised exception stops the debuggee.
package exception

import (
	"context"
	"log"
	"sync"

	"github.com/aivorynet/debugger-go/pkg/hook"
)

// BreakMode is a bit set selecting when an exception type breaks.
type BreakMode int32

const (
	ModeNever     BreakMode = 0
	ModeAlways    BreakMode = 1
	ModeUnhandled BreakMode = 32
)

// BreakType classifies a stop reported for an exception.
type BreakType int32

const (
	BreakNone      BreakType = 0
	BreakUnhandled BreakType = 1
	BreakHandled   BreakType = 2
)

// Analyzer judges whether an exception will be caught before it leaves the
// debuggable code.
type Analyzer interface {
	// IsHandled receives the trace from the frame handling the exception
	// inward to the frame that raised it.
	IsHandled(ctx context.Context, exc hook.Exception, trace []hook.Frame) bool
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, exc hook.Exception, trace []hook.Frame) bool

// IsHandled calls f.
func (f AnalyzerFunc) IsHandled(ctx context.Context, exc hook.Exception, trace []hook.Frame) bool {
	return f(ctx, exc, trace)
}

// Policy holds the configured break modes.
type Policy struct {
	debug    bool
	analyzer Analyzer

	mu              sync.RWMutex
	defaultMode     BreakMode
	modes           map[string]BreakMode
	breakOnZeroExit bool
}

// NewPolicy creates a policy that breaks on unhandled exceptions only.
func NewPolicy(debug bool, analyzer Analyzer) *Policy {
	if analyzer == nil {
		analyzer = AnalyzerFunc(func(context.Context, hook.Exception, []hook.Frame) bool { return false })
	}
	return &Policy{
		debug:       debug,
		analyzer:    analyzer,
		defaultMode: ModeUnhandled,
		modes:       make(map[string]BreakMode),
	}
}

// SetModes replaces the default mode and every per-type override.
func (p *Policy) SetModes(defaultMode BreakMode, modes map[string]BreakMode) {
	m := make(map[string]BreakMode, len(modes))
	for name, mode := range modes {
		m[name] = mode
	}

	p.mu.Lock()
	p.defaultMode = defaultMode
	p.modes = m
	p.mu.Unlock()

	if p.debug {
		log.Printf("[AIVory Debugger] Exception modes updated: default=%d overrides=%d", defaultMode, len(m))
	}
}

// SetBreakOnZeroExit controls whether a zero exit code may stop.
func (p *Policy) SetBreakOnZeroExit(v bool) {
	p.mu.Lock()
	p.breakOnZeroExit = v
	p.mu.Unlock()
}

// ModeFor returns the mode configured for typeName.
func (p *Policy) ModeFor(typeName string) BreakMode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if mode, ok := p.modes[typeName]; ok {
		return mode
	}
	return p.defaultMode
}

// ShouldBreak classifies exc. BreakNone means the thread keeps running.
func (p *Policy) ShouldBreak(ctx context.Context, exc hook.Exception, trace []hook.Frame) BreakType {
	if code, isExit := exc.ExitCode(); isExit && code == 0 {
		p.mu.RLock()
		force := p.breakOnZeroExit
		p.mu.RUnlock()
		if !force {
			return BreakNone
		}
	}

	mode := p.ModeFor(exc.TypeName())
	if mode == ModeNever {
		return BreakNone
	}

	handled := p.analyzer.IsHandled(ctx, exc, trace)
	switch {
	case mode&ModeAlways != 0:
		if handled {
			return BreakHandled
		}
		return BreakUnhandled
	case mode&ModeUnhandled != 0 && !handled:
		return BreakUnhandled
	default:
		return BreakNone
	}
}
