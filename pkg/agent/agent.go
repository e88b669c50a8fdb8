package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aivorynet/debugger-go/pkg/debugger"
	"github.com/aivorynet/debugger-go/pkg/evaluate/luaeval"
	"github.com/aivorynet/debugger-go/pkg/probe"
	"github.com/aivorynet/debugger-go/pkg/transport"
)

// ErrNotStarted is returned for operations that need an attached session.
var ErrNotStarted = errors.New("agent not started")

// Agent owns the debugger session of the process.
type Agent struct {
	config   *Config
	runtime  *probe.Runtime
	session  *debugger.Session
	started  bool
	starting bool
	mu       sync.RWMutex

	// dial is replaced in tests.
	dial func(ctx context.Context, addr string, debug bool) (io.ReadWriteCloser, error)
}

var (
	globalAgent *Agent
	globalOnce  sync.Once

	defaultRuntime = probe.NewRuntime()
)

// New creates an agent tracing rt. It does not connect.
func New(config *Config, rt *probe.Runtime) *Agent {
	return &Agent{config: config, runtime: rt, dial: dialController}
}

func dialController(ctx context.Context, addr string, debug bool) (io.ReadWriteCloser, error) {
	return transport.NewDialer(debug).Dial(ctx, addr)
}

// Init initializes the global agent and connects it in the background.
func Init(options ...ConfigOption) *Agent {
	globalOnce.Do(func() {
		globalAgent = New(NewConfig(options...), defaultRuntime)

		go func() {
			if err := globalAgent.Start(context.Background()); err != nil {
				log.Printf("[AIVory Debugger] Agent failed to start: %v", err)
			}
		}()
	})
	return globalAgent
}

// GetAgent returns the global agent instance.
func GetAgent() *Agent {
	return globalAgent
}

// Start connects to the controller and attaches the session. Every thread
// already running in the runtime stops at its next statement. The agent lock
// is not held while dialing.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started || a.starting {
		a.mu.Unlock()
		return nil
	}
	a.starting = true
	a.mu.Unlock()

	s, err := a.connect(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.starting = false
	if err != nil {
		return err
	}
	a.session = s
	a.started = true

	go a.handleSignals(s)
	return nil
}

func (a *Agent) connect(ctx context.Context) (*debugger.Session, error) {
	opts, err := a.config.sessionOptions()
	if err != nil {
		return nil, err
	}
	cfg := debugger.NewConfig(opts...)
	if cfg.Evaluator == nil {
		opts = append(opts, debugger.WithEvaluator(luaeval.New()))
	}

	conn, err := a.dial(ctx, cfg.Address, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Address, err)
	}

	s, err := debugger.Attach(ctx, a.runtime, conn, a.config.SessionID, opts...)
	if err != nil {
		return nil, err
	}
	log.Printf("[AIVory Debugger] Agent attached to %s as %s (%s)", cfg.Address, a.config.SessionID, a.config.Hostname)
	return s, nil
}

// Stop detaches the session.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return
	}
	a.session.Detach()
	a.started = false
}

// Session returns the attached session, nil before Start.
func (a *Agent) Session() *debugger.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// Runtime returns the runtime the agent traces.
func (a *Agent) Runtime() *probe.Runtime {
	return a.runtime
}

// Output forwards program output to the controller.
func (a *Agent) Output(text string) error {
	a.mu.RLock()
	s, started := a.session, a.started
	a.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	return s.Output(0, text)
}

func (a *Agent) handleSignals(s *debugger.Session) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.Stop()
		// Deliver the signal again with the default handling restored.
		signal.Stop(sigChan)
		if p, err := os.FindProcess(os.Getpid()); err == nil {
			_ = p.Signal(sig)
		}
	case <-s.Done():
	}
}

// Package-level convenience functions

// Go runs fn as a new traced thread of the default runtime.
func Go(name string, fn func(t *probe.Thread)) <-chan struct{} {
	return defaultRuntime.Go(name, fn)
}

// Shutdown stops the global agent.
func Shutdown() {
	if globalAgent != nil {
		globalAgent.Stop()
	}
}
