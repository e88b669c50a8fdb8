// Package agent runs the debugger inside the current process. It dials the
// controller, attaches a session to the process's probe runtime, and detaches
// when the process is asked to stop.
package agent

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/aivorynet/debugger-go/pkg/debugger"
)

// Config holds the agent configuration.
type Config struct {
	// SessionID is sent to the controller during the handshake.
	SessionID string
	Hostname  string
	// ConfigFile is an optional YAML file with debugger settings.
	ConfigFile string
	Debugger   []debugger.ConfigOption
}

// NewConfig creates a new configuration with defaults from environment variables.
func NewConfig(options ...ConfigOption) *Config {
	cfg := &Config{
		SessionID:  getEnvOrDefault("AIVORY_DEBUGGER_SESSION_ID", ""),
		ConfigFile: getEnvOrDefault("AIVORY_DEBUGGER_CONFIG", ""),
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	cfg.Hostname = hostname

	if cfg.SessionID == "" {
		cfg.SessionID = fmt.Sprintf("%s-%s", hostname, uuid.NewString())
	}

	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithSessionID sets the session id.
func WithSessionID(id string) ConfigOption {
	return func(c *Config) {
		c.SessionID = id
	}
}

// WithConfigFile sets the YAML file read when the agent starts.
func WithConfigFile(path string) ConfigOption {
	return func(c *Config) {
		c.ConfigFile = path
	}
}

// WithDebuggerOptions appends session options. They take precedence over
// the config file.
func WithDebuggerOptions(options ...debugger.ConfigOption) ConfigOption {
	return func(c *Config) {
		c.Debugger = append(c.Debugger, options...)
	}
}

// sessionOptions returns the options for the debugger session, the config
// file first.
func (c *Config) sessionOptions() ([]debugger.ConfigOption, error) {
	var opts []debugger.ConfigOption
	if c.ConfigFile != "" {
		fileOpt, err := debugger.LoadFile(c.ConfigFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fileOpt)
	}
	return append(opts, c.Debugger...), nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
