package debugger

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aivorynet/debugger-go/pkg/exception"
	"github.com/aivorynet/debugger-go/pkg/hook"
)

// SecondaryChannel is an optional side channel the controller can ask the
// engine to open, such as an interactive console.
type SecondaryChannel interface {
	Connect(port int, id string) error
	Disconnect() error
}

// Config holds the session configuration.
type Config struct {
	Address        string
	Debug          bool
	Evaluator      hook.Evaluator
	Analyzer       exception.Analyzer
	Secondary      SecondaryChannel
	PackageMarkers []string
	IgnoredPaths   []string
	StdLibPaths    []string
	HandlerTimeout time.Duration
	LastAckTimeout time.Duration
	MaxReprLength  int

	WaitOnAbnormalExit bool
	WaitOnNormalExit   bool
	RedirectOutput     bool
	BreakOnZeroExit    bool
	DebugStdLib        bool
	TemplateDebugging  bool
}

// NewConfig creates a new configuration with defaults from environment variables.
func NewConfig(options ...ConfigOption) *Config {
	cfg := &Config{
		Address:        getEnvOrDefault("AIVORY_DEBUGGER_ADDRESS", "localhost:5678"),
		Debug:          getEnvOrDefault("AIVORY_DEBUGGER_DEBUG", "false") == "true",
		HandlerTimeout: time.Duration(getEnvIntOrDefault("AIVORY_DEBUGGER_HANDLER_TIMEOUT_MS", 2000)) * time.Millisecond,
		LastAckTimeout: time.Duration(getEnvIntOrDefault("AIVORY_DEBUGGER_LAST_ACK_TIMEOUT_MS", 5000)) * time.Millisecond,
		MaxReprLength:  getEnvIntOrDefault("AIVORY_DEBUGGER_MAX_REPR", 1000),
	}
	if root := os.Getenv("GOROOT"); root != "" {
		cfg.StdLibPaths = []string{root}
	}
	if opts := os.Getenv("AIVORY_DEBUGGER_OPTIONS"); opts != "" {
		ParseOptions(opts)(cfg)
	}

	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithAddress sets the controller address used by launchers.
func WithAddress(addr string) ConfigOption {
	return func(c *Config) {
		c.Address = addr
	}
}

// WithDebug enables debug logging.
func WithDebug(debug bool) ConfigOption {
	return func(c *Config) {
		c.Debug = debug
	}
}

// WithEvaluator sets the expression evaluator.
func WithEvaluator(ev hook.Evaluator) ConfigOption {
	return func(c *Config) {
		c.Evaluator = ev
	}
}

// WithAnalyzer replaces the handled-exception analysis.
func WithAnalyzer(a exception.Analyzer) ConfigOption {
	return func(c *Config) {
		c.Analyzer = a
	}
}

// WithSecondaryChannel sets the side channel opened on request.
func WithSecondaryChannel(ch SecondaryChannel) ConfigOption {
	return func(c *Config) {
		c.Secondary = ch
	}
}

// WithPackageMarkers sets the file names that mark a package directory for
// relaxed breakpoint path matching.
func WithPackageMarkers(markers ...string) ConfigOption {
	return func(c *Config) {
		c.PackageMarkers = markers
	}
}

// WithIgnoredPaths hides code under the given path prefixes.
func WithIgnoredPaths(prefixes ...string) ConfigOption {
	return func(c *Config) {
		c.IgnoredPaths = prefixes
	}
}

// WithHandlerTimeout bounds the wait for exception handler regions.
func WithHandlerTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.HandlerTimeout = d
	}
}

// WithLastAckTimeout bounds the wait for the controller's final ack.
func WithLastAckTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.LastAckTimeout = d
	}
}

// WithBreakOnZeroExit makes a zero exit code eligible to stop.
func WithBreakOnZeroExit(v bool) ConfigOption {
	return func(c *Config) {
		c.BreakOnZeroExit = v
	}
}

// WithTemplateDebugging enables source-mapped breakpoints.
func WithTemplateDebugging(v bool) ConfigOption {
	return func(c *Config) {
		c.TemplateDebugging = v
	}
}

// ParseOptions converts the launcher's comma separated option string.
// Unknown names are ignored.
func ParseOptions(s string) ConfigOption {
	var names []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return func(c *Config) {
		for _, name := range names {
			switch name {
			case "WaitOnAbnormalExit":
				c.WaitOnAbnormalExit = true
			case "WaitOnNormalExit":
				c.WaitOnNormalExit = true
			case "RedirectOutput":
				c.RedirectOutput = true
			case "BreakOnSystemExitZero":
				c.BreakOnZeroExit = true
			case "DebugStdLib":
				c.DebugStdLib = true
			case "TemplateDebugging", "DjangoDebugging":
				c.TemplateDebugging = true
			}
		}
	}
}

type fileConfig struct {
	Address        string   `yaml:"address"`
	Debug          *bool    `yaml:"debug"`
	Options        string   `yaml:"options"`
	PackageMarkers []string `yaml:"package_markers"`
	IgnoredPaths   []string `yaml:"ignored_paths"`
	HandlerTimeout string   `yaml:"handler_timeout"`
	LastAckTimeout string   `yaml:"last_ack_timeout"`
	MaxReprLength  int      `yaml:"max_repr_length"`
}

// LoadFile reads a YAML configuration file and returns an option applying it.
func LoadFile(path string) (ConfigOption, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseFile(data)
}

// ParseFile parses a YAML configuration document.
func ParseFile(data []byte) (ConfigOption, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var handlerTimeout, lastAckTimeout time.Duration
	var err error
	if fc.HandlerTimeout != "" {
		if handlerTimeout, err = time.ParseDuration(fc.HandlerTimeout); err != nil {
			return nil, fmt.Errorf("parse config: handler_timeout: %w", err)
		}
	}
	if fc.LastAckTimeout != "" {
		if lastAckTimeout, err = time.ParseDuration(fc.LastAckTimeout); err != nil {
			return nil, fmt.Errorf("parse config: last_ack_timeout: %w", err)
		}
	}

	return func(c *Config) {
		if fc.Address != "" {
			c.Address = fc.Address
		}
		if fc.Debug != nil {
			c.Debug = *fc.Debug
		}
		if fc.Options != "" {
			ParseOptions(fc.Options)(c)
		}
		if len(fc.PackageMarkers) > 0 {
			c.PackageMarkers = fc.PackageMarkers
		}
		if len(fc.IgnoredPaths) > 0 {
			c.IgnoredPaths = fc.IgnoredPaths
		}
		if handlerTimeout > 0 {
			c.HandlerTimeout = handlerTimeout
		}
		if lastAckTimeout > 0 {
			c.LastAckTimeout = lastAckTimeout
		}
		if fc.MaxReprLength > 0 {
			c.MaxReprLength = fc.MaxReprLength
		}
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
