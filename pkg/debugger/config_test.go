package debugger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	t.Setenv("AIVORY_DEBUGGER_ADDRESS", "")
	t.Setenv("AIVORY_DEBUGGER_DEBUG", "")
	t.Setenv("AIVORY_DEBUGGER_HANDLER_TIMEOUT_MS", "")
	t.Setenv("AIVORY_DEBUGGER_LAST_ACK_TIMEOUT_MS", "")
	t.Setenv("AIVORY_DEBUGGER_MAX_REPR", "")
	t.Setenv("AIVORY_DEBUGGER_OPTIONS", "")
	t.Setenv("GOROOT", "/usr/local/go")

	cfg := NewConfig()
	assert.Equal(t, "localhost:5678", cfg.Address)
	assert.False(t, cfg.Debug)
	assert.Equal(t, 2*time.Second, cfg.HandlerTimeout)
	assert.Equal(t, 5*time.Second, cfg.LastAckTimeout)
	assert.Equal(t, 1000, cfg.MaxReprLength)
	assert.Equal(t, []string{"/usr/local/go"}, cfg.StdLibPaths)
	assert.False(t, cfg.RedirectOutput)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("AIVORY_DEBUGGER_ADDRESS", "10.0.0.2:9000")
	t.Setenv("AIVORY_DEBUGGER_DEBUG", "true")
	t.Setenv("AIVORY_DEBUGGER_HANDLER_TIMEOUT_MS", "250")
	t.Setenv("AIVORY_DEBUGGER_MAX_REPR", "not-a-number")
	t.Setenv("AIVORY_DEBUGGER_OPTIONS", "RedirectOutput,WaitOnAbnormalExit")

	cfg := NewConfig()
	assert.Equal(t, "10.0.0.2:9000", cfg.Address)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 250*time.Millisecond, cfg.HandlerTimeout)
	assert.Equal(t, 1000, cfg.MaxReprLength)
	assert.True(t, cfg.RedirectOutput)
	assert.True(t, cfg.WaitOnAbnormalExit)
	assert.False(t, cfg.WaitOnNormalExit)
}

func TestOptionsOverrideEnv(t *testing.T) {
	t.Setenv("AIVORY_DEBUGGER_ADDRESS", "from-env:1")

	cfg := NewConfig(WithAddress("from-code:2"), WithDebug(true), WithHandlerTimeout(time.Second))
	assert.Equal(t, "from-code:2", cfg.Address)
	assert.True(t, cfg.Debug)
	assert.Equal(t, time.Second, cfg.HandlerTimeout)
}

func TestParseOptions(t *testing.T) {
	cfg := &Config{}
	ParseOptions(" WaitOnNormalExit , BreakOnSystemExitZero,DjangoDebugging,DebugStdLib,Bogus,")(cfg)

	assert.True(t, cfg.WaitOnNormalExit)
	assert.True(t, cfg.BreakOnZeroExit)
	assert.True(t, cfg.TemplateDebugging)
	assert.True(t, cfg.DebugStdLib)
	assert.False(t, cfg.WaitOnAbnormalExit)
	assert.False(t, cfg.RedirectOutput)
}

func TestParseFile(t *testing.T) {
	opt, err := ParseFile([]byte(`
address: controller.internal:5678
debug: true
options: RedirectOutput,TemplateDebugging
package_markers: [go.mod]
ignored_paths:
  - /srv/vendor/
handler_timeout: 750ms
last_ack_timeout: 3s
max_repr_length: 64
`))
	require.NoError(t, err)

	cfg := &Config{Address: "default:1", HandlerTimeout: time.Second}
	opt(cfg)
	assert.Equal(t, "controller.internal:5678", cfg.Address)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.RedirectOutput)
	assert.True(t, cfg.TemplateDebugging)
	assert.Equal(t, []string{"go.mod"}, cfg.PackageMarkers)
	assert.Equal(t, []string{"/srv/vendor/"}, cfg.IgnoredPaths)
	assert.Equal(t, 750*time.Millisecond, cfg.HandlerTimeout)
	assert.Equal(t, 3*time.Second, cfg.LastAckTimeout)
	assert.Equal(t, 64, cfg.MaxReprLength)
}

func TestParseFileKeepsUnsetFields(t *testing.T) {
	opt, err := ParseFile([]byte("options: WaitOnNormalExit\n"))
	require.NoError(t, err)

	cfg := &Config{Address: "default:1", Debug: true, MaxReprLength: 1000}
	opt(cfg)
	assert.Equal(t, "default:1", cfg.Address)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 1000, cfg.MaxReprLength)
	assert.True(t, cfg.WaitOnNormalExit)
}

func TestParseFileErrors(t *testing.T) {
	_, err := ParseFile([]byte("address: [unterminated"))
	assert.Error(t, err)

	_, err = ParseFile([]byte("handler_timeout: soon\n"))
	assert.ErrorContains(t, err, "handler_timeout")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debugger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_repr_length: 10\n"), 0o600))

	opt, err := LoadFile(path)
	require.NoError(t, err)
	cfg := &Config{}
	opt(cfg)
	assert.Equal(t, 10, cfg.MaxReprLength)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
