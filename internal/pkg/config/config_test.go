package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

func TestLoad_EnvThenFlags(t *testing.T) {
	t.Setenv("CTF_RELAY_CONFIG", "/etc/trace.yaml")
	t.Setenv("CTF_RELAY_REMOTE", "10.0.0.2:9000")
	t.Setenv("CTF_RELAY_CONNECT_TIMEOUT", "3s")

	var cfg TCPCollectorConfig
	require.NoError(t, Load(&cfg))
	assert.Equal(t, "/etc/trace.yaml", cfg.TraceConfig)
	assert.Equal(t, "10.0.0.2:9000", cfg.Remote)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.ConnectRetryInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1024, cfg.BackendBatchSize)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--remote", "tcp://collector:8888", "--log-level", "debug"}))

	assert.Equal(t, "tcp://collector:8888", cfg.Remote)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Not given on the command line, so the environment value stands.
	assert.Equal(t, "/etc/trace.yaml", cfg.TraceConfig)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ImporterFileList(t *testing.T) {
	t.Setenv("CTF_RELAY_FILE", "a.bin,b.bin")

	var cfg ImporterConfig
	require.NoError(t, Load(&cfg))
	assert.Equal(t, []string{"a.bin", "b.bin"}, cfg.Files)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("CTF_RELAY_BACKEND_BATCH_SIZE", "many")

	var cfg ImporterConfig
	require.ErrorIs(t, Load(&cfg), domain.ErrConfig)
}

func TestValidate(t *testing.T) {
	base := CommonConfig{BackendURL: "file://./data", BackendBatchSize: 16}

	tests := []struct {
		name string
		cfg  interface{ Validate() error }
	}{
		{name: "importer without files", cfg: &ImporterConfig{CommonConfig: base}},
		{name: "zero batch size", cfg: &ImporterConfig{CommonConfig: CommonConfig{BackendURL: "file://x"}, Files: []string{"a"}}},
		{name: "empty backend", cfg: &ImporterConfig{CommonConfig: CommonConfig{BackendBatchSize: 1}, Files: []string{"a"}}},
		{name: "negative connect timeout", cfg: &TCPCollectorConfig{CommonConfig: base, ConnectTimeout: -time.Second}},
		{name: "bootloader conflict", cfg: &ProxyCollectorConfig{CommonConfig: base, Bootloader: true, BootloaderCompanionApplication: true}},
		{name: "thumb without elf", cfg: &ProxyCollectorConfig{CommonConfig: base, Thumb: true}},
		{name: "negative attach timeout", cfg: &ProxyCollectorConfig{CommonConfig: base, AttachTimeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.cfg.Validate(), domain.ErrConfig)
		})
	}
}

func TestValidate_DefaultsRemote(t *testing.T) {
	cfg := &ProxyCollectorConfig{CommonConfig: CommonConfig{BackendURL: "file://x", BackendBatchSize: 1}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultRemote, cfg.Remote)
}

func TestExpandedTraceConfigPath(t *testing.T) {
	t.Setenv("FW_DIR", "/work/fw")

	c := &CommonConfig{TraceConfig: "${FW_DIR}/build/effective.yaml"}
	path, err := c.ExpandedTraceConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/work/fw/build/effective.yaml", path)

	c.TraceConfig = "$CTF_RELAY_TEST_UNSET_VAR/effective.yaml"
	_, err = c.ExpandedTraceConfigPath()
	require.ErrorIs(t, err, domain.ErrConfig)

	c.TraceConfig = ""
	_, err = c.ExpandedTraceConfigPath()
	require.ErrorIs(t, err, domain.ErrConfig)
}

const traceDoc = `
trace:
  environment:
    hostname: board-7
  type:
    clock-types:
      sys:
        frequency: 32768
        uuid: 6c1f2a44-85d2-4c36-9f0a-3b1d2c4e5f60
        $c-type: uint64_t
      aux:
        frequency: 1000
    data-stream-types:
      main:
        $is-default: true
        $default-clock-type-name: sys
        $features:
          event-record:
            timestamp-field-type:
              class: unsigned-integer
              size: 32
      debug:
        $default-clock-type-name: aux
        $features:
          event-record:
            timestamp-field-type: false
      raw: {}
`

func TestParseTraceConfig(t *testing.T) {
	cfg, err := ParseTraceConfig([]byte(traceDoc))
	require.NoError(t, err)

	w, ok := cfg.TimestampWidth("main")
	assert.True(t, ok)
	assert.Equal(t, uint(32), w)

	_, ok = cfg.TimestampWidth("debug")
	assert.False(t, ok, "a disabled timestamp field has no width")
	_, ok = cfg.TimestampWidth("missing")
	assert.False(t, ok)

	name, clock := cfg.StreamClock("main")
	assert.Equal(t, "sys", name)
	require.NotNil(t, clock)
	require.NotNil(t, clock.UUID)
	assert.Equal(t, "6c1f2a44-85d2-4c36-9f0a-3b1d2c4e5f60", clock.UUID.String())
	assert.Equal(t, "uint64_t", clock.CType)

	_, clock = cfg.StreamClock("raw")
	assert.Nil(t, clock)

	assert.Equal(t, []string{"aux", "sys"}, cfg.ClockNames())
	assert.Equal(t, "board-7", cfg.Trace.Environment["hostname"])

	for id, want := range []string{"debug", "main", "raw"} {
		got, ok := cfg.StreamName(uint64(id))
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok = cfg.StreamName(3)
	assert.False(t, ok)
}

func TestParseTraceConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"not yaml": "trace: [",
		"unknown clock": `
trace:
  type:
    data-stream-types:
      main:
        $default-clock-type-name: nope
`,
		"oversized timestamp": `
trace:
  type:
    data-stream-types:
      main:
        $features:
          event-record:
            timestamp-field-type:
              size: 65
`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTraceConfig([]byte(doc))
			require.ErrorIs(t, err, domain.ErrConfig)
		})
	}
}

func TestLoadTraceConfig_MissingFile(t *testing.T) {
	_, err := LoadTraceConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, domain.ErrConfig)
}

func TestLoadTraceConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "effective.yaml")
	require.NoError(t, os.WriteFile(path, []byte(traceDoc), 0o644))

	cfg, err := LoadTraceConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Trace.Type.DataStreamTypes, 3)
}
