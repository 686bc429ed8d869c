package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "CTF_RELAY_"

// DefaultRemote is used by the collectors when no remote is configured.
const DefaultRemote = "127.0.0.1:8888"

// CommonConfig holds the settings shared by every entry point.
type CommonConfig struct {
	TraceConfig      string `env:"CONFIG"`
	StartEvent       string `env:"START_EVENT"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	BackendURL       string `env:"BACKEND_URL" envDefault:"file://./ctf-relay-data"`
	BackendBatchSize int    `env:"BACKEND_BATCH_SIZE" envDefault:"1024"`
	AdminAddr        string `env:"ADMIN_ADDR"`
	RunID            string `env:"RUN_ID"`
}

// HasCommonConfig is implemented by every entry point's configuration.
type HasCommonConfig interface {
	Common() *CommonConfig
}

// AddFlags binds the shared flags. Current values become the flag defaults,
// so flags only override what the environment set when given explicitly.
func (c *CommonConfig) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.TraceConfig, "config", c.TraceConfig, "barectf effective-configuration yaml file")
	fs.StringVar(&c.StartEvent, "start-event", c.StartEvent, "event name signalling a trace (re)start, used to detect device restarts")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&c.BackendURL, "backend", c.BackendURL, "backend URL (redis://, postgres://, nats://, file://)")
	fs.IntVar(&c.BackendBatchSize, "backend-batch-size", c.BackendBatchSize, "records buffered before the backend client flushes")
	fs.StringVar(&c.AdminAddr, "admin-addr", c.AdminAddr, "address for the /metrics, /health and /status server (disabled when empty)")
	fs.StringVar(&c.RunID, "run-id", c.RunID, "run id stored with every backend record (random when empty)")
}

// ExpandedTraceConfigPath returns the trace configuration path with $VAR and
// ${VAR} references substituted from the environment.
func (c *CommonConfig) ExpandedTraceConfigPath() (string, error) {
	if c.TraceConfig == "" {
		return "", fmt.Errorf("%w: missing barectf effective-configuration yaml file", domain.ErrConfig)
	}
	var missing string
	path := os.Expand(c.TraceConfig, func(name string) string {
		v, ok := os.LookupEnv(name)
		if !ok && missing == "" {
			missing = name
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("%w: trace configuration path references unset variable %q", domain.ErrConfig, missing)
	}
	return path, nil
}

func (c *CommonConfig) validate() error {
	if c.BackendBatchSize <= 0 {
		return fmt.Errorf("%w: backend batch size must be positive, got %d", domain.ErrConfig, c.BackendBatchSize)
	}
	if c.BackendURL == "" {
		return fmt.Errorf("%w: missing backend URL", domain.ErrConfig)
	}
	return nil
}

// ImporterConfig configures the capture file importer.
type ImporterConfig struct {
	CommonConfig
	Files []string `env:"FILE" envSeparator:","`
}

func (c *ImporterConfig) Common() *CommonConfig { return &c.CommonConfig }

// Validate checks the importer configuration.
func (c *ImporterConfig) Validate() error {
	if err := c.validate(); err != nil {
		return err
	}
	if len(c.Files) == 0 {
		return fmt.Errorf("%w: missing CTF stream file(s), specify a path to import on the command line or with %sFILE", domain.ErrConfig, EnvPrefix)
	}
	return nil
}

// TCPCollectorConfig configures the direct TCP collector.
type TCPCollectorConfig struct {
	CommonConfig
	Remote               string        `env:"REMOTE" envDefault:"127.0.0.1:8888"`
	ConnectTimeout       time.Duration `env:"CONNECT_TIMEOUT"`
	ConnectRetryInterval time.Duration `env:"CONNECT_RETRY_INTERVAL" envDefault:"100ms"`
}

func (c *TCPCollectorConfig) Common() *CommonConfig { return &c.CommonConfig }

// AddFlags binds the TCP collector flags.
func (c *TCPCollectorConfig) AddFlags(fs *pflag.FlagSet) {
	c.CommonConfig.AddFlags(fs)
	fs.StringVar(&c.Remote, "remote", c.Remote, "remote TCP server URL or address:port")
	fs.DurationVar(&c.ConnectTimeout, "connect-timeout", c.ConnectTimeout, "keep retrying the connection for this long (0 disables retries)")
	fs.DurationVar(&c.ConnectRetryInterval, "connect-retry-interval", c.ConnectRetryInterval, "minimum delay between connection attempts")
}

// Validate checks the TCP collector configuration.
func (c *TCPCollectorConfig) Validate() error {
	if err := c.validate(); err != nil {
		return err
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("%w: invalid connect-timeout %s", domain.ErrConfig, c.ConnectTimeout)
	}
	if c.Remote == "" {
		c.Remote = DefaultRemote
	}
	return nil
}

// ProxyCollectorConfig configures the probe proxy collector.
type ProxyCollectorConfig struct {
	CommonConfig
	Remote                         string        `env:"REMOTE" envDefault:"127.0.0.1:8888"`
	ConnectTimeout                 time.Duration `env:"CONNECT_TIMEOUT"`
	ConnectRetryInterval           time.Duration `env:"CONNECT_RETRY_INTERVAL" envDefault:"100ms"`
	AttachTimeout                  time.Duration `env:"ATTACH_TIMEOUT"`
	ControlBlockAddress            string        `env:"CONTROL_BLOCK_ADDRESS"`
	UpChannel                      uint32        `env:"UP_CHANNEL" envDefault:"2"`
	ProbeSelector                  string        `env:"PROBE_SELECTOR"`
	Chip                           string        `env:"CHIP"`
	Protocol                       string        `env:"PROTOCOL" envDefault:"SWD"`
	SpeedKHz                       uint32        `env:"SPEED" envDefault:"4000"`
	Core                           uint32        `env:"CORE"`
	Reset                          bool          `env:"RESET"`
	AttachUnderReset               bool          `env:"ATTACH_UNDER_RESET"`
	ElfFile                        string        `env:"ELF_FILE"`
	Thumb                          bool          `env:"THUMB"`
	Breakpoint                     string        `env:"BREAKPOINT"`
	StopOnBreakpoint               string        `env:"STOP_ON_BREAKPOINT"`
	RTTReadBufferSize              uint32        `env:"RTT_READ_BUFFER_SIZE" envDefault:"1024"`
	RTTPollInterval                time.Duration `env:"RTT_POLL_INTERVAL" envDefault:"1ms"`
	RTTIdlePollInterval            time.Duration `env:"RTT_IDLE_POLL_INTERVAL" envDefault:"100ms"`
	ForceExclusive                 bool          `env:"FORCE_EXCLUSIVE"`
	AutoRecover                    bool          `env:"AUTO_RECOVER"`
	NoDataStopTimeout              time.Duration `env:"NO_DATA_STOP_TIMEOUT"`
	Bootloader                     bool          `env:"BOOTLOADER"`
	BootloaderCompanionApplication bool          `env:"BOOTLOADER_COMPANION_APPLICATION"`
}

func (c *ProxyCollectorConfig) Common() *CommonConfig { return &c.CommonConfig }

// AddFlags binds the proxy collector flags.
func (c *ProxyCollectorConfig) AddFlags(fs *pflag.FlagSet) {
	c.CommonConfig.AddFlags(fs)
	fs.StringVar(&c.Remote, "remote", c.Remote, "remote RTT proxy server URL or address:port")
	fs.DurationVar(&c.ConnectTimeout, "connect-timeout", c.ConnectTimeout, "keep retrying the connection for this long (0 disables retries)")
	fs.DurationVar(&c.ConnectRetryInterval, "connect-retry-interval", c.ConnectRetryInterval, "minimum delay between connection attempts")
	fs.DurationVar(&c.AttachTimeout, "attach-timeout", c.AttachTimeout, "target attach timeout; the proxy keeps scanning for the RTT control block this long")
	fs.StringVar(&c.ControlBlockAddress, "control-block-address", c.ControlBlockAddress, "RTT control block address (decimal or 0x hex)")
	fs.Uint32Var(&c.UpChannel, "up-channel", c.UpChannel, "RTT up (target to host) channel number")
	fs.StringVar(&c.ProbeSelector, "probe", c.ProbeSelector, "probe selector VID:PID or VID:PID:Serial")
	fs.StringVar(&c.Chip, "chip", c.Chip, "target chip (auto-detected when empty)")
	fs.StringVar(&c.Protocol, "protocol", c.Protocol, "probe protocol (swd, jtag)")
	fs.Uint32Var(&c.SpeedKHz, "speed", c.SpeedKHz, "protocol speed in kHz")
	fs.Uint32Var(&c.Core, "core", c.Core, "target core")
	fs.BoolVar(&c.Reset, "reset", c.Reset, "reset the target on startup")
	fs.BoolVar(&c.AttachUnderReset, "attach-under-reset", c.AttachUnderReset, "attach to the chip under hard-reset")
	fs.StringVar(&c.ElfFile, "elf-file", c.ElfFile, "ELF file used to resolve the RTT control block and breakpoint symbols")
	fs.BoolVar(&c.Thumb, "thumb", c.Thumb, "clear the thumb bit of breakpoint symbol addresses")
	fs.StringVar(&c.Breakpoint, "breakpoint", c.Breakpoint, "address or symbol of a breakpoint to set up RTT on")
	fs.StringVar(&c.StopOnBreakpoint, "stop-on-breakpoint", c.StopOnBreakpoint, "address or symbol of a breakpoint that ends the session")
	fs.Uint32Var(&c.RTTReadBufferSize, "rtt-reader-buffer-size", c.RTTReadBufferSize, "host-side RTT buffer size")
	fs.DurationVar(&c.RTTPollInterval, "rtt-poll-interval", c.RTTPollInterval, "host-side RTT polling interval")
	fs.DurationVar(&c.RTTIdlePollInterval, "rtt-idle-poll-interval", c.RTTIdlePollInterval, "host-side RTT idle polling interval")
	fs.BoolVar(&c.ForceExclusive, "force-exclusive", c.ForceExclusive, "force exclusive access to the probe")
	fs.BoolVar(&c.AutoRecover, "auto-recover", c.AutoRecover, "recover the probe connection on errors")
	fs.DurationVar(&c.NoDataStopTimeout, "no-data-timeout", c.NoDataStopTimeout, "stop the session when no data arrives for this long")
	fs.BoolVar(&c.Bootloader, "bootloader", c.Bootloader, "this session owns the core's control functionality")
	fs.BoolVar(&c.BootloaderCompanionApplication, "bootloader-companion-application", c.BootloaderCompanionApplication, "this session never drives the core's control functionality")
}

// Validate checks the proxy collector configuration.
func (c *ProxyCollectorConfig) Validate() error {
	if err := c.validate(); err != nil {
		return err
	}
	if c.Bootloader && c.BootloaderCompanionApplication {
		return fmt.Errorf("%w: bootloader and bootloader-companion-application are mutually exclusive", domain.ErrConfig)
	}
	if c.Thumb && c.ElfFile == "" {
		return fmt.Errorf("%w: thumb requires an ELF file", domain.ErrConfig)
	}
	if c.ConnectTimeout < 0 || c.AttachTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", domain.ErrConfig)
	}
	if c.Remote == "" {
		c.Remote = DefaultRemote
	}
	return nil
}

// Load reads .env (if present) and the environment into cfg.
func Load(cfg HasCommonConfig) error {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfig, err)
	}
	return nil
}
