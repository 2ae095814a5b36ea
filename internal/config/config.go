package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// Strategy timeouts follow the time each facility typically needs to answer:
// a satellite fix is slow, a radio scan is slower, metadata is immediate.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "linkforensics"

	// DefaultProviderTimeout bounds a single external lookup. A provider that
	// has not answered in 5 seconds is abandoned and the next one is tried.
	DefaultProviderTimeout = 5 * time.Second

	// DefaultICETimeout bounds candidate gathering for leak detection.
	DefaultICETimeout = 5 * time.Second

	// DefaultGPSTimeout bounds the high-accuracy position request.
	DefaultGPSTimeout = 15 * time.Second

	// DefaultGPSMaximumAge is the oldest cached fix the GPS strategy accepts.
	DefaultGPSMaximumAge = 60 * time.Second

	// DefaultWiFiTimeout bounds the WiFi scan plus the positioning lookup.
	DefaultWiFiTimeout = 20 * time.Second

	// DefaultBluetoothTimeout bounds the beacon scan.
	DefaultBluetoothTimeout = 10 * time.Second

	// DefaultCellTimeout bounds the cell tower scan plus locator lookup.
	DefaultCellTimeout = 5 * time.Second

	// DefaultBranchTimeout bounds each capture branch (network, fingerprint,
	// location). It is larger than the slowest strategy timeout.
	DefaultBranchTimeout = 20 * time.Second

	// DefaultStoreTimeout bounds the asynchronous store hand-off.
	DefaultStoreTimeout = 10 * time.Second

	// DefaultCheckpointInterval is how often open sessions flush focus events.
	DefaultCheckpointInterval = 10 * time.Second

	// DefaultSessionIdleTimeout closes session trackers that received no event.
	DefaultSessionIdleTimeout = 30 * time.Minute

	// DefaultProviderRateLimit is the request rate allowed per provider chain.
	// Free lookup services throttle aggressively; staying under 10/s avoids
	// being blocked during bursts of captures.
	DefaultProviderRateLimit = 10.0

	// DefaultProviderBurst is the burst size of the per-chain rate limiter.
	DefaultProviderBurst = 5

	// DefaultCacheTTL is how long provider answers are reused.
	DefaultCacheTTL = time.Hour

	// DefaultDBDriver is the persistence backend used when none is configured.
	DefaultDBDriver = DBDriverSQLite

	// DefaultListenAddress is the address of the HTTP API.
	DefaultListenAddress = "127.0.0.1:8080"

	// DefaultUserAgent identifies outbound lookups in provider logs.
	DefaultUserAgent = "linkforensics/1.0 (+https://github.com/nao1215/linkforensics)"
)

// Persistence backends.
const (
	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"
	DBDriverNone     = "none"
)

// Config holds all runtime configuration.
// It is populated from CLI flags and the data file, then passed through the
// application via dependency injection rather than global state.
//
// The struct is flat. Provider lists and lookup tables live in File because
// they are data, not knobs, and can be reloaded at runtime.
type Config struct {
	// ProxyAddress is an optional SOCKS5 proxy ("host:port") for outbound lookups.
	ProxyAddress string

	// ProviderTimeout bounds each external lookup.
	ProviderTimeout time.Duration

	// ICETimeout bounds candidate gathering.
	ICETimeout time.Duration

	// Location strategy timeouts.
	GPSTimeout       time.Duration
	GPSMaximumAge    time.Duration
	WiFiTimeout      time.Duration
	BluetoothTimeout time.Duration
	CellTimeout      time.Duration

	// BranchTimeout bounds each capture branch.
	BranchTimeout time.Duration

	// StoreTimeout bounds the asynchronous store hand-off.
	StoreTimeout time.Duration

	// CheckpointInterval is the periodic focus-event flush interval.
	CheckpointInterval time.Duration

	// SessionIdleTimeout closes idle session trackers in server mode.
	SessionIdleTimeout time.Duration

	// ProviderRateLimit and ProviderBurst throttle each provider chain.
	// A rate of zero disables throttling.
	ProviderRateLimit float64
	ProviderBurst     int

	// CacheTTL is how long provider answers are cached.
	CacheTTL time.Duration

	// RedisAddress enables the shared Redis lookup cache when set.
	// Without it an in-process cache is used.
	RedisAddress string

	// DBDriver selects the persistence backend: sqlite, postgres or none.
	DBDriver string

	// DBDir is the directory of the SQLite database.
	// Defaults to XDG data directory (~/.local/share/linkforensics on Linux).
	DBDir string

	// PostgresDSN is the connection string for the postgres driver.
	PostgresDSN string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// JSONLog switches the log format from text to JSON.
	JSONLog bool

	// MaskIP masks IP addresses in log output.
	MaskIP bool

	// ConfigFilePath is the path to the data file.
	// If empty, the tool searches for .linkforensics in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// Data holds provider lists and lookup tables. Nil means DefaultFile().
	Data *File

	// JSONReport and MarkdownReport select the report format.
	// They are mutually exclusive; neither means plain text.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// ListenAddress is the HTTP API address for the serve command.
	ListenAddress string

	// UserAgent is sent with outbound lookups.
	UserAgent string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		ProviderTimeout:    DefaultProviderTimeout,
		ICETimeout:         DefaultICETimeout,
		GPSTimeout:         DefaultGPSTimeout,
		GPSMaximumAge:      DefaultGPSMaximumAge,
		WiFiTimeout:        DefaultWiFiTimeout,
		BluetoothTimeout:   DefaultBluetoothTimeout,
		CellTimeout:        DefaultCellTimeout,
		BranchTimeout:      DefaultBranchTimeout,
		StoreTimeout:       DefaultStoreTimeout,
		CheckpointInterval: DefaultCheckpointInterval,
		SessionIdleTimeout: DefaultSessionIdleTimeout,
		ProviderRateLimit:  DefaultProviderRateLimit,
		ProviderBurst:      DefaultProviderBurst,
		CacheTTL:           DefaultCacheTTL,
		DBDriver:           DefaultDBDriver,
		DBDir:              XDGDataDir(),
		ListenAddress:      DefaultListenAddress,
		UserAgent:          DefaultUserAgent,
	}
}

// DataFile returns the configured data file, or the built-in defaults.
func (c *Config) DataFile() *File {
	if c.Data == nil {
		return DefaultFile()
	}
	return c.Data
}

// XDGDataDir returns the XDG data directory for linkforensics.
// On Linux: ~/.local/share/linkforensics
// On macOS: ~/Library/Application Support/linkforensics
// On Windows: %LOCALAPPDATA%\linkforensics
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for linkforensics.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as one of the sentinel errors.
func (c *Config) Validate() error {
	for _, d := range []time.Duration{
		c.ProviderTimeout,
		c.ICETimeout,
		c.GPSTimeout,
		c.WiFiTimeout,
		c.BluetoothTimeout,
		c.CellTimeout,
		c.BranchTimeout,
		c.StoreTimeout,
	} {
		if d <= 0 {
			return ErrInvalidTimeout
		}
	}

	if c.CheckpointInterval <= 0 {
		return ErrInvalidCheckpointInterval
	}

	if c.SessionIdleTimeout <= 0 {
		return ErrInvalidSessionIdleTimeout
	}

	if c.ProviderRateLimit < 0 || (c.ProviderRateLimit > 0 && c.ProviderBurst <= 0) {
		return ErrInvalidRateLimit
	}

	if c.CacheTTL < 0 {
		return ErrInvalidCacheTTL
	}

	switch c.DBDriver {
	case DBDriverSQLite:
		if c.DBDir == "" {
			return ErrMissingDBDir
		}
	case DBDriverPostgres:
		if c.PostgresDSN == "" {
			return ErrMissingPostgresDSN
		}
	case DBDriverNone:
	default:
		return ErrInvalidDBDriver
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.Data != nil {
		if err := c.Data.Validate(); err != nil {
			return err
		}
	}

	return nil
}
