package core

import (
	"crypto/subtle"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/solve-it-project/solveit/internal/kb"
	"github.com/solve-it-project/solveit/internal/search"
	"github.com/solve-it-project/solveit/internal/snapshot"
	"github.com/solve-it-project/solveit/internal/store"
)

// Environment overrides.
const (
	EnvConfig   = "SOLVEIT_CONFIG"
	EnvDataRoot = "SOLVEIT_DATA_ROOT"
	EnvAPIKey   = "SOLVEIT_API_KEY"
	EnvHost     = "SOLVEIT_HOST"
	EnvPort     = "SOLVEIT_PORT"
)

// Source drivers.
const (
	SourceFS = "fs"
	SourceS3 = "s3"
)

// Config holds the entire solveit configuration.
type Config struct {
	Data     DataConfig     `yaml:"data"`
	Server   ServerConfig   `yaml:"server"`
	Bus      BusConfig      `yaml:"bus"`
	Search   SearchConfig   `yaml:"search"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DataConfig selects where the knowledge base is read from.
type DataConfig struct {
	Source  string         `yaml:"source"` // "fs" or "s3"
	Root    string         `yaml:"root"`
	Mapping string         `yaml:"mapping"`
	S3      store.S3Config `yaml:"s3"`
	// Watch polls the fs data directory at this interval and reloads on
	// change. Zero disables.
	Watch time.Duration `yaml:"watch"`
}

// ServerConfig holds API server settings.
type ServerConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	APIKeys      []string `yaml:"api_keys"`       // read and write
	ReadOnlyKeys []string `yaml:"read_only_keys"` // GET only
	CORSOrigins  []string `yaml:"cors_origins"`
	RateLimit    int      `yaml:"rate_limit"` // requests per second per client IP, 0 disables
}

// BusConfig holds NATS event bus settings.
type BusConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Embedded bool   `yaml:"embedded"`
	DataDir  string `yaml:"data_dir"`
	Port     int    `yaml:"port"` // -1 picks a free port
}

// SearchConfig holds defaults applied when a caller leaves options unset.
type SearchConfig struct {
	DefaultLogic string `yaml:"default_logic"`
	Substring    bool   `yaml:"substring"`
}

// SnapshotConfig selects the SQL export target.
type SnapshotConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	BufferSize int    `yaml:"buffer_size"`
}

// DefaultConfig returns a Config that reads ./data with the solve-it mapping.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Source:  SourceFS,
			Root:    ".",
			Mapping: kb.DefaultMapping,
			S3: store.S3Config{
				Region: "us-east-1",
			},
		},
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      1790,
			RateLimit: 50,
		},
		Bus: BusConfig{
			Enabled:  false,
			URL:      "nats://127.0.0.1:4222",
			Embedded: true,
			DataDir:  "./.solveit/nats",
			Port:     4222,
		},
		Search: SearchConfig{
			DefaultLogic: string(search.AND),
		},
		Snapshot: SnapshotConfig{
			Driver: snapshot.DriverSQLite,
			DSN:    "solveit.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			BufferSize: 1000,
		},
	}
}

// LoadConfig loads configuration from a YAML file, falling back to defaults
// when the path is empty or the file does not exist. Environment overrides
// apply in every case.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDataRoot); v != "" {
		c.Data.Root = v
	}
	if v := os.Getenv(EnvHost); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		c.Server.Port = port
	}
	// API keys from the environment only when the file sets none
	if len(c.Server.APIKeys) == 0 {
		if v := os.Getenv(EnvAPIKey); v != "" {
			c.Server.APIKeys = []string{v}
		}
	}
	return nil
}

// SaveConfig writes the configuration to a YAML file.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the configuration. Errors make it unusable; warnings are
// worth telling the operator about.
func (c *Config) Validate() (warnings []string, errs []string) {
	switch c.Data.Source {
	case SourceFS:
		if c.Data.Root == "" {
			errs = append(errs, "data.root must be set for the fs source")
		}
	case SourceS3:
		if c.Data.S3.Bucket == "" {
			errs = append(errs, "data.s3.bucket must be set for the s3 source")
		}
	default:
		errs = append(errs, fmt.Sprintf("data.source %q is not one of fs, s3", c.Data.Source))
	}
	if c.Data.Watch < 0 {
		errs = append(errs, "data.watch must not be negative")
	} else if c.Data.Watch > 0 && c.Data.Source == SourceS3 {
		warnings = append(warnings, "data.watch only applies to the fs source, ignoring")
	}
	if c.Data.Mapping == "" {
		warnings = append(warnings, "data.mapping is empty, falling back to "+kb.DefaultMapping)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server.rate_limit must not be negative")
	}
	if !c.AuthEnabled() && !isLoopback(c.Server.Host) {
		warnings = append(warnings, fmt.Sprintf("server listens on %s without API keys; reload and mapping changes are open to anyone", c.Server.Host))
	}

	if c.Bus.Enabled {
		if c.Bus.Embedded {
			if c.Bus.Port != -1 && (c.Bus.Port < 1 || c.Bus.Port > 65535) {
				errs = append(errs, fmt.Sprintf("bus.port %d out of range", c.Bus.Port))
			}
			if c.Bus.DataDir == "" {
				errs = append(errs, "bus.data_dir must be set for the embedded server")
			}
		} else if c.Bus.URL == "" {
			errs = append(errs, "bus.url must be set when bus.embedded is false")
		}
	}

	if _, err := search.ParseLogic(c.Search.DefaultLogic); err != nil {
		errs = append(errs, "search.default_logic: "+err.Error())
	}

	switch c.Snapshot.Driver {
	case snapshot.DriverSQLite, "":
	case snapshot.DriverPostgres:
		if c.Snapshot.DSN == "" {
			errs = append(errs, "snapshot.dsn must be set for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("snapshot.driver %q is not one of sqlite, postgres", c.Snapshot.Driver))
	}

	switch c.LogLevel() {
	case "debug", "info", "warn", "error":
	default:
		warnings = append(warnings, fmt.Sprintf("logging.level %q unknown, using info", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		warnings = append(warnings, fmt.Sprintf("logging.format %q unknown, using console", c.Logging.Format))
	}
	return warnings, errs
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// LogLevel returns the lower-cased log level.
func (c *Config) LogLevel() string {
	return strings.ToLower(c.Logging.Level)
}

// Key scopes returned by ValidateAPIKey.
const (
	ScopeWrite = "write"
	ScopeRead  = "read"
)

// AuthEnabled returns true if API key authentication is configured.
func (c *Config) AuthEnabled() bool {
	return len(c.Server.APIKeys) > 0 || len(c.Server.ReadOnlyKeys) > 0
}

// ValidateAPIKey returns the scope of key, or "" when it matches no
// configured key. Uses constant-time comparison to prevent timing attacks.
func (c *Config) ValidateAPIKey(key string) string {
	if key == "" {
		return ""
	}
	for _, valid := range c.Server.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			return ScopeWrite
		}
	}
	for _, valid := range c.Server.ReadOnlyKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			return ScopeRead
		}
	}
	return ""
}
