package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/infra/breaker"
	"github.com/vietddude/relay/internal/infra/netstatus"
	"github.com/vietddude/relay/internal/infra/retry"
	"github.com/vietddude/relay/internal/infra/token"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, expanding environment variables, and applies
// defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.applyDefaults()
	return &cfg
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Backend.Name == "" {
		c.Backend.Name = "default"
	}
	if c.Backend.DefaultTimeout == 0 {
		c.Backend.DefaultTimeout = domain.TimeoutDefault
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = retry.DefaultConfig.MaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = retry.DefaultConfig.BaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = retry.DefaultConfig.MaxDelay
	}

	if c.Circuit.MaxFailures == 0 {
		c.Circuit.MaxFailures = breaker.DefaultConfig.MaxFailures
	}
	if c.Circuit.Cooldown == 0 {
		c.Circuit.Cooldown = breaker.DefaultConfig.Cooldown
	}
	if c.Circuit.HalfOpenMaxProbes == 0 {
		c.Circuit.HalfOpenMaxProbes = breaker.DefaultConfig.HalfOpenMaxProbes
	}

	if c.Network.Mode == "" {
		c.Network.Mode = NetworkStatic
	}
	if c.Network.Interval == 0 {
		c.Network.Interval = netstatus.DefaultProberConfig.Interval
	}
	if c.Network.Timeout == 0 {
		c.Network.Timeout = netstatus.DefaultProberConfig.Timeout
	}
	if c.Network.MinBackoff == 0 {
		c.Network.MinBackoff = netstatus.DefaultProberConfig.MinBackoff
	}

	if c.Token.Storage == "" {
		c.Token.Storage = StorageFile
	}
	if c.Token.Key == "" {
		c.Token.Key = token.DefaultKey
	}
	if c.Token.File == "" {
		c.Token.File = defaultTokenFile()
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "pgx"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".relay-token.json"
	}
	return filepath.Join(dir, "relay", "token.json")
}

// Validate rejects settings the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Backend.DefaultTimeout < 0 {
		errs = append(errs, errors.New("backend.default_timeout must be positive"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("retry delays must not be negative"))
	}
	if c.Retry.BaseDelay > c.Retry.MaxDelay {
		errs = append(errs, errors.New("retry.base_delay must not exceed retry.max_delay"))
	}
	if c.Circuit.MaxFailures < 1 {
		errs = append(errs, errors.New("circuit.max_failures must be at least 1"))
	}
	if c.Circuit.Cooldown < 0 {
		errs = append(errs, errors.New("circuit.cooldown must not be negative"))
	}
	if c.Circuit.HalfOpenMaxProbes < 1 {
		errs = append(errs, errors.New("circuit.half_open_max_probes must be at least 1"))
	}
	if c.Server.MaxRequestBytes < 0 {
		errs = append(errs, errors.New("server.max_request_bytes must not be negative"))
	}
	if c.Token.SweepInterval < 0 {
		errs = append(errs, errors.New("token.sweep_interval must not be negative"))
	}
	if c.Queue.MaxDepth < 0 {
		errs = append(errs, errors.New("queue.max_depth must not be negative"))
	}

	switch c.Network.Mode {
	case NetworkStatic:
	case NetworkHTTP:
		if c.Network.ProbeURL == "" && c.Backend.BaseURL == "" {
			errs = append(errs, errors.New("network.probe_url or backend.base_url required for http mode"))
		}
	case NetworkGRPC:
		if c.Network.GRPCTarget == "" {
			errs = append(errs, errors.New("network.grpc_target required for grpc mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown network.mode %q", c.Network.Mode))
	}

	switch c.Token.Storage {
	case StorageMemory, StorageFile:
	case StorageRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url required for redis token storage"))
		}
	case StorageDatabase:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url required for database token storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown token.storage %q", c.Token.Storage))
	}

	return errors.Join(errs...)
}
