package config

import (
	"time"

	"github.com/vietddude/relay/internal/infra/breaker"
	redisclient "github.com/vietddude/relay/internal/infra/redis"
	"github.com/vietddude/relay/internal/infra/retry"
	"github.com/vietddude/relay/internal/infra/storage/sqlstore"
	"github.com/vietddude/relay/internal/infra/transport"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Backend  BackendConfig      `yaml:"backend"`
	Retry    retry.Config       `yaml:"retry"`
	Circuit  breaker.Config     `yaml:"circuit"`
	Network  NetworkConfig      `yaml:"network"`
	Queue    QueueConfig        `yaml:"queue"`
	Token    TokenConfig        `yaml:"token"`
	Redis    redisclient.Config `yaml:"redis"`
	Database sqlstore.Config    `yaml:"database"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBytes int64         `yaml:"max_request_bytes"` // proxied request bodies, 0 = 16 MiB
}

// BackendConfig describes the API all requests are sent to.
type BackendConfig struct {
	Name           string        `yaml:"name"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	LoginPath      string        `yaml:"login_path"`
	LogoutPath     string        `yaml:"logout_path"`

	transport.Config `yaml:",inline"`
}

// Network modes.
const (
	NetworkStatic = "static" // always online
	NetworkHTTP   = "http"   // probe an HTTP health URL
	NetworkGRPC   = "grpc"   // probe a gRPC health service
)

// NetworkConfig selects how connectivity is detected.
type NetworkConfig struct {
	Mode        string        `yaml:"mode"`
	ProbeURL    string        `yaml:"probe_url"`
	GRPCTarget  string        `yaml:"grpc_target"`
	GRPCService string        `yaml:"grpc_service"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	MinBackoff  time.Duration `yaml:"min_backoff"`
}

// QueueConfig bounds the offline queue.
type QueueConfig struct {
	MaxDepth int `yaml:"max_depth"` // 0 = unbounded
}

// Token storage backends.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StorageDatabase = "database"
)

// TokenConfig selects where the credential is persisted.
type TokenConfig struct {
	Storage string `yaml:"storage"`
	Key     string `yaml:"key"`
	File    string `yaml:"file"`

	// SweepInterval is how often an expired JWT is dropped ahead of the
	// backend rejecting it. 0 disables the sweep.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
