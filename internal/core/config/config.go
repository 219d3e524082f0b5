// Package config provides configuration management for LabelKeeper services.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/solatis/labelkeeper/internal/types"
)

// ServerConfig holds configuration for the HTTP and gRPC listeners and the
// request pipeline behind them.
type ServerConfig struct {
	Host            string
	HTTPPort        int
	GRPCPort        int
	RequestTimeout  time.Duration
	MaxBodySize     int64
	DataDir         string
	DefaultUser     types.UserID
	SeedDemo        bool
	StreamHeartbeat time.Duration
}

// DatabaseConfig holds the connection URL (sqlite://path or postgres://...).
type DatabaseConfig struct {
	URL string
}

// TracingConfig enables OTLP/HTTP trace export when Endpoint is non-empty.
type TracingConfig struct {
	Endpoint    string
	ServiceName string
}

// Config is the complete LabelKeeper configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Tracing  TracingConfig
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			HTTPPort:        8080,
			GRPCPort:        50051,
			RequestTimeout:  30 * time.Second,
			MaxBodySize:     types.MaxPayloadSize,
			DataDir:         "./data",
			DefaultUser:     "demo_user",
			SeedDemo:        false,
			StreamHeartbeat: 15 * time.Second,
		},
		Database: DatabaseConfig{
			URL: "sqlite://./data/labelkeeper.db",
		},
		Tracing: TracingConfig{
			ServiceName: "labelkeeper",
		},
	}
}

// HTTPAddr returns host:port for the HTTP listener.
func (c *ServerConfig) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// GRPCAddr returns host:port for the gRPC listener.
func (c *ServerConfig) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// Validate checks port ranges, positive durations and sizes, and the user id.
func (c *Config) Validate() error {
	if err := validatePort("http_port", c.Server.HTTPPort); err != nil {
		return err
	}
	if err := validatePort("grpc_port", c.Server.GRPCPort); err != nil {
		return err
	}
	if c.Server.HTTPPort == c.Server.GRPCPort {
		return fmt.Errorf("http_port and grpc_port must differ, both are %d", c.Server.HTTPPort)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.Server.RequestTimeout)
	}
	if c.Server.MaxBodySize <= 0 {
		return fmt.Errorf("max_body_size must be positive, got %d", c.Server.MaxBodySize)
	}
	if c.Server.StreamHeartbeat <= 0 {
		return fmt.Errorf("stream_heartbeat must be positive, got %v", c.Server.StreamHeartbeat)
	}
	if c.Server.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if err := ValidateUserID(c.Server.DefaultUser); err != nil {
		return fmt.Errorf("default_user: %w", err)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required")
	}
	return nil
}

func validatePort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

// ValidateUserID checks that id is non-blank and at most
// types.MaxUserIDLength bytes.
func ValidateUserID(id types.UserID) error {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return fmt.Errorf("%w: empty", types.ErrInvalidUserID)
	}
	if len(s) > types.MaxUserIDLength {
		return fmt.Errorf("%w: exceeds %d characters", types.ErrInvalidUserID, types.MaxUserIDLength)
	}
	return nil
}

// hasPassword reports whether a database URL carries an inline password.
func hasPassword(dbURL string) bool {
	u, err := url.Parse(dbURL)
	if err != nil || u.User == nil {
		return false
	}
	_, ok := u.User.Password()
	return ok
}
