package config

import (
	"fmt"
	"strings"

	"github.com/solatis/labelkeeper/internal/types"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flag names to config keys. Only flags that
// exist on the passed FlagSet are bound.
var flagKeys = map[string]string{
	"host":      "server.host",
	"http-port": "server.http_port",
	"grpc-port": "server.grpc_port",
	"data-dir":  "server.data_dir",
	"seed-demo": "server.seed_demo",
	"db-url":    "database.url",
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults matching Default()
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.http_port", d.Server.HTTPPort)
	v.SetDefault("server.grpc_port", d.Server.GRPCPort)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.default_user", string(d.Server.DefaultUser))
	v.SetDefault("server.seed_demo", d.Server.SeedDemo)
	v.SetDefault("server.stream_heartbeat", d.Server.StreamHeartbeat.String())
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	// Bind environment variables with LK_ prefix
	v.SetEnvPrefix("LK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Credentials must come from the environment, never from a config file
		if err := validateNoSecretsInConfig(configPath); err != nil {
			return nil, err
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			HTTPPort:        v.GetInt("server.http_port"),
			GRPCPort:        v.GetInt("server.grpc_port"),
			RequestTimeout:  v.GetDuration("server.request_timeout"),
			MaxBodySize:     v.GetInt64("server.max_body_size"),
			DataDir:         v.GetString("server.data_dir"),
			DefaultUser:     types.UserID(strings.TrimSpace(v.GetString("server.default_user"))),
			SeedDemo:        v.GetBool("server.seed_demo"),
			StreamHeartbeat: v.GetDuration("server.stream_heartbeat"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Tracing: TracingConfig{
			Endpoint:    strings.TrimSpace(v.GetString("tracing.endpoint")),
			ServiceName: v.GetString("tracing.service_name"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateNoSecretsInConfig enforces environment-only credentials (12-factor principle).
// The file is read on its own so environment values do not mask it.
func validateNoSecretsInConfig(configPath string) error {
	fv := viper.New()
	fv.SetConfigFile(configPath)
	if err := fv.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if fv.IsSet("database.password") || hasPassword(fv.GetString("database.url")) {
		return fmt.Errorf("database credentials not allowed in config files (use LK_DATABASE_URL environment variable)")
	}
	return nil
}
