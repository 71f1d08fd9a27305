package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type Logging struct {
	Level  string `koanf:"level" json:"level,omitempty"`
	Pretty bool   `koanf:"pretty" json:"pretty,omitempty"`
}

func (l Logging) validate() []error {
	var errs []error
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		errs = append(errs, fmt.Errorf("level: invalid log level %q: %w", l.Level, err))
	}
	return errs
}

var loggingDefault = Logging{
	Level: "info",
}

type Config struct {
	// Host and Port locate the SQL proxy of the node driving the
	// upgrade. When SocketDir is set it takes precedence over Host and
	// connections go over a unix-domain socket.
	Host      string `koanf:"host" json:"host,omitempty"`
	Port      int    `koanf:"port" json:"port,omitempty"`
	SocketDir string `koanf:"socket_dir" json:"socket_dir,omitempty"`
	// AuthKey is the cluster-internal authentication token used as the
	// postgres password for upgrade sessions.
	AuthKey string `koanf:"auth_key" json:"auth_key,omitempty"`
	// HeartbeatIntervalMS is the cluster heartbeat interval. The
	// one-time catalog propagation wait is sized to twice this value.
	HeartbeatIntervalMS int `koanf:"heartbeat_interval_ms" json:"heartbeat_interval_ms,omitempty"`
	// MigrationsDir overrides the share/ysql_migrations directory
	// discovered relative to the executable.
	MigrationsDir string  `koanf:"migrations_dir" json:"migrations_dir,omitempty"`
	Logging       Logging `koanf:"logging" json:"logging,omitzero"`
}

func (c Config) Validate() error {
	var errs []error
	if c.Host == "" && c.SocketDir == "" {
		errs = append(errs, errors.New("host or socket_dir must be set"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port: invalid port %d", c.Port))
	}
	if c.HeartbeatIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat_interval_ms: must be positive, got %d", c.HeartbeatIntervalMS))
	}
	for _, err := range c.Logging.validate() {
		errs = append(errs, fmt.Errorf("logging.%w", err))
	}
	return errors.Join(errs...)
}

// HeartbeatInterval returns the configured heartbeat interval as a
// duration.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond
}

func DefaultConfig() Config {
	return Config{
		Host:                "127.0.0.1",
		Port:                5433,
		HeartbeatIntervalMS: 1000,
		Logging:             loggingDefault,
	}
}
