// Package config loads realtimed settings from the environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	redisbroker "github.com/clone-prom-team-2025/server-sub001/broker/redis"
	"github.com/clone-prom-team-2025/server-sub001/sessions/redishost"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable pointing at the YAML overlay.
const FileEnv = "REALTIME_CONFIG_FILE"

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	AuthOIDC   = "oidc"
	AuthJWKS   = "jwks"
	AuthStatic = "static"
)

type Config struct {
	ListenAddr      string        `env:"REALTIME_LISTEN_ADDR,default=:8080" yaml:"listen_addr"`
	HubPath         string        `env:"REALTIME_HUB_PATH,default=/hubs/notifications" yaml:"hub_path"`
	LogLevel        string        `env:"REALTIME_LOG_LEVEL,default=info" yaml:"log_level"`
	LogFormat       string        `env:"REALTIME_LOG_FORMAT,default=json" yaml:"log_format"`
	ShutdownTimeout time.Duration `env:"REALTIME_SHUTDOWN_TIMEOUT,default=15s" yaml:"shutdown_timeout"`

	Auth     AuthConfig     `yaml:"auth"`
	Hub      HubConfig      `yaml:"hub"`
	Sessions SessionsConfig `yaml:"sessions"`
	Broker   BrokerConfig   `yaml:"broker"`
}

type AuthConfig struct {
	// Mode selects how bearer tokens are checked: oidc discovers the JWKS
	// from the issuer, jwks uses JWKSURI directly, static maps fixed tokens
	// to identities and is meant for local runs.
	Mode        string        `env:"REALTIME_AUTH_MODE,default=oidc" yaml:"mode"`
	Issuer      string        `env:"REALTIME_AUTH_ISSUER" yaml:"issuer"`
	Audience    string        `env:"REALTIME_AUTH_AUDIENCE" yaml:"audience"`
	JWKSURI     string        `env:"REALTIME_AUTH_JWKS_URI" yaml:"jwks_uri"`
	AllowedAlgs []string      `env:"REALTIME_AUTH_ALGS" yaml:"allowed_algs"`
	Leeway      time.Duration `env:"REALTIME_AUTH_LEEWAY,default=60s" yaml:"leeway"`
	AdminRole   string        `env:"REALTIME_AUTH_ADMIN_ROLE,default=admin" yaml:"admin_role"`

	// StaticTokens is only read from the YAML file.
	StaticTokens map[string]StaticIdentity `yaml:"static_tokens"`
}

type StaticIdentity struct {
	UserID    string   `yaml:"user_id"`
	SessionID string   `yaml:"session_id"`
	Roles     []string `yaml:"roles"`
}

type HubConfig struct {
	Realm          string        `env:"REALTIME_HUB_REALM,default=realtime" yaml:"realm"`
	AllowedOrigins []string      `env:"REALTIME_ALLOWED_ORIGINS" yaml:"allowed_origins"`
	SendQueueSize  int           `env:"REALTIME_SEND_QUEUE_SIZE,default=64" yaml:"send_queue_size"`
	PongWait       time.Duration `env:"REALTIME_PONG_WAIT,default=60s" yaml:"pong_wait"`
	WriteTimeout   time.Duration `env:"REALTIME_WRITE_TIMEOUT,default=10s" yaml:"write_timeout"`
	MaxMessageSize int64         `env:"REALTIME_MAX_MESSAGE_SIZE,default=65536" yaml:"max_message_size"`
	LogoutMessage  string        `env:"REALTIME_LOGOUT_MESSAGE" yaml:"logout_message"`
}

type SessionsConfig struct {
	Backend string           `env:"REALTIME_SESSIONS_BACKEND,default=memory" yaml:"backend"`
	Redis   redishost.Config `yaml:"redis"`
}

type BrokerConfig struct {
	Backend string             `env:"REALTIME_BROKER_BACKEND,default=memory" yaml:"backend"`
	Topic   string             `env:"REALTIME_BROKER_TOPIC,default=realtime.events" yaml:"topic"`
	Redis   redisbroker.Config `yaml:"redis"`
}

// Load decodes the environment and overlays the file named by
// REALTIME_CONFIG_FILE when it is set. File values win over environment
// values, which win over defaults.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile is Load with an explicit overlay path. An empty path skips the
// overlay.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerations and the settings each mode depends on.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains([]string{"json", "text"}, c.LogFormat) {
		errs = append(errs, fmt.Errorf("log_format must be json or text, got %q", c.LogFormat))
	}
	if !strings.HasPrefix(c.HubPath, "/") {
		errs = append(errs, fmt.Errorf("hub_path must start with /, got %q", c.HubPath))
	}

	switch c.Auth.Mode {
	case AuthOIDC:
		if c.Auth.Issuer == "" || c.Auth.Audience == "" {
			errs = append(errs, errors.New("auth: oidc mode requires issuer and audience"))
		}
	case AuthJWKS:
		if c.Auth.Issuer == "" || c.Auth.Audience == "" || c.Auth.JWKSURI == "" {
			errs = append(errs, errors.New("auth: jwks mode requires issuer, audience and jwks_uri"))
		}
	case AuthStatic:
		if len(c.Auth.StaticTokens) == 0 {
			errs = append(errs, errors.New("auth: static mode requires static_tokens"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth: unknown mode %q", c.Auth.Mode))
	}

	for name, b := range map[string]string{"sessions": c.Sessions.Backend, "broker": c.Broker.Backend} {
		if b != BackendMemory && b != BackendRedis {
			errs = append(errs, fmt.Errorf("%s: unknown backend %q", name, b))
		}
	}
	if c.Hub.SendQueueSize <= 0 {
		errs = append(errs, errors.New("hub: send_queue_size must be positive"))
	}
	if c.Hub.PongWait <= 0 || c.Hub.WriteTimeout <= 0 {
		errs = append(errs, errors.New("hub: pong_wait and write_timeout must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
