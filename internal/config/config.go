package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Pool     PoolConfig     `yaml:"pool"`
	ZK       ZKConfig       `yaml:"zk"`
	Admin    AdminConfig    `yaml:"admin"`
	CORS     CORSConfig     `yaml:"cors"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig message server configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"` // seconds
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Enabled       bool   `yaml:"enabled"`
}

// PoolConfig shielded-pool engine defaults. Per-pool values fixed at init
// take these when the request leaves them unset.
type PoolConfig struct {
	DefaultTreeDepth int      `yaml:"default_tree_depth"`
	RootHistorySize  int      `yaml:"root_history_size"`
	DefaultFeeBps    uint16   `yaml:"default_fee_bps"`
	Denominations    []uint64 `yaml:"denominations"`
}

// ZKConfig proof verification configuration
type ZKConfig struct {
	VerifyingKeyPath string `yaml:"verifying_key_path"`
}

// AdminConfig admin API access control configuration
type AdminConfig struct {
	PasswordHash  string `yaml:"password_hash"` // bcrypt
	TOTPSecret    string `yaml:"totp_secret"`
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

var AppConfig *Config

// LoadConfig loads the configuration file, then applies environment
// overrides.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	AppConfig = &config
	return nil
}

func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
		config.NATS.Enabled = true
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if vkPath := os.Getenv("ZK_VERIFYING_KEY_PATH"); vkPath != "" {
		config.ZK.VerifyingKeyPath = vkPath
	}

	if hash := os.Getenv("ADMIN_PASSWORD_HASH"); hash != "" {
		config.Admin.PasswordHash = hash
	}
	if secret := os.Getenv("ADMIN_TOTP_SECRET"); secret != "" {
		config.Admin.TOTPSecret = secret
	}
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		config.Admin.JWTSecret = secret
	}

	if window := os.Getenv("POOL_ROOT_HISTORY_SIZE"); window != "" {
		if w, err := strconv.Atoi(window); err == nil {
			config.Pool.RootHistorySize = w
		}
	}
	if depth := os.Getenv("POOL_DEFAULT_TREE_DEPTH"); depth != "" {
		if d, err := strconv.Atoi(depth); err == nil {
			config.Pool.DefaultTreeDepth = d
		}
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 18090
	}
	if config.Pool.DefaultTreeDepth == 0 {
		config.Pool.DefaultTreeDepth = 20
	}
	if config.Pool.RootHistorySize == 0 {
		config.Pool.RootHistorySize = 30
	}
	if config.Pool.DefaultFeeBps == 0 {
		config.Pool.DefaultFeeBps = 30
	}
	if len(config.Pool.Denominations) == 0 {
		config.Pool.Denominations = []uint64{
			100_000_000,
			500_000_000,
			1_000_000_000,
			5_000_000_000,
		}
	}
	if config.Admin.TokenTTLHours == 0 {
		config.Admin.TokenTTLHours = 12
	}
	if config.NATS.Timeout == 0 {
		config.NATS.Timeout = 5
	}
	if config.NATS.ReconnectWait == 0 {
		config.NATS.ReconnectWait = 2
	}
	if config.NATS.MaxReconnects == 0 {
		config.NATS.MaxReconnects = 60
	}
	if config.NATS.SubjectPrefix == "" {
		config.NATS.SubjectPrefix = "shadowpool"
	}
}

// IsDenominationAllowed reports whether the registry permits pools of the
// given denomination. An empty registry permits any positive value.
func IsDenominationAllowed(denomination uint64) bool {
	if AppConfig == nil || len(AppConfig.Pool.Denominations) == 0 {
		return denomination > 0
	}
	for _, d := range AppConfig.Pool.Denominations {
		if d == denomination {
			return true
		}
	}
	return false
}
