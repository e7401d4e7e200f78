package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`

	// Database Configuration
	Database DatabaseConfig `yaml:"database"`

	// Legacy source collections (MongoDB)
	Mongo MongoConfig `yaml:"mongo"`

	Auth AuthConfig `yaml:"auth"`

	// Per-tier send throttling and spam screening
	Policy PolicyConfig `yaml:"policy"`

	// Real-time delivery tuning
	Realtime RealtimeConfig `yaml:"realtime"`

	// Per-generation deprecation modes, resolved once at startup
	Deprecation DeprecationConfig `yaml:"deprecation"`

	Migration MigrationConfig `yaml:"migration"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
	Environment  string `yaml:"environment"` // development, staging, production
}

// DatabaseConfig contains MySQL connection configuration
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	DatabaseName string `yaml:"database_name"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// MongoConfig points at the legacy thread/message collections the migration
// engine reads from.
type MongoConfig struct {
	URI               string `yaml:"uri"`
	Database          string `yaml:"database"`
	ThreadCollection  string `yaml:"thread_collection"`
	MessageCollection string `yaml:"message_collection"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// TierLimit is a token bucket: Burst messages available immediately, refilled
// at RPS per second.
type TierLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type PolicyConfig struct {
	Tiers map[string]TierLimit `yaml:"tiers"`

	SpamBlockScore    int  `yaml:"spam_block_score"`
	SpamSuspectScore  int  `yaml:"spam_suspect_score"`
	MaxMessageLength  int  `yaml:"max_message_length"`
	EnforcementActive bool `yaml:"enforcement_active"` // false = log-only rollout mode
}

type RealtimeConfig struct {
	TypingExpiry     time.Duration `yaml:"typing_expiry"`
	PresenceDebounce time.Duration `yaml:"presence_debounce"`
	SendQueueSize    int           `yaml:"send_queue_size"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

// GenerationConfig holds one legacy generation's deprecation mode
// (full | read-only | shutdown) and sunset date.
type GenerationConfig struct {
	Mode   string `yaml:"mode"`
	Sunset string `yaml:"sunset"` // YYYY-MM-DD
}

type DeprecationConfig struct {
	V1 GenerationConfig `yaml:"v1"`
	V2 GenerationConfig `yaml:"v2"`
	V3 GenerationConfig `yaml:"v3"`
}

type MigrationConfig struct {
	RunOnStartup bool `yaml:"run_on_startup"`
}

// Load builds the config from defaults, an optional YAML file and environment
// overrides, in that order. A missing file path is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15,
			WriteTimeout: 15,
			Environment:  "development",
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         "3306",
			DatabaseName: "marketchat",
			MaxOpenConns: 50,
			MaxIdleConns: 10,
		},
		Mongo: MongoConfig{
			URI:               "mongodb://localhost:27017",
			Database:          "marketchat_legacy",
			ThreadCollection:  "threads",
			MessageCollection: "thread_messages",
		},
		Policy: PolicyConfig{
			Tiers: map[string]TierLimit{
				"free": {RPS: 0.2, Burst: 5},
				"plus": {RPS: 1, Burst: 20},
				"pro":  {RPS: 5, Burst: 60},
			},
			SpamBlockScore:    70,
			SpamSuspectScore:  40,
			MaxMessageLength:  8000,
			EnforcementActive: true,
		},
		Realtime: RealtimeConfig{
			TypingExpiry:     5 * time.Second,
			PresenceDebounce: 3 * time.Second,
			SendQueueSize:    256,
			WriteTimeout:     5 * time.Second,
		},
		Deprecation: DeprecationConfig{
			V1: GenerationConfig{Mode: "read-only", Sunset: "2026-01-31"},
			V2: GenerationConfig{Mode: "read-only", Sunset: "2026-06-30"},
			V3: GenerationConfig{Mode: "full", Sunset: "2026-12-31"},
		},
		Migration: MigrationConfig{RunOnStartup: true},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		cfg.Database.Port = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.Username = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.DatabaseName = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("MONGO_DB"); v != "" {
		cfg.Mongo.Database = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("POLICY_ENFORCE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Policy.EnforcementActive = b
		}
	}
	if v := os.Getenv("MIGRATE_ON_STARTUP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Migration.RunOnStartup = b
		}
	}
	if v := os.Getenv("DEPRECATION_V1_MODE"); v != "" {
		cfg.Deprecation.V1.Mode = v
	}
	if v := os.Getenv("DEPRECATION_V2_MODE"); v != "" {
		cfg.Deprecation.V2.Mode = v
	}
	if v := os.Getenv("DEPRECATION_V3_MODE"); v != "" {
		cfg.Deprecation.V3.Mode = v
	}
}

// DSN builds the MySQL connection string from the database section
func (cfg *Config) DSN() string {
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "3306"
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}
