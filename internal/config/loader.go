package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/crossorg/migrator/internal/db"
)

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// EngineConfig holds the migration engine defaults; project options override
// them per run.
type EngineConfig struct {
	BatchSize         int
	BulkThreshold     int
	MaxRetries        int
	RetryWait         time.Duration
	RequestsPerSecond float64
	RateBurst         int
}

// Config is the full application configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Engine   EngineConfig
}

// Load reads config.yaml from configPath with MIGRATOR_-prefixed environment
// overrides, falling back to defaults when no file exists.
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Engine: EngineConfig{
			BatchSize:         200,
			BulkThreshold:     500,
			MaxRetries:        3,
			RetryWait:         2 * time.Second,
			RequestsPerSecond: 10,
			RateBurst:         5,
		},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("MIGRATOR")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("engine.batch_size") {
		cfg.Engine.BatchSize = v.GetInt("engine.batch_size")
	}
	if v.IsSet("engine.bulk_threshold") {
		cfg.Engine.BulkThreshold = v.GetInt("engine.bulk_threshold")
	}
	if v.IsSet("engine.max_retries") {
		cfg.Engine.MaxRetries = v.GetInt("engine.max_retries")
	}
	if v.IsSet("engine.retry_wait") {
		cfg.Engine.RetryWait = v.GetDuration("engine.retry_wait")
	}
	if v.IsSet("engine.requests_per_second") {
		cfg.Engine.RequestsPerSecond = v.GetFloat64("engine.requests_per_second")
	}
	if v.IsSet("engine.rate_burst") {
		cfg.Engine.RateBurst = v.GetInt("engine.rate_burst")
	}

	return cfg, nil
}
