package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/datareader/internal/db"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig
	Database  db.Config
	Migrate   bool
	Ingestion IngestionConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           int
	AllowedOrigins []string
}

// IngestionConfig tunes file processing.
type IngestionConfig struct {
	BatchSize      int
	SampleEvery    int
	LogsDir        string
	AllowedBaseDir string
	Encoding       string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads config.yaml from configPath when present and applies
// environment overrides on top of the defaults.
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // allow environment overrides, e.g. INGESTION_BATCH_SIZE

	// Map nested keys to the flat env vars used by deployments
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("database.host", "DB_HOST")
	_ = v.BindEnv("database.port", "DB_PORT")
	_ = v.BindEnv("database.user", "DB_USER")
	_ = v.BindEnv("database.password", "DB_PASSWORD")
	_ = v.BindEnv("database.dbname", "DB_NAME")
	_ = v.BindEnv("database.sslmode", "DB_SSLMODE")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.format", "LOG_FORMAT")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Use defaults + env
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Port:           v.GetInt("server.port"),
			AllowedOrigins: stringList(v, "server.allowed_origins"),
		},
		Database: db.Config{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
		},
		Migrate: v.GetBool("database.migrations"),
		Ingestion: IngestionConfig{
			BatchSize:      v.GetInt("ingestion.batch_size"),
			SampleEvery:    v.GetInt("ingestion.sample_every"),
			LogsDir:        v.GetString("ingestion.logs_dir"),
			AllowedBaseDir: v.GetString("ingestion.allowed_base_dir"),
			Encoding:       v.GetString("ingestion.encoding"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// stringList reads a list that may also arrive as one comma separated
// environment value.
func stringList(v *viper.Viper, key string) []string {
	var items []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	}
	return items
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()

	v.SetDefault("server.port", 3000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.migrations", true)

	v.SetDefault("ingestion.batch_size", 100)
	v.SetDefault("ingestion.sample_every", 1000)
	v.SetDefault("ingestion.logs_dir", "logs")
	v.SetDefault("ingestion.allowed_base_dir", "")
	v.SetDefault("ingestion.encoding", "utf-8")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Ingestion.BatchSize <= 0 {
		return fmt.Errorf("ingestion.batch_size must be positive, got %d", c.Ingestion.BatchSize)
	}
	if c.Ingestion.SampleEvery <= 0 {
		return fmt.Errorf("ingestion.sample_every must be positive, got %d", c.Ingestion.SampleEvery)
	}
	switch strings.ToLower(c.Ingestion.Encoding) {
	case "utf-8", "utf8", "windows-1251":
	default:
		return fmt.Errorf("unsupported ingestion.encoding: %s", c.Ingestion.Encoding)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log.format: %s", c.Log.Format)
	}
	return nil
}
