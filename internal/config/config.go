package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type APIConfig struct {
	BaseURL      string        `yaml:"base_url" env:"BLOGSYNC_API_URL"`
	Timeout      time.Duration `yaml:"timeout" env:"BLOGSYNC_API_TIMEOUT"`
	ListPageSize int           `yaml:"list_page_size" env:"BLOGSYNC_API_LIST_PAGE_SIZE"`
}

type ClientConfig struct {
	TokenPath string `yaml:"token_path" env:"BLOGSYNC_TOKEN_PATH"`
	PageSize  int    `yaml:"page_size" env:"BLOGSYNC_PAGE_SIZE"`
}

type ServerConfig struct {
	Port      string        `yaml:"port" env:"BLOGSYNC_PORT"`
	JWTSecret string        `yaml:"jwt_secret" env:"BLOGSYNC_JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"BLOGSYNC_TOKEN_TTL"`
	Storage   string        `yaml:"storage" env:"BLOGSYNC_STORAGE"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn" env:"BLOGSYNC_POSTGRES_DSN"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"BLOGSYNC_LOG_LEVEL"`
	Format string `yaml:"format" env:"BLOGSYNC_LOG_FORMAT"`
}

type Config struct {
	API      APIConfig      `yaml:"api"`
	Client   ClientConfig   `yaml:"client"`
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Log      LogConfig      `yaml:"log"`
}

func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:      "http://localhost:8080",
			Timeout:      12 * time.Second,
			ListPageSize: 50,
		},
		Client: ClientConfig{
			PageSize: 4,
		},
		Server: ServerConfig{
			Port:     "8080",
			TokenTTL: 24 * time.Hour,
			Storage:  "memory",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load читает YAML-файл поверх значений по умолчанию, затем применяет
// переменные окружения. Пустой путь означает "без файла".
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.API.Timeout <= 0 {
		return nil, errors.New("api.timeout must be positive")
	}
	if cfg.API.ListPageSize <= 0 {
		cfg.API.ListPageSize = Default().API.ListPageSize
	}
	if cfg.Client.PageSize <= 0 {
		cfg.Client.PageSize = Default().Client.PageSize
	}
	return cfg, nil
}

// ValidateServer проверяет настройки, без которых эталонный сервер не стартует
func (c *Config) ValidateServer() error {
	if c.Server.JWTSecret == "" {
		return errors.New("server.jwt_secret is required")
	}
	switch c.Server.Storage {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Server.Storage)
	}
	if c.Server.TokenTTL <= 0 {
		return errors.New("server.token_ttl must be positive")
	}
	return nil
}
