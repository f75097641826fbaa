package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
)

const devSecret = "insecure-dev-secret-change-me"

type DatabaseConfig struct {
	Engine     string `yaml:"engine"`
	Name       string `yaml:"dbname"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	SQLitePath string `yaml:"sqlite_path"`
}

type AuthConfig struct {
	Secret     string        `yaml:"jwt_secret"`
	AccessTTL  time.Duration `yaml:"access_token_lifetime"`
	RefreshTTL time.Duration `yaml:"refresh_token_lifetime"`
}

type Config struct {
	Debug       bool           `yaml:"debug"`
	HTTPAddr    string         `yaml:"http_addr"`
	PageSize    int            `yaml:"page_size"`
	CORSOrigins []string       `yaml:"cors_origins"`
	DB          DatabaseConfig `yaml:"database"`
	Auth        AuthConfig     `yaml:"auth"`
}

func Default() *Config {
	return &Config{
		HTTPAddr: ":8000",
		PageSize: 10,
		DB: DatabaseConfig{
			Host:       "localhost",
			Port:       "5432",
			SQLitePath: "db.sqlite3",
		},
		Auth: AuthConfig{
			AccessTTL:  24 * time.Hour,
			RefreshTTL: 10 * 24 * time.Hour,
		},
	}
}

// Load builds the configuration from defaults, then the optional YAML file at
// path, then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := lookupEnv("debug", "DEBUG"); v != "" {
		c.Debug = parseBool(v)
	}
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	if v := lookupEnv("PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PAGE_SIZE: %w", err)
		}
		c.PageSize = n
	}
	if v := lookupEnv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}

	c.DB.Engine = getEnv("DB_ENGINE", c.DB.Engine)
	c.DB.Name = firstNonEmpty(lookupEnv("dbname", "DB_NAME"), c.DB.Name)
	c.DB.User = firstNonEmpty(lookupEnv("user", "DB_USER"), c.DB.User)
	c.DB.Password = firstNonEmpty(lookupEnv("password", "DB_PASSWORD"), c.DB.Password)
	c.DB.Host = firstNonEmpty(lookupEnv("host", "DB_HOST"), c.DB.Host)
	c.DB.Port = firstNonEmpty(lookupEnv("port", "DB_PORT"), c.DB.Port)
	c.DB.SQLitePath = getEnv("SQLITE_PATH", c.DB.SQLitePath)

	c.Auth.Secret = getEnv("JWT_SECRET", c.Auth.Secret)
	for key, dst := range map[string]*time.Duration{
		"ACCESS_TOKEN_LIFETIME":  &c.Auth.AccessTTL,
		"REFRESH_TOKEN_LIFETIME": &c.Auth.RefreshTTL,
	} {
		if v := lookupEnv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

func (c *Config) finalize() error {
	if c.DB.Engine == "" {
		if c.Debug {
			c.DB.Engine = EngineSQLite
		} else {
			c.DB.Engine = EnginePostgres
		}
	}
	switch c.DB.Engine {
	case EngineSQLite:
	case EnginePostgres:
		if c.DB.Name == "" {
			return errors.New("dbname is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database engine %q", c.DB.Engine)
	}

	if c.PageSize < 1 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.Auth.Secret == "" {
		if !c.Debug {
			return errors.New("JWT_SECRET is required outside debug mode")
		}
		c.Auth.Secret = devSecret
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// lookupEnv returns the first non-empty variable among keys.
func lookupEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return strings.EqualFold(strings.TrimSpace(v), "yes") || strings.EqualFold(strings.TrimSpace(v), "on")
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
