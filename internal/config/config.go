package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// AppName is used for the XDG config directory.
const AppName = "deepcheck"

// DefaultEndpoint is the hosted prediction service.
const DefaultEndpoint = "https://hunterrrk-deepcheck-backend.hf.space/predict"

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Detector struct {
		Endpoint      string        `yaml:"endpoint"`
		Timeout       time.Duration `yaml:"timeout"` // 0 leaves it to the transport
		MinDisplay    time.Duration `yaml:"min_display"`
		DefaultMode   string        `yaml:"default_mode"`
		MaxImageBytes int64         `yaml:"max_image_bytes"`
	} `yaml:"detector"`

	Session struct {
		TTL           time.Duration `yaml:"ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"session"`

	Journal struct {
		Driver     string        `yaml:"driver"` // memory | sqlite | mysql | postgres
		SQLitePath string        `yaml:"sqlite_path"`
		Timeout    time.Duration `yaml:"timeout"` // per archive upload and journal save
	} `yaml:"journal"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		Enabled bool   `yaml:"enabled"`
		APIKey  string `yaml:"apiKey"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"baseURL"`
	} `yaml:"openai"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	Log struct {
		Level  string `yaml:"level"`  // debug | info | warn | error
		Format string `yaml:"format"` // text | json
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var c Config
	c.Server.Port = 8080
	c.Server.ShutdownTimeout = 5 * time.Second
	c.Detector.Endpoint = DefaultEndpoint
	c.Detector.Timeout = 60 * time.Second
	c.Detector.MinDisplay = 800 * time.Millisecond
	c.Detector.DefaultMode = "Xception"
	c.Detector.MaxImageBytes = 20 << 20
	c.Session.TTL = 30 * time.Minute
	c.Session.SweepInterval = time.Minute
	c.Journal.Driver = "memory"
	c.Journal.SQLitePath = filepath.Join(xdg.DataHome, AppName, "journal.db")
	c.Journal.Timeout = 10 * time.Second
	c.Database.SSLMode = "disable"
	c.Minio.BucketName = "deepcheck-images"
	c.OpenAI.Model = "gpt-4o-mini"
	c.CORS.AllowedOrigins = []string{"*"}
	c.Log.Level = "info"
	c.Log.Format = "text"
	return &c
}

// Load baca file config. A missing file yields the defaults; keys absent
// from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UserConfigPath is where the CLI looks when no --config is given.
func UserConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// applyEnv lets secrets come from the environment instead of the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		c.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Minio.SecretKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DEEPCHECK_ENDPOINT"); v != "" {
		c.Detector.Endpoint = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	u, err := url.Parse(c.Detector.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("detector.endpoint must be an http(s) URL: %q", c.Detector.Endpoint)
	}
	if c.Detector.Timeout < 0 || c.Detector.MinDisplay < 0 {
		return errors.New("detector durations must not be negative")
	}
	if c.Journal.Timeout < 0 {
		return fmt.Errorf("journal.timeout must not be negative: %v", c.Journal.Timeout)
	}
	if c.Detector.MaxImageBytes <= 0 {
		return fmt.Errorf("detector.max_image_bytes must be positive: %d", c.Detector.MaxImageBytes)
	}
	switch strings.ToLower(c.Journal.Driver) {
	case "memory", "":
	case "sqlite":
		if c.Journal.SQLitePath == "" {
			return errors.New("journal.sqlite_path is required for the sqlite driver")
		}
	case "mysql", "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required for the %s driver", c.Journal.Driver)
		}
	default:
		return fmt.Errorf("unknown journal.driver: %q", c.Journal.Driver)
	}
	if c.Minio.Enabled && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		return errors.New("minio.endpoint and minio.bucketName are required when minio is enabled")
	}
	if c.OpenAI.Enabled && c.OpenAI.APIKey == "" {
		return errors.New("openai.apiKey (or OPENAI_API_KEY) is required when openai is enabled")
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		portOr(c.Database.Port, 3306),
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		portOr(c.Database.Port, 5432),
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func portOr(p, def int) int {
	if p == 0 {
		return def
	}
	return p
}
