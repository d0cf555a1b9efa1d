package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nasermirzaei89/env"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Platforms Platforms `yaml:"platforms"`
	HTTP      HTTP      `yaml:"http"`
	Storage   Storage   `yaml:"storage"`
	Settings  Settings  `yaml:"settings"`
	Quota     Quota     `yaml:"quota"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

type Platforms struct {
	Facebook  Graph   `yaml:"facebook"`
	Instagram Graph   `yaml:"instagram"`
	YouTube   YouTube `yaml:"youtube"`
}

type Graph struct {
	GraphURL   string `yaml:"graph_url"`
	APIVersion string `yaml:"api_version"`
}

// BaseURL joins the graph URL and API version.
func (g Graph) BaseURL() string {
	return strings.TrimRight(g.GraphURL, "/") + "/" + g.APIVersion
}

type YouTube struct {
	APIURL   string `yaml:"api_url"`
	FeedURL  string `yaml:"feed_url"`
	MaxPages int    `yaml:"max_pages"`
}

type HTTP struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the per-request timeout.
func (h HTTP) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

type Storage struct {
	DataDir     string `yaml:"data_dir"`
	MaxComments int    `yaml:"max_comments"`
}

type Settings struct {
	AutoRefreshMS     int    `yaml:"auto_refresh_ms"`
	NotificationSound string `yaml:"notification_sound"`
}

type Quota struct {
	RedisAddr  string `yaml:"redis_addr"`
	DailyLimit int    `yaml:"daily_limit"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for supernova.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "supernova")
}

// DataDir returns the XDG data directory for supernova.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "supernova")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/supernova/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'supernova init' to create a default config",
		xdgConfig,
	)
}

// LoadDotEnv loads ./.env into the process environment if it exists.
// Variables that are already set win.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// Load reads and parses a config YAML file, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.validate()
}

// Default returns the built-in configuration with environment overrides,
// for running without a config file.
func Default() (*Config, error) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.validate()
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Platforms: Platforms{
			Facebook:  Graph{GraphURL: "https://graph.facebook.com", APIVersion: "v18.0"},
			Instagram: Graph{GraphURL: "https://graph.facebook.com", APIVersion: "v18.0"},
			YouTube: YouTube{
				APIURL:   "https://www.googleapis.com/youtube/v3",
				FeedURL:  "https://www.youtube.com/feeds/videos.xml",
				MaxPages: 5,
			},
		},
		HTTP:     HTTP{TimeoutSeconds: 30},
		Storage:  Storage{MaxComments: 1000},
		Settings: Settings{AutoRefreshMS: 60000, NotificationSound: "default"},
		Quota:    Quota{DailyLimit: 10000},
		Server:   Server{Port: 8000},
		Logging:  Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Storage.DataDir = env.GetString("SUPERNOVA_DATA_DIR", c.Storage.DataDir)
	c.Quota.RedisAddr = env.GetString("SUPERNOVA_REDIS_ADDR", c.Quota.RedisAddr)
	c.Logging.Level = env.GetString("SUPERNOVA_LOG_LEVEL", c.Logging.Level)
	if port := env.GetString("SUPERNOVA_PORT", ""); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("SUPERNOVA_PORT must be a number, got %q", port)
		}
		c.Server.Port = n
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be positive")
	}
	if c.Storage.MaxComments <= 0 {
		return fmt.Errorf("storage.max_comments must be positive")
	}
	if c.Quota.DailyLimit < 0 {
		return fmt.Errorf("quota.daily_limit must not be negative")
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return DataDir()
}

// DBPath returns the SQLite file inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "supernova.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
