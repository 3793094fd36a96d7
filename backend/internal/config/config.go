package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/ps-vitor/xhs-relay/backend/internal/scraping/services/xhs"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Scraping ScrapingConfig `yaml:"scraping"`
}

type AppConfig struct {
	Name  string `yaml:"name"`
	Env   string `yaml:"env"`
	Debug bool   `yaml:"debug"`
	Port  int    `yaml:"port"`

	// ShutdownTimeout is how long in-flight scrapes may finish on shutdown
	// before they are cancelled.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type ScrapingConfig struct {
	Search  ProgramConfig `yaml:"search"`
	Profile ProgramConfig `yaml:"profile"`
	// Timeout bounds a single run; 0 disables it.
	Timeout time.Duration `yaml:"timeout"`
	// MaxConcurrent is how many external programs may run at once.
	MaxConcurrent int `yaml:"max_concurrent"`
	// QueueTimeout is how long a request waits for a free slot; 0 fails at once.
	QueueTimeout time.Duration   `yaml:"queue_timeout"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

type ProgramConfig struct {
	Command string   `yaml:"command"`
	Script  string   `yaml:"script"`
	Args    []string `yaml:"args"`
	Dir     string   `yaml:"dir"`
	Env     []string `yaml:"env"`
}

// RateLimitConfig spaces out program starts. A zero Interval disables it.
type RateLimitConfig struct {
	Interval time.Duration `yaml:"interval"`
	Burst    int           `yaml:"burst"`
}

func (p ProgramConfig) Program() xhs.Program {
	return xhs.Program{
		Command: p.Command,
		Script:  p.Script,
		Args:    p.Args,
		Dir:     p.Dir,
		Env:     p.Env,
	}
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func Default() *Config {
	return &Config{
		App: AppConfig{
			Name: "xhs-relay",
			Env:  "development",
			Port: 5000,

			ShutdownTimeout: 30 * time.Second,
		},
		Scraping: ScrapingConfig{
			Search:        ProgramConfig{Command: "python3", Script: "xhs_search.py"},
			Profile:       ProgramConfig{Command: "python3", Script: "xhs_profile.py"},
			Timeout:       10 * time.Minute,
			MaxConcurrent: 2,
			RateLimit:     RateLimitConfig{Burst: 1},
		},
	}
}

// LoadConfig loads .env, then the YAML files under CONFIG_DIR (default
// "configs"), then environment overrides.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = "configs"
	}

	return Load(dir)
}

// Load reads <dir>/app.yaml and <dir>/scraping.yaml over the defaults, merges
// any *.local.yaml next to them, and applies environment overrides. Missing
// files are skipped.
func Load(dir string) (*Config, error) {
	cfg := Default()

	// Carrega arquivo YAML base
	if err := readYAML(filepath.Join(dir, "app.yaml"), cfg); err != nil {
		return nil, err
	}
	if err := mergeLocal(filepath.Join(dir, "app.local.yaml"), cfg); err != nil {
		return nil, err
	}

	// Carrega configurações específicas de scraping
	if err := readYAML(filepath.Join(dir, "scraping.yaml"), &cfg.Scraping); err != nil {
		return nil, err
	}
	if err := mergeLocal(filepath.Join(dir, "scraping.local.yaml"), &cfg.Scraping); err != nil {
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Port < 1 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("app.port %d out of range", c.App.Port))
	}
	if c.App.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("app.shutdown_timeout must not be negative"))
	}
	if c.Scraping.Search.Command == "" {
		errs = append(errs, errors.New("scraping.search.command is required"))
	}
	if c.Scraping.Profile.Command == "" {
		errs = append(errs, errors.New("scraping.profile.command is required"))
	}
	if c.Scraping.Timeout < 0 {
		errs = append(errs, errors.New("scraping.timeout must not be negative"))
	}
	if c.Scraping.QueueTimeout < 0 {
		errs = append(errs, errors.New("scraping.queue_timeout must not be negative"))
	}
	if c.Scraping.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("scraping.max_concurrent must be at least 1, got %d", c.Scraping.MaxConcurrent))
	}
	if c.Scraping.RateLimit.Interval < 0 {
		errs = append(errs, errors.New("scraping.rate_limit.interval must not be negative"))
	}
	if c.Scraping.RateLimit.Interval > 0 && c.Scraping.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("scraping.rate_limit.burst must be at least 1"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

func readYAML[T any](path string, out *T) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// mergeLocal merges a *.local.yaml file over out. Zero values in the local
// file do not override.
func mergeLocal[T any](path string, out *T) error {
	var override T

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if err := mergo.Merge(out, override, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge %s: %w", path, err)
	}

	slog.Info("merging config with local overrides", "local", path)

	return nil
}

func applyEnv(c *Config) error {
	var err error

	if v := os.Getenv("PORT"); v != "" {
		if c.App.Port, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		c.App.Env = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		if c.App.Debug, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("DEBUG: %w", err)
		}
	}

	if v := os.Getenv("PYTHON_BIN"); v != "" {
		c.Scraping.Search.Command = v
		c.Scraping.Profile.Command = v
	}
	if v := os.Getenv("SCRIPTS_DIR"); v != "" {
		c.Scraping.Search.Dir = v
		c.Scraping.Profile.Dir = v
	}
	if v := os.Getenv("SEARCH_SCRIPT"); v != "" {
		c.Scraping.Search.Script = v
	}
	if v := os.Getenv("PROFILE_SCRIPT"); v != "" {
		c.Scraping.Profile.Script = v
	}

	if v := os.Getenv("SCRAPE_TIMEOUT"); v != "" {
		if c.Scraping.Timeout, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("SCRAPE_TIMEOUT: %w", err)
		}
	}
	if v := os.Getenv("SCRAPE_QUEUE_TIMEOUT"); v != "" {
		if c.Scraping.QueueTimeout, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("SCRAPE_QUEUE_TIMEOUT: %w", err)
		}
	}
	if v := os.Getenv("MAX_CONCURRENT_SCRAPES"); v != "" {
		if c.Scraping.MaxConcurrent, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("MAX_CONCURRENT_SCRAPES: %w", err)
		}
	}

	return nil
}
