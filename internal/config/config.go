package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/gitviz/gitviz/internal/errors"
)

// Config holds all visualization settings. Dates travel as YYYY-MM-DD
// strings so the file stays hand-editable; DateRange parses and checks
// them once at pipeline entry.
type Config struct {
	StartDate     string   `yaml:"start_date" mapstructure:"start_date"`
	EndDate       string   `yaml:"end_date" mapstructure:"end_date"` // empty = today
	Output        string   `yaml:"output" mapstructure:"output"`
	SecondsPerDay float64  `yaml:"seconds_per_day" mapstructure:"seconds_per_day"`
	TimeScale     float64  `yaml:"time_scale" mapstructure:"time_scale"`
	Highlight     []string `yaml:"highlight" mapstructure:"highlight"`

	Scan   ScanConfig   `yaml:"scan" mapstructure:"scan"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Render RenderConfig `yaml:"render" mapstructure:"render"`
	Encode EncodeConfig `yaml:"encode" mapstructure:"encode"`
}

// ScanConfig controls history extraction.
type ScanConfig struct {
	Workers      int    `yaml:"workers" mapstructure:"workers"` // 0 = min(repos, 4)
	CacheEnabled bool   `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	CachePath    string `yaml:"cache_path" mapstructure:"cache_path"`
	PrefixPaths  bool   `yaml:"prefix_paths" mapstructure:"prefix_paths"`
}

// StoreConfig selects the identity store backend.
type StoreConfig struct {
	Path        string `yaml:"path" mapstructure:"path"` // .yaml/.yml = YAML file, else SQLite
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
	AvatarDir   string `yaml:"avatar_dir" mapstructure:"avatar_dir"`
}

// RenderConfig carries the cosmetic options handed to the renderer.
type RenderConfig struct {
	Background      string  `yaml:"background" mapstructure:"background"` // hex without #
	FontSize        int     `yaml:"font_size" mapstructure:"font_size"`
	UserFontSize    int     `yaml:"user_font_size" mapstructure:"user_font_size"`
	UserScale       float64 `yaml:"user_scale" mapstructure:"user_scale"`
	AutoSkipSeconds float64 `yaml:"auto_skip_seconds" mapstructure:"auto_skip_seconds"`
	Framerate       int     `yaml:"framerate" mapstructure:"framerate"`
	Viewport        string  `yaml:"viewport" mapstructure:"viewport"` // WxH, empty = renderer default
}

// EncodeConfig carries the video encoder options.
type EncodeConfig struct {
	Codec     string `yaml:"codec" mapstructure:"codec"`
	Preset    string `yaml:"preset" mapstructure:"preset"`
	CRF       int    `yaml:"crf" mapstructure:"crf"`
	Framerate int    `yaml:"framerate" mapstructure:"framerate"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	base := filepath.Join(homeDir, ".gitviz")
	return &Config{
		StartDate:     "2000-01-01",
		EndDate:       "",
		Output:        "git-visualization.mp4",
		SecondsPerDay: 0.5,
		TimeScale:     1.0,
		Scan: ScanConfig{
			Workers:      0,
			CacheEnabled: true,
			CachePath:    filepath.Join(base, "cache", "scans.db"),
			PrefixPaths:  true,
		},
		Store: StoreConfig{
			Path:      filepath.Join(base, "identities.db"),
			AvatarDir: filepath.Join(base, "avatars"),
		},
		Render: RenderConfig{
			Background:      "000000",
			FontSize:        25,
			UserFontSize:    30,
			UserScale:       6.0,
			AutoSkipSeconds: 0.3,
			Framerate:       60,
		},
		Encode: EncodeConfig{
			Codec:     "libx264",
			Preset:    "medium",
			CRF:       18,
			Framerate: 60,
		},
	}
}

// Load reads configuration from the given file (or the standard search
// locations when path is empty), layering environment variables on top.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("start_date", cfg.StartDate)
	v.SetDefault("end_date", cfg.EndDate)
	v.SetDefault("output", cfg.Output)
	v.SetDefault("seconds_per_day", cfg.SecondsPerDay)
	v.SetDefault("time_scale", cfg.TimeScale)
	v.SetDefault("scan", cfg.Scan)
	v.SetDefault("store", cfg.Store)
	v.SetDefault("render", cfg.Render)
	v.SetDefault("encode", cfg.Encode)

	v.SetEnvPrefix("GITVIZ")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".gitviz")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".gitviz"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine, defaults apply.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence.
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".gitviz", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("GITVIZ_POSTGRES_DSN"); dsn != "" {
		cfg.Store.PostgresDSN = dsn
	}
	if path := os.Getenv("GITVIZ_STORE_PATH"); path != "" {
		cfg.Store.Path = expandPath(path)
	}
	if dir := os.Getenv("GITVIZ_AVATAR_DIR"); dir != "" {
		cfg.Store.AvatarDir = expandPath(dir)
	}
	if path := os.Getenv("GITVIZ_CACHE_PATH"); path != "" {
		cfg.Scan.CachePath = expandPath(path)
	}
	if workers := os.Getenv("GITVIZ_SCAN_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Scan.Workers = n
		}
	}
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// DateRange parses the configured dates. An empty end date means today.
// Parse failures and inverted ranges both come back as date range errors.
func (c *Config) DateRange() (start, end time.Time, err error) {
	start, err = time.Parse(time.DateOnly, c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.DateRange(
			fmt.Sprintf("invalid start date %q: expected YYYY-MM-DD", c.StartDate))
	}

	if c.EndDate == "" {
		now := time.Now()
		end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		end, err = time.Parse(time.DateOnly, c.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.DateRange(
				fmt.Sprintf("invalid end date %q: expected YYYY-MM-DD", c.EndDate))
		}
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, apperrors.DateRange(
			fmt.Sprintf("start date %s is after end date %s",
				start.Format(time.DateOnly), end.Format(time.DateOnly)))
	}
	return start, end, nil
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".gitviz", "config.yaml")
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("start_date", c.StartDate)
	v.Set("end_date", c.EndDate)
	v.Set("output", c.Output)
	v.Set("seconds_per_day", c.SecondsPerDay)
	v.Set("time_scale", c.TimeScale)
	v.Set("highlight", c.Highlight)
	v.Set("scan", c.Scan)
	v.Set("store", c.Store)
	v.Set("render", c.Render)
	v.Set("encode", c.Encode)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.ConfigPersistence(err, "create config directory")
	}
	if err := v.WriteConfigAs(path); err != nil {
		return apperrors.ConfigPersistence(err, "write config file")
	}
	return nil
}
