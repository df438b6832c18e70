package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version" mapstructure:"version"`

	Backend struct {
		URL        string        `yaml:"url" mapstructure:"url"`
		StreamPath string        `yaml:"stream_path" mapstructure:"stream_path"`
		Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	} `yaml:"backend" mapstructure:"backend"`

	Traffic struct {
		PageSize int `yaml:"page_size" mapstructure:"page_size"`
	} `yaml:"traffic" mapstructure:"traffic"`

	Status struct {
		PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	} `yaml:"status" mapstructure:"status"`

	Recording struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Filter  string `yaml:"filter" mapstructure:"filter"`
	} `yaml:"recording" mapstructure:"recording"`

	Sqlite struct {
		Dsn    string `yaml:"dsn" mapstructure:"dsn"`
		Prefix string `yaml:"prefix" mapstructure:"prefix"`
	} `yaml:"sqlite" mapstructure:"sqlite"`

	Log struct {
		Level      string   `yaml:"level" mapstructure:"level"`
		Writer     []string `yaml:"writer" mapstructure:"writer"`
		File       string   `yaml:"file" mapstructure:"file"`
		MaxSizeMB  int      `yaml:"max_size_mb" mapstructure:"max_size_mb"`
		MaxBackups int      `yaml:"max_backups" mapstructure:"max_backups"`
		MaxAgeDays int      `yaml:"max_age_days" mapstructure:"max_age_days"`
	} `yaml:"log" mapstructure:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	cfg := &Config{Version: "1.0.0"}
	cfg.Backend.URL = "http://127.0.0.1:8081"
	cfg.Backend.StreamPath = "/ws/traffic"
	cfg.Backend.Timeout = 10 * time.Second
	cfg.Traffic.PageSize = 50
	cfg.Status.PollInterval = 10 * time.Second
	cfg.Sqlite.Dsn = "glancesync.sqlite3"
	cfg.Sqlite.Prefix = "glancesync_"
	cfg.Log.Level = "info"
	cfg.Log.Writer = []string{"console"}
	cfg.Log.File = "glancesync.log"
	cfg.Log.MaxSizeMB = 20
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 7
	return cfg
}

// Validate 校验并修正配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.URL) == "" {
		return errors.New("backend.url is required")
	}
	if c.Traffic.PageSize <= 0 {
		return errors.New("traffic.page_size must be positive")
	}
	if c.Backend.StreamPath == "" {
		c.Backend.StreamPath = "/ws/traffic"
	}
	if c.Status.PollInterval <= 0 {
		c.Status.PollInterval = 10 * time.Second
	}
	return nil
}

// Load 从配置文件与环境变量加载，未找到文件时使用默认值
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("glancesync")
	v.SetConfigType("yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "glancesync"))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return decode(v)
}

// LoadFromFile 加载指定配置文件
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("GLANCESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := NewConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("backend.url", d.Backend.URL)
	v.SetDefault("backend.stream_path", d.Backend.StreamPath)
	v.SetDefault("backend.timeout", d.Backend.Timeout)
	v.SetDefault("traffic.page_size", d.Traffic.PageSize)
	v.SetDefault("status.poll_interval", d.Status.PollInterval)
	v.SetDefault("recording.enabled", d.Recording.Enabled)
	v.SetDefault("recording.filter", d.Recording.Filter)
	v.SetDefault("sqlite.dsn", d.Sqlite.Dsn)
	v.SetDefault("sqlite.prefix", d.Sqlite.Prefix)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.writer", d.Log.Writer)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := NewConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
