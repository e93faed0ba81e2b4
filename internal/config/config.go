package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	PowerBI      PowerBIConfig   `mapstructure:"powerbi"`
	StateStorage StateStorage    `mapstructure:"state_storage"`
	Sync         SyncConfig      `mapstructure:"sync"`
	Scheduler    SchedulerConfig `mapstructure:"scheduler"`
	Server       ServerConfig    `mapstructure:"server"`
	Logging      LoggingConfig   `mapstructure:"logging"`
	Redis        RedisConfig     `mapstructure:"redis"`
}

type PowerBIConfig struct {
	AuthorityURL    string  `mapstructure:"authority_url" validate:"required,url"`
	APIBaseURL      string  `mapstructure:"api_base_url" validate:"required,url"`
	TenantID        string  `mapstructure:"tenant_id"`
	ClientID        string  `mapstructure:"client_id"`
	ClientSecret    string  `mapstructure:"client_secret"`
	AccessToken     string  `mapstructure:"access_token"`
	Scope           string  `mapstructure:"scope"`
	Timeout         string  `mapstructure:"timeout"`
	RateLimit       float64 `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst       int     `mapstructure:"rate_burst" validate:"gte=0"`
	ListingPageSize int     `mapstructure:"listing_page_size" validate:"gte=1,lte=5000"`
	MaxPages        int     `mapstructure:"max_pages" validate:"gte=1"`
}

func (p PowerBIConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(p.Timeout)
	return d
}

// UsesClientCredentials reports whether tokens should be acquired with the
// OAuth2 client credentials flow instead of a static access token.
func (p PowerBIConfig) UsesClientCredentials() bool {
	return p.ClientID != "" && p.ClientSecret != "" && p.TenantID != ""
}

type StateStorage struct {
	Type     string `mapstructure:"type" validate:"oneof=mysql sqlite"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	FilePath string `mapstructure:"file_path"` // For SQLite
}

type SyncConfig struct {
	AutoSyncEnabled bool     `mapstructure:"auto_sync_enabled"`
	FrequencyHours  int      `mapstructure:"frequency_hours" validate:"gte=1,lte=168"`
	Workspaces      []string `mapstructure:"workspaces" validate:"dive,uuid"`
	HistoryTop      int      `mapstructure:"history_top" validate:"gte=1,lte=100"`
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	LockTTL  string `mapstructure:"lock_ttl"`
}

func (r RedisConfig) GetLockTTL() time.Duration {
	d, _ := time.ParseDuration(r.LockTTL)
	return d
}

// setDefaults registers every key. Unmarshal only sees keys viper knows, so a
// key without a default would ignore its PBISYNC_* variable.
func setDefaults(v *viper.Viper) {
	v.SetDefault("powerbi.authority_url", "https://login.microsoftonline.com/")
	v.SetDefault("powerbi.api_base_url", "https://api.powerbi.com/v1.0/myorg/")
	v.SetDefault("powerbi.tenant_id", "")
	v.SetDefault("powerbi.client_id", "")
	v.SetDefault("powerbi.client_secret", "")
	v.SetDefault("powerbi.access_token", "")
	v.SetDefault("powerbi.scope", "https://analysis.windows.net/powerbi/api/.default")
	v.SetDefault("powerbi.timeout", "30s")
	v.SetDefault("powerbi.rate_limit", 10.0)
	v.SetDefault("powerbi.rate_burst", 5)
	v.SetDefault("powerbi.listing_page_size", 1000)
	v.SetDefault("powerbi.max_pages", 100)

	v.SetDefault("state_storage.type", "sqlite")
	v.SetDefault("state_storage.host", "")
	v.SetDefault("state_storage.port", 3306)
	v.SetDefault("state_storage.user", "")
	v.SetDefault("state_storage.password", "")
	v.SetDefault("state_storage.database", "")
	v.SetDefault("state_storage.file_path", "data/pbisync.db")

	v.SetDefault("sync.auto_sync_enabled", false)
	v.SetDefault("sync.frequency_hours", 24)
	v.SetDefault("sync.workspaces", []string{})
	v.SetDefault("sync.history_top", 5)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "@every 1h")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "2h")
}

// LoadConfig reads the YAML file at path, applies defaults and PBISYNC_*
// environment overrides, and validates the result. A missing file is not an
// error; defaults and environment still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PBISYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.StateStorage.Type == "sqlite" && c.StateStorage.FilePath == "" {
		return fmt.Errorf("invalid config: state_storage.file_path is required for sqlite")
	}
	if c.StateStorage.Type == "mysql" && (c.StateStorage.Host == "" || c.StateStorage.Database == "") {
		return fmt.Errorf("invalid config: state_storage.host and state_storage.database are required for mysql")
	}
	return nil
}
