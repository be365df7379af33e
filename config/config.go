package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the translation bridge.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Translate TranslateConfig `mapstructure:"translate"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// BrowserConfig controls the single headless Chrome session.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless"`
	ExecPath       string        `mapstructure:"exec_path"`
	UserDataDir    string        `mapstructure:"user_data_dir"`
	HeadfulLogin   bool          `mapstructure:"headful_login"`
	CookieFile     string        `mapstructure:"cookie_file"`
	RestartRetries int           `mapstructure:"restart_retries"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
}

func (b BrowserConfig) Validate() error {
	if strings.TrimSpace(b.CookieFile) == "" {
		return fmt.Errorf("browser.cookie_file is required")
	}
	if b.RestartRetries < 0 {
		return fmt.Errorf("browser.restart_retries cannot be negative")
	}
	return nil
}

// ChatConfig describes the chat surface being driven and the
// bounds of the chunk submission protocol.
type ChatConfig struct {
	Surface           string        `mapstructure:"surface"` // profile id, e.g. "gemini"
	SurfaceURL        string        `mapstructure:"surface_url"`
	PromptPrefix      string        `mapstructure:"prompt_prefix"`
	InputWait         time.Duration `mapstructure:"input_wait"`
	SendPollEvery     time.Duration `mapstructure:"send_poll_every"`
	SendPollRounds    int           `mapstructure:"send_poll_rounds"`
	ResponseWait      time.Duration `mapstructure:"response_wait"`
	ResponsePollEvery time.Duration `mapstructure:"response_poll_every"`
	Attempts          int           `mapstructure:"attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	AuthWait          time.Duration `mapstructure:"auth_wait"`
}

// Normalize applies the protocol's default bounds when unset.
func (c ChatConfig) Normalize() ChatConfig {
	if c.Surface == "" {
		c.Surface = "gemini"
	}
	if c.InputWait <= 0 {
		c.InputWait = 60 * time.Second
	}
	if c.SendPollEvery <= 0 {
		c.SendPollEvery = time.Second
	}
	if c.SendPollRounds <= 0 {
		c.SendPollRounds = 30
	}
	if c.ResponseWait <= 0 {
		c.ResponseWait = 600 * time.Second
	}
	if c.ResponsePollEvery <= 0 {
		c.ResponsePollEvery = 2 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = time.Second
	}
	if c.AuthWait <= 0 {
		c.AuthWait = 45 * time.Second
	}
	return c
}

func (c ChatConfig) Validate() error {
	if strings.TrimSpace(c.SurfaceURL) == "" {
		return fmt.Errorf("chat.surface_url is required")
	}
	return nil
}

// TranslateConfig tunes chunking and failure reporting.
type TranslateConfig struct {
	MaxChunkChars     int `mapstructure:"max_chunk_chars"`
	ErrorPreviewChars int `mapstructure:"error_preview_chars"`
}

func (t TranslateConfig) Normalize() TranslateConfig {
	if t.MaxChunkChars <= 0 {
		t.MaxChunkChars = 4000
	}
	if t.ErrorPreviewChars <= 0 {
		t.ErrorPreviewChars = 120
	}
	return t
}

// CacheConfig selects the chapter cache backend.
type CacheConfig struct {
	Backend string      `mapstructure:"backend"` // inmemory (default) or redis
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (c CacheConfig) Validate() error {
	switch c.Backend {
	case "", "inmemory":
		return nil
	case "redis":
		if strings.TrimSpace(c.Redis.Host) == "" {
			return fmt.Errorf("cache.redis.host required when backend is redis")
		}
		if strings.TrimSpace(c.Redis.Port) == "" {
			return fmt.Errorf("cache.redis.port required when backend is redis")
		}
		return nil
	default:
		return fmt.Errorf("cache.backend must be inmemory or redis, got %q", c.Backend)
	}
}

// LoadConfig loads config from file
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("server.listen", ":8788")
	viper.SetDefault("browser.headless", true)
	viper.SetDefault("browser.headful_login", true)
	viper.SetDefault("browser.cookie_file", "cookies.json")
	viper.SetDefault("browser.restart_retries", 2)
	viper.SetDefault("browser.nav_timeout", "45s")
	viper.SetDefault("cache.backend", "inmemory")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("CHATBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	config.Chat = config.Chat.Normalize()
	config.Translate = config.Translate.Normalize()

	if err := config.Browser.Validate(); err != nil {
		return nil, err
	}
	if err := config.Chat.Validate(); err != nil {
		return nil, err
	}
	if err := config.Cache.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
