package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the signal intelligence service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	TTS       TTSConfig       `mapstructure:"tts"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Janitor   JanitorConfig   `mapstructure:"janitor"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Listen   string `mapstructure:"listen"`
	DataDir  string `mapstructure:"data_dir"`
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	SeedDemo bool   `mapstructure:"seed_demo"`
}

// LLMConfig contains the chat-completion gateway settings
type LLMConfig struct {
	APIKey       string           `mapstructure:"api_key"`
	BaseURL      string           `mapstructure:"base_url"`
	Timeout      time.Duration    `mapstructure:"timeout"`
	StageTimeout time.Duration    `mapstructure:"stage_timeout"`
	MaxTokens    int              `mapstructure:"max_tokens"`
	Routing      LLMRoutingConfig `mapstructure:"routing"`
}

// LLMRoutingConfig defines which model to use for different pipeline stages
type LLMRoutingConfig struct {
	Pipeline string `mapstructure:"pipeline"` // classify, graph, conflicts, truth, actions
	Query    string `mapstructure:"query"`    // executive query (cheaper model)
	Fallback string `mapstructure:"fallback"`
}

// IdentityConfig configures bearer-token verification.
// When URL+ServiceKey are set, tokens are verified against the remote
// identity service. When JWTSecret is set, tokens are verified locally.
// When neither is configured, authenticated routes fail closed (503).
type IdentityConfig struct {
	URL         string        `mapstructure:"url"`
	ServiceKey  string        `mapstructure:"service_key"`
	JWTSecret   string        `mapstructure:"jwt_secret"`
	Timeout     time.Duration `mapstructure:"timeout"`
	DisableAuth bool          `mapstructure:"disable_auth"`
}

// Configured reports whether any verification backend is available.
func (c IdentityConfig) Configured() bool {
	return (c.URL != "" && c.ServiceKey != "") || c.JWTSecret != ""
}

// TTSConfig contains ElevenLabs text-to-speech settings
type TTSConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	VoiceID      string        `mapstructure:"voice_id"`
	ModelID      string        `mapstructure:"model_id"`
	OutputFormat string        `mapstructure:"output_format"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig holds fixed-window limits. Zero disables a limiter.
type RateLimitConfig struct {
	Window      time.Duration `mapstructure:"window"`
	GlobalMax   int           `mapstructure:"global_max"`
	QueryMax    int           `mapstructure:"query_max"`
	ProcessMax  int           `mapstructure:"process_max"`
	TTSMax      int           `mapstructure:"tts_max"`
	SweepPeriod time.Duration `mapstructure:"sweep_period"`
}

// RedisConfig points the rate limiter at a shared counter backend.
// Optional; the limiter falls back to in-process counters.
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Pass string `mapstructure:"pass"`
	DB   int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	if c.Host == "" {
		return ""
	}
	port := c.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", c.Host, port)
}

// JanitorConfig schedules periodic store compaction
type JanitorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
}

// LoadConfig reads the config file (json) plus ORGPULSE_* env overrides.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.listen", ":8090")
	viper.SetDefault("general.data_dir", "data")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.seed_demo", true)
	viper.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("llm.timeout", 60*time.Second)
	viper.SetDefault("llm.stage_timeout", 45*time.Second)
	viper.SetDefault("llm.max_tokens", 4000)
	viper.SetDefault("llm.routing.pipeline", "openai/gpt-5-mini")
	viper.SetDefault("llm.routing.query", "openai/gpt-4o-mini")
	viper.SetDefault("llm.routing.fallback", "openai/gpt-4o-mini")
	viper.SetDefault("identity.timeout", 10*time.Second)
	viper.SetDefault("tts.model_id", "eleven_multilingual_v2")
	viper.SetDefault("tts.output_format", "mp3_44100_128")
	viper.SetDefault("tts.timeout", 30*time.Second)
	viper.SetDefault("rate_limit.window", time.Minute)
	viper.SetDefault("rate_limit.global_max", 60)
	viper.SetDefault("rate_limit.query_max", 20)
	viper.SetDefault("rate_limit.process_max", 10)
	viper.SetDefault("rate_limit.tts_max", 10)
	viper.SetDefault("rate_limit.sweep_period", time.Minute)
	viper.SetDefault("janitor.enabled", false)
	viper.SetDefault("janitor.cron", "@daily")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("ORGPULSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// common provider env vars without the prefix
	_ = viper.BindEnv("llm.api_key", "ORGPULSE_LLM_API_KEY", "OPENROUTER_API_KEY")
	_ = viper.BindEnv("llm.routing.pipeline", "ORGPULSE_LLM_ROUTING_PIPELINE", "OPENROUTER_MODEL")
	_ = viper.BindEnv("identity.url", "ORGPULSE_IDENTITY_URL", "SUPABASE_URL")
	_ = viper.BindEnv("identity.service_key", "ORGPULSE_IDENTITY_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY")
	_ = viper.BindEnv("identity.disable_auth", "ORGPULSE_IDENTITY_DISABLE_AUTH", "DISABLE_AUTH")
	_ = viper.BindEnv("tts.api_key", "ORGPULSE_TTS_API_KEY", "ELEVENLABS_API_KEY")
	_ = viper.BindEnv("tts.voice_id", "ORGPULSE_TTS_VOICE_ID", "ELEVENLABS_VOICE_ID")

	if err := viper.ReadInConfig(); err != nil {
		// config file is optional; env + defaults carry a dev setup
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, os.ErrNotExist) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return &config
}
