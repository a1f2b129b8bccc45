package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the Scout service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
	// CORS origins permitted to talk to the API (dashboard frontends).
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider LLMProviderConfig `mapstructure:"provider"`
	Routing  LLMRoutingConfig  `mapstructure:"routing"`
}

// LLMProviderConfig represents the model provider endpoint settings.
type LLMProviderConfig struct {
	Type    string              `mapstructure:"type"` // anthropic
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Models  map[string]LLMModel `mapstructure:"models"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration keyed by alias.
type LLMModel struct {
	APIName   string `mapstructure:"api_name"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// LLMRoutingConfig defines which model alias to use for each stage.
type LLMRoutingConfig struct {
	Planning  string `mapstructure:"planning"`  // plan + confidence reasoning
	Research  string `mapstructure:"research"`  // tool-use research loops
	Synthesis string `mapstructure:"synthesis"` // cheaper model for presentation
	Fallback  string `mapstructure:"fallback"`
}

// AgentsConfig contains the research loop knobs.
type AgentsConfig struct {
	MaxCycles        int           `mapstructure:"max_cycles"`
	MaxPathsPerCycle int           `mapstructure:"max_paths_per_cycle"`
	MaxParallelPaths int           `mapstructure:"max_parallel_paths"`
	ToolCallBudget   int           `mapstructure:"tool_call_budget"`
	ToolTimeout      time.Duration `mapstructure:"tool_timeout"`
}

// ToolsConfig contains settings for the external research tools.
type ToolsConfig struct {
	BraveAPIKey  string       `mapstructure:"brave_api_key"`
	SECUserAgent string       `mapstructure:"sec_user_agent"`
	Scrape       ScrapeConfig `mapstructure:"scrape"`
}

// ScrapeConfig controls the page-fetch strategy for web_scrape.
type ScrapeConfig struct {
	RenderJS bool          `mapstructure:"render_js"` // use a headless browser instead of plain HTTP
	MaxChars int           `mapstructure:"max_chars"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StorageConfig contains database settings.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL settings.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a postgres connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains Redis settings for the event stream and scheduler locks.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StreamConfig contains progress-stream settings.
type StreamConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	MaxStreamDuration time.Duration `mapstructure:"max_stream_duration"`
}

// SchedulerConfig controls the background dashboard-refresh pass.
type SchedulerConfig struct {
	RefreshCron string        `mapstructure:"refresh_cron"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
}

// TelemetryConfig contains metrics settings.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// LoadConfig reads configuration from file and SCOUT_* environment variables.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":10020")
	viper.SetDefault("server.allow_origins", []string{"*"})
	viper.SetDefault("llm.provider.type", "anthropic")
	viper.SetDefault("llm.provider.base_url", "https://api.anthropic.com")
	viper.SetDefault("llm.provider.timeout", 120*time.Second)
	viper.SetDefault("llm.routing.planning", "sonnet")
	viper.SetDefault("llm.routing.research", "sonnet")
	viper.SetDefault("llm.routing.synthesis", "haiku")
	viper.SetDefault("llm.routing.fallback", "sonnet")
	viper.SetDefault("agents.max_cycles", 5)
	viper.SetDefault("agents.max_paths_per_cycle", 5)
	viper.SetDefault("agents.max_parallel_paths", 5)
	viper.SetDefault("agents.tool_call_budget", 10)
	viper.SetDefault("agents.tool_timeout", 15*time.Second)
	viper.SetDefault("tools.sec_user_agent", "ScoutBot/1.0 (contact@aquaregia.life)")
	viper.SetDefault("tools.scrape.max_chars", 8000)
	viper.SetDefault("tools.scrape.timeout", 15*time.Second)
	viper.SetDefault("stream.heartbeat_interval", 30*time.Second)
	viper.SetDefault("stream.max_stream_duration", 10*time.Minute)
	viper.SetDefault("scheduler.refresh_cron", "0 * * * *")
	viper.SetDefault("scheduler.stale_after", 7*24*time.Hour)
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("SCOUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// config file is optional; env + defaults cover most deployments
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if cfg.LLM.Provider.Models == nil {
		cfg.LLM.Provider.Models = map[string]LLMModel{
			"sonnet": {APIName: "claude-sonnet-4-20250514", MaxTokens: 4096},
			"haiku":  {APIName: "claude-haiku-4-20250514", MaxTokens: 4096},
		}
	}
	return &cfg, nil
}
