package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ovo-bot/ovo-agent/internal/biz"
	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
	"github.com/ovo-bot/ovo-agent/internal/biz/usecase"
)

// Config represents application configuration
type Config struct {
	Feishu    FeishuConfig    `envPrefix:"FEISHU_"`
	LLM       LLMConfig       `envPrefix:"LLM_"`
	Storage   StorageConfig   `envPrefix:"STORAGE_"`
	Agent     AgentConfig     `envPrefix:"AGENT_"`
	Proactive ProactiveConfig `envPrefix:"PROACTIVE_"`
	Admin     AdminConfig     `envPrefix:"ADMIN_"`

	// Debug mode
	Debug bool `env:"DEBUG"`
	// LogFormat is text or json
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID       string  `env:"APP_ID"`
	AppSecret   string  `env:"APP_SECRET"`
	DownloadDir string  `env:"DOWNLOAD_DIR"`
	SendRate    float64 `env:"SEND_RATE" envDefault:"5"` // Messages per second, 0 disables pacing
	SendBurst   int     `env:"SEND_BURST" envDefault:"5"`
}

// LLMConfig contains the OpenAI-compatible generator configuration
type LLMConfig struct {
	APIKey      string  `env:"API_KEY"`
	BaseURL     string  `env:"BASE_URL" envDefault:"https://api.moonshot.cn/v1"`
	Model       string  `env:"MODEL" envDefault:"moonshot-v1-8k"`
	Temperature float32 `env:"TEMPERATURE" envDefault:"0.7"`
	MaxTokens   int     `env:"MAX_TOKENS" envDefault:"400"`
	TimeoutMs   int64   `env:"TIMEOUT_MS" envDefault:"30000"`
}

// StorageConfig contains storage configuration
type StorageConfig struct {
	DBPath string `env:"DB_PATH"`
}

// AgentConfig contains reply behavior configuration
type AgentConfig struct {
	ReplyEnabled           bool            `env:"REPLY_ENABLED" envDefault:"true"`
	BotAliases             []string        `env:"BOT_ALIASES" envSeparator:"," envDefault:"ovo"`
	GroupEnabled           map[string]bool `env:"GROUP_ENABLED"`
	GroupDefaultEnabled    bool            `env:"GROUP_DEFAULT_ENABLED" envDefault:"true"`
	StyleVariants          bool            `env:"STYLE_VARIANTS" envDefault:"true"`
	StyleSwitchProbability float64         `env:"STYLE_SWITCH_PROBABILITY" envDefault:"0.35"`
	QuoteMode              string          `env:"QUOTE_MODE" envDefault:"auto"`
	WaitMinMs              int64           `env:"WAIT_MIN_MS" envDefault:"200"`
	WaitMaxMs              int64           `env:"WAIT_MAX_MS" envDefault:"4000"`
	UnfinishedWaitMs       int64           `env:"UNFINISHED_WAIT_MS" envDefault:"1200"`
	TurnTimeoutMs          int64           `env:"TURN_TIMEOUT_MS" envDefault:"60000"`
}

// ProactiveConfig contains proactive messaging configuration
type ProactiveConfig struct {
	Enabled           bool  `env:"ENABLED" envDefault:"true"`
	TickMs            int64 `env:"TICK_MS" envDefault:"60000"`
	IdleMs            int64 `env:"IDLE_MS" envDefault:"2700000"`
	ContinueIdleMs    int64 `env:"CONTINUE_IDLE_MS" envDefault:"240000"`
	MinGapMs          int64 `env:"MIN_GAP_MS" envDefault:"5400000"`
	BubbleIntervalMs  int64 `env:"BUBBLE_INTERVAL_MS" envDefault:"21600000"`
	MinRecentMessages int   `env:"MIN_RECENT_MESSAGES" envDefault:"6"`
	MaxPerTick        int   `env:"MAX_PER_TICK" envDefault:"2"`
}

// AdminConfig contains the admin HTTP server configuration
type AdminConfig struct {
	Addr string `env:"ADDR" envDefault:"127.0.0.1:8787"` // Empty disables the server
}

// Load reads envFile when present, then the process environment
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Storage.DBPath == "" {
		homeDir, _ := os.UserHomeDir()
		cfg.Storage.DBPath = filepath.Join(homeDir, ".ovo-agent", "ovo.db")
	}
	if cfg.Feishu.DownloadDir == "" {
		cfg.Feishu.DownloadDir = filepath.Join(os.TempDir(), "ovo-agent-images")
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	if p := c.Agent.StyleSwitchProbability; p < 0 || p > 1 {
		return &ConfigError{Field: "AGENT_STYLE_SWITCH_PROBABILITY", Message: "must be within [0, 1]"}
	}
	if c.Agent.WaitMinMs < 0 || c.Agent.WaitMaxMs < c.Agent.WaitMinMs {
		return &ConfigError{Field: "AGENT_WAIT_MIN_MS/AGENT_WAIT_MAX_MS", Message: "must satisfy 0 <= min <= max"}
	}
	switch domain.QuoteMode(c.Agent.QuoteMode) {
	case domain.QuoteAuto, domain.QuoteOn, domain.QuoteOff:
	default:
		return &ConfigError{Field: "AGENT_QUOTE_MODE", Message: "must be auto, on or off"}
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return &ConfigError{Field: "LOG_FORMAT", Message: "must be text or json"}
	}
	if c.Proactive.Enabled && c.Proactive.TickMs <= 0 {
		return &ConfigError{Field: "PROACTIVE_TICK_MS", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

// Aliases returns the trimmed, non-empty bot aliases
func (c *AgentConfig) Aliases() []string {
	var out []string
	for _, a := range c.BotAliases {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// TurnTimeout returns the per-turn deadline
func (c *AgentConfig) TurnTimeout() time.Duration {
	return time.Duration(c.TurnTimeoutMs) * time.Millisecond
}

// TickInterval returns the proactive tick period
func (c *ProactiveConfig) TickInterval() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// ToUsecaseOptions converts to usecase configuration, with texts taken
// from templates
func (c *Config) ToUsecaseOptions(t *Templates) biz.Options {
	if t == nil {
		t = DefaultTemplates()
	}

	trigger := usecase.DefaultTriggerConfig()
	trigger.Aliases = c.Agent.Aliases()
	trigger.WaitMinMs = c.Agent.WaitMinMs
	trigger.WaitMaxMs = c.Agent.WaitMaxMs

	planner := usecase.DefaultPlannerConfig()
	planner.StyleVariants = c.Agent.StyleVariants
	planner.StyleSwitchProbability = c.Agent.StyleSwitchProbability
	planner.QuoteMode = domain.QuoteMode(c.Agent.QuoteMode)
	planner.UnfinishedWaitMs = c.Agent.UnfinishedWaitMs
	planner.Closings = t.closings()

	proactive := usecase.DefaultProactiveConfig()
	proactive.IdleMs = c.Proactive.IdleMs
	proactive.ContinueIdleMs = c.Proactive.ContinueIdleMs
	proactive.MinGapMs = c.Proactive.MinGapMs
	proactive.BubbleIntervalMs = c.Proactive.BubbleIntervalMs
	proactive.MinRecentMessages = c.Proactive.MinRecentMessages
	proactive.MaxPerTick = c.Proactive.MaxPerTick
	proactive.Templates = t.proactive()

	return biz.Options{
		Trigger:   trigger,
		State:     usecase.DefaultStateTrackerConfig(),
		Planner:   planner,
		Proactive: proactive,
		Prompt:    t.promptConfig(),
	}
}
