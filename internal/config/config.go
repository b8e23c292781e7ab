package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 8000
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultAgentMaxTurns = 6
	DefaultDotEnv        = ".env"
)

var (
	ErrMissingBotToken   = errors.New("TELEGRAM_BOT_TOKEN not found in environment")
	ErrMissingSecret     = errors.New("TELEGRAM_SECRET_TOKEN not found in environment")
	ErrMissingWebhookURL = errors.New("webhook_url not provided and TELEGRAM_WEBHOOK_URL not found in environment")
)

// Config is built once at process start and passed by pointer to every component.
type Config struct {
	Host   string
	Port   int
	Reload bool

	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string

	TelegramBotToken    string
	TelegramSecretToken string
	TelegramWebhookURL  string
	TelegramBotUsername string
	TelegramAPIBaseURL  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	AgentMaxTurns int

	DBPath           string
	JournalRetention time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string

	// ConfigFile is the file viper actually read, empty when running on env only.
	ConfigFile string
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SetDefaults registers every key with its default so AutomaticEnv can resolve it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("reload", true)
	v.SetDefault("openweather_api", "")
	v.SetDefault("openweather_base_url", "https://api.openweathermap.org")
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("telegram_secret_token", "")
	v.SetDefault("telegram_webhook_url", "")
	v.SetDefault("telegram_bot_username", "")
	v.SetDefault("telegram_api_base_url", "https://api.telegram.org")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "")
	v.SetDefault("openai_model", DefaultOpenAIModel)
	v.SetDefault("agent_max_turns", DefaultAgentMaxTurns)
	v.SetDefault("db_path", "")
	v.SetDefault("journal_retention", "72h")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")
}

// NewViper returns a viper instance reading the process environment and, when
// present, a dotenv file. An explicit configFile must exist; the default .env
// is optional.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()

	path := strings.TrimSpace(configFile)
	explicit := path != ""
	if !explicit {
		path = DefaultDotEnv
	}
	if _, err := os.Stat(path); err != nil {
		if explicit {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigFile(path)
	if strings.HasSuffix(path, ".env") || !strings.Contains(baseName(path), ".") {
		v.SetConfigType("env")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return v, nil
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Load resolves a Config from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Host:                strings.TrimSpace(v.GetString("host")),
		Port:                v.GetInt("port"),
		Reload:              v.GetBool("reload"),
		OpenWeatherAPIKey:   strings.TrimSpace(v.GetString("openweather_api")),
		OpenWeatherBaseURL:  strings.TrimRight(strings.TrimSpace(v.GetString("openweather_base_url")), "/"),
		TelegramBotToken:    strings.TrimSpace(v.GetString("telegram_bot_token")),
		TelegramSecretToken: v.GetString("telegram_secret_token"),
		TelegramWebhookURL:  strings.TrimSpace(v.GetString("telegram_webhook_url")),
		TelegramBotUsername: strings.TrimPrefix(strings.TrimSpace(v.GetString("telegram_bot_username")), "@"),
		TelegramAPIBaseURL:  strings.TrimRight(strings.TrimSpace(v.GetString("telegram_api_base_url")), "/"),
		OpenAIAPIKey:        strings.TrimSpace(v.GetString("openai_api_key")),
		OpenAIBaseURL:       strings.TrimSpace(v.GetString("openai_base_url")),
		OpenAIModel:         strings.TrimSpace(v.GetString("openai_model")),
		AgentMaxTurns:       v.GetInt("agent_max_turns"),
		DBPath:              strings.TrimSpace(v.GetString("db_path")),
		JournalRetention:    v.GetDuration("journal_retention"),
		LogLevel:            v.GetString("log_level"),
		LogFormat:           v.GetString("log_format"),
		LogFile:             strings.TrimSpace(v.GetString("log_file")),
		ConfigFile:          v.ConfigFileUsed(),
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT %q", v.GetString("port"))
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = DefaultOpenAIModel
	}
	if cfg.AgentMaxTurns <= 0 {
		cfg.AgentMaxTurns = DefaultAgentMaxTurns
	}
	return cfg, nil
}

// WebhookTarget checks what the setWebhook call needs, in the order an
// operator would fix them. An explicit url wins over TELEGRAM_WEBHOOK_URL.
func (c *Config) WebhookTarget(url string) (string, error) {
	if c.TelegramBotToken == "" {
		return "", ErrMissingBotToken
	}
	if c.TelegramSecretToken == "" {
		return "", ErrMissingSecret
	}
	url = strings.TrimSpace(url)
	if url == "" {
		url = c.TelegramWebhookURL
	}
	if url == "" {
		return "", ErrMissingWebhookURL
	}
	return url, nil
}

// ShutdownTimeout bounds graceful shutdown of the HTTP server.
const ShutdownTimeout = 5 * time.Second
