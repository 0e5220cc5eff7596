package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings that are common for all bots.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	// SecretToken is echoed by Telegram in every webhook call; requests
	// without it are rejected.
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET_TOKEN"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
	// KeysOrder is a comma separated list of leading keys; "default" keeps the built-in order.
	KeysOrder string `yaml:"keys_order"`
	// DebugSample keeps a fraction of high-volume debug events, e.g. "1/50" or "50".
	DebugSample string `yaml:"debug_sample"`
	// Trace disables debug sampling.
	Trace bool `yaml:"trace" envconfig:"LOG_TRACE"`
	Dir   string `yaml:"dir"`
	// BotFile receives every line; ErrorsFile receives ERROR lines only.
	BotFile    string `yaml:"bot_file"`
	ErrorsFile string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	// MigrationsDir overrides the embedded schema; relative paths resolve
	// against the working directory.
	MigrationsDir string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// VaultConfig configures the private key vault.
// The master passphrase should come from the environment, not the YAML file.
type VaultConfig struct {
	MasterPassphrase string `yaml:"master_passphrase" envconfig:"VAULT_MASTER_PASSPHRASE"`
}

// SealPassphrase moves the master passphrase into an encrypted memguard
// enclave and clears the field, so later holders of the config never see it.
// The string decoded from YAML or the environment is immutable and stays in
// the heap until collected. Returns nil once taken or when empty.
func (v *VaultConfig) SealPassphrase() *memguard.Enclave {
	if v.MasterPassphrase == "" {
		return nil
	}
	buf := []byte(v.MasterPassphrase)
	v.MasterPassphrase = ""
	return memguard.NewEnclave(buf)
}

// SwapAPIConfig points at the external swap/order execution service.
type SwapAPIConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"SWAP_API_URL"`
	APIKey         string `yaml:"api_key" envconfig:"SWAP_API_KEY"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"SWAP_API_TIMEOUT_SECONDS"`
	// ReadRetries applies to idempotent reads only; trade submission is never retried.
	ReadRetries int `yaml:"read_retries" envconfig:"SWAP_API_READ_RETRIES"`
}

// ChainConfig configures the JSON-RPC endpoint used for balance reads.
type ChainConfig struct {
	RPCURL         string `yaml:"rpc_url" envconfig:"CHAIN_RPC_URL"`
	NativeSymbol   string `yaml:"native_symbol"`
	NativeDecimals int32  `yaml:"native_decimals"`
}

// TradingConfig bounds user input and execution.
type TradingConfig struct {
	MaxAmount             string   `yaml:"max_amount"`
	MaxIntervalHours      int      `yaml:"max_interval_hours"`
	ExecuteTimeoutSeconds int      `yaml:"execute_timeout_seconds" envconfig:"TRADING_EXECUTE_TIMEOUT_SECONDS"`
	KeyMessageTTLSeconds  int      `yaml:"key_message_ttl_seconds"`
	ActiveOrderStatuses   []string `yaml:"active_order_statuses"`
	// SessionIdleMinutes drops conversations that saw no input for this long.
	SessionIdleMinutes int `yaml:"session_idle_minutes"`
}

// Config aggregates bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	Vault     VaultConfig     `yaml:"vault"`
	SwapAPI   SwapAPIConfig   `yaml:"swap_api"`
	Chain     ChainConfig     `yaml:"chain"`
	Trading   TradingConfig   `yaml:"trading"`
}

const (
	// MinPassphraseLen is the shortest accepted vault master passphrase.
	MinPassphraseLen = 16

	defaultMaxAmount          = "1000000"
	defaultMaxIntervalHours   = 720
	defaultExecuteTimeout     = 45
	defaultKeyMessageTTL      = 60
	defaultSessionIdle        = 30
	defaultSwapAPITimeout     = 15
	defaultSwapAPIReadRetries = 2
	defaultNativeDecimals     = 18
)

// DefaultActiveOrderStatuses lists order statuses shown as active when the
// configuration does not override them.
var DefaultActiveOrderStatuses = []string{"open", "active", "pending"}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if err := normalizeDomain(cfg); err != nil {
		return err
	}
	return nil
}

func normalizeDomain(cfg *Config) error {
	if len(cfg.Vault.MasterPassphrase) < MinPassphraseLen {
		return fmt.Errorf("vault.master_passphrase must be at least %d bytes", MinPassphraseLen)
	}

	if strings.TrimSpace(cfg.SwapAPI.BaseURL) == "" {
		return fmt.Errorf("swap_api.base_url is required")
	}
	cfg.SwapAPI.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.SwapAPI.BaseURL), "/")
	if cfg.SwapAPI.TimeoutSeconds <= 0 {
		cfg.SwapAPI.TimeoutSeconds = defaultSwapAPITimeout
	}
	if cfg.SwapAPI.ReadRetries < 0 {
		return fmt.Errorf("swap_api.read_retries must be >= 0")
	}
	if cfg.SwapAPI.ReadRetries == 0 {
		cfg.SwapAPI.ReadRetries = defaultSwapAPIReadRetries
	}

	if strings.TrimSpace(cfg.Chain.RPCURL) == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if cfg.Chain.NativeDecimals <= 0 {
		cfg.Chain.NativeDecimals = defaultNativeDecimals
	}
	if strings.TrimSpace(cfg.Chain.NativeSymbol) == "" {
		cfg.Chain.NativeSymbol = "ETH"
	}

	if strings.TrimSpace(cfg.Trading.MaxAmount) == "" {
		cfg.Trading.MaxAmount = defaultMaxAmount
	}
	max, err := decimal.NewFromString(cfg.Trading.MaxAmount)
	if err != nil || !max.IsPositive() {
		return fmt.Errorf("invalid trading.max_amount %q", cfg.Trading.MaxAmount)
	}
	if cfg.Trading.MaxIntervalHours <= 0 {
		cfg.Trading.MaxIntervalHours = defaultMaxIntervalHours
	}
	if cfg.Trading.ExecuteTimeoutSeconds <= 0 {
		cfg.Trading.ExecuteTimeoutSeconds = defaultExecuteTimeout
	}
	if cfg.Trading.KeyMessageTTLSeconds <= 0 {
		cfg.Trading.KeyMessageTTLSeconds = defaultKeyMessageTTL
	}
	if cfg.Trading.SessionIdleMinutes <= 0 {
		cfg.Trading.SessionIdleMinutes = defaultSessionIdle
	}
	statuses := make([]string, 0, len(cfg.Trading.ActiveOrderStatuses))
	for _, st := range cfg.Trading.ActiveOrderStatuses {
		if st = strings.ToLower(strings.TrimSpace(st)); st != "" {
			statuses = append(statuses, st)
		}
	}
	if len(statuses) == 0 {
		statuses = append(statuses, DefaultActiveOrderStatuses...)
	}
	cfg.Trading.ActiveOrderStatuses = statuses

	cfg.Database.MigrationsDir = strings.TrimSpace(cfg.Database.MigrationsDir)
	return nil
}

// MaxAmountDecimal returns the parsed trading amount ceiling. Call after Normalize.
func (t TradingConfig) MaxAmountDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(t.MaxAmount)
	if err != nil {
		return decimal.RequireFromString(defaultMaxAmount)
	}
	return d
}
