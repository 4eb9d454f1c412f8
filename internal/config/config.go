package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"vault-guard/internal/alerting"
	"vault-guard/internal/logging"
	"vault-guard/internal/registry"
	"vault-guard/internal/risk"
	"vault-guard/internal/settings"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig        `mapstructure:"app"`
	Logging   logging.Config   `mapstructure:"logging"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Server    ServerConfig     `mapstructure:"server"`
	Scheduler SchedulerConfig  `mapstructure:"scheduler"`
	Engine    EngineConfig     `mapstructure:"engine"`
	Policy    PolicyConfig     `mapstructure:"policy"`
	Timelock  TimelockConfig   `mapstructure:"timelock"`
	Registry  registry.Options `mapstructure:"registry"`
	Ethereum  EthereumConfig   `mapstructure:"ethereum"`
	Alerting  AlertingConfig   `mapstructure:"alerting"`
	Export    ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN runs the
// service purely in memory.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// ServerConfig governs the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SchedulerConfig governs the polling sweep that refreshes readiness and
// expires freezes.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// EngineConfig tunes the risk engine.
type EngineConfig struct {
	Latency           time.Duration     `mapstructure:"latency"`
	AverageTxValue    decimal.Decimal   `mapstructure:"average_tx_value"`
	RecentActivity    int               `mapstructure:"recent_activity"`
	ActivityThreshold int               `mapstructure:"activity_threshold"`
	ActivityWindow    time.Duration     `mapstructure:"activity_window"`
	TrackActivity     bool              `mapstructure:"track_activity"`
	ReferenceBalance  decimal.Decimal   `mapstructure:"reference_balance"`
	GasEstimate       string            `mapstructure:"gas_estimate"`
	NativeSymbol      string            `mapstructure:"native_symbol"`
	CustomRules       []risk.CustomRule `mapstructure:"custom_rules"`
}

// PolicyConfig seeds the settings of every new vault.
type PolicyConfig struct {
	DailyLimitEth decimal.Decimal     `mapstructure:"daily_limit_eth"`
	TimelockHours int                 `mapstructure:"timelock_hours"`
	GuardianCount int                 `mapstructure:"guardian_count"`
	Guardians     []settings.Guardian `mapstructure:"guardians"`
}

// TimelockConfig governs queue and freeze behaviour.
type TimelockConfig struct {
	StrictExecute  bool `mapstructure:"strict_execute"`
	MaxFreezeHours int  `mapstructure:"max_freeze_hours"`
}

// EthereumConfig covers on-chain balance lookups. Without an RPC URL the
// engine simulates against the reference balance.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	MinPriority string         `mapstructure:"min_priority"`
	BufferSize  int            `mapstructure:"buffer_size"`
	FeedSize    int            `mapstructure:"feed_size"`
	SinkTimeout time.Duration  `mapstructure:"sink_timeout"`
	Channels    []string       `mapstructure:"channels"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
	Redis       RedisConfig    `mapstructure:"redis"`
}

// TelegramConfig describes the Telegram sink.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// RedisConfig describes the Redis pub/sub sink.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VAULTGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vaultguard")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("scheduler.interval", "1s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x76677264))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("engine.latency", "800ms")
	v.SetDefault("engine.average_tx_value", "0.5")
	v.SetDefault("engine.recent_activity", 2)
	v.SetDefault("engine.activity_threshold", 5)
	v.SetDefault("engine.activity_window", "1h")
	v.SetDefault("engine.track_activity", false)
	v.SetDefault("engine.reference_balance", "14.52")
	v.SetDefault("engine.gas_estimate", "0.0043 ETH")
	v.SetDefault("engine.native_symbol", "ETH")

	v.SetDefault("policy.daily_limit_eth", "5.0")
	v.SetDefault("policy.timelock_hours", 12)
	v.SetDefault("policy.guardian_count", 3)

	v.SetDefault("timelock.strict_execute", false)
	v.SetDefault("timelock.max_freeze_hours", 168)

	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.min_priority", "low")
	v.SetDefault("alerting.buffer_size", 256)
	v.SetDefault("alerting.feed_size", alerting.DefaultFeedSize)
	v.SetDefault("alerting.sink_timeout", "10s")
	v.SetDefault("alerting.channels", []string{"log"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.redis.enabled", false)
	v.SetDefault("alerting.redis.addr", "localhost:6379")
	v.SetDefault("alerting.redis.channel", "vaultguard:notifications")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			stringToDecimalHookFunc(),
		)
	}
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// stringToDecimalHookFunc decodes amounts written as strings or numbers.
func stringToDecimalHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return decimal.Zero, nil
			}
			return decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			return decimal.NewFromFloat(v), nil
		case float32:
			return decimal.NewFromFloat32(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		default:
			return data, nil
		}
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Engine.Latency < 0 {
		return fmt.Errorf("engine.latency cannot be negative")
	}
	if !c.Engine.AverageTxValue.IsPositive() {
		return fmt.Errorf("engine.average_tx_value must be greater than zero")
	}
	if c.Engine.ReferenceBalance.IsNegative() {
		return fmt.Errorf("engine.reference_balance cannot be negative")
	}
	if err := c.DefaultSettings().Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if c.Timelock.MaxFreezeHours <= 0 {
		return fmt.Errorf("timelock.max_freeze_hours must be greater than zero")
	}
	for _, ch := range c.Alerting.Channels {
		switch strings.ToLower(strings.TrimSpace(ch)) {
		case "log", "telegram", "redis":
		default:
			return fmt.Errorf("alerting.channels: unknown channel %q", ch)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	if c.Alerting.Redis.Enabled && c.Alerting.Redis.Addr == "" {
		return fmt.Errorf("alerting.redis.addr must be set")
	}
	return nil
}

// ChannelEnabled reports whether a notification channel is both listed and,
// for external sinks, switched on.
func (c *Config) ChannelEnabled(name string) bool {
	for _, ch := range c.Alerting.Channels {
		if !strings.EqualFold(strings.TrimSpace(ch), name) {
			continue
		}
		switch name {
		case "telegram":
			return c.Alerting.Telegram.Enabled
		case "redis":
			return c.Alerting.Redis.Enabled
		default:
			return true
		}
	}
	return false
}

// EngineOptions converts the engine section.
func (c *Config) EngineOptions() risk.Options {
	return risk.Options{
		Latency:           c.Engine.Latency,
		AverageTxValue:    c.Engine.AverageTxValue,
		RecentActivity:    c.Engine.RecentActivity,
		ActivityThreshold: c.Engine.ActivityThreshold,
		ReferenceBalance:  c.Engine.ReferenceBalance,
		GasEstimate:       c.Engine.GasEstimate,
		NativeSymbol:      c.Engine.NativeSymbol,
		CustomRules:       c.Engine.CustomRules,
	}
}

// RegistryOptions returns the built-in tables extended by the registry
// section.
func (c *Config) RegistryOptions() registry.Options {
	return registry.DefaultOptions().Merge(c.Registry)
}

// DefaultSettings returns the settings every new vault starts with.
func (c *Config) DefaultSettings() settings.Settings {
	s := settings.Defaults()
	s.DailyLimitEth = c.Policy.DailyLimitEth
	s.TimelockHours = c.Policy.TimelockHours
	s.GuardianCount = c.Policy.GuardianCount
	s.Guardians = append([]settings.Guardian(nil), c.Policy.Guardians...)
	return s
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
