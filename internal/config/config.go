package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`
	Chain  ChainConfig  `mapstructure:"chain"`

	Game       GameConfig       `mapstructure:"game"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Claim      ClaimConfig      `mapstructure:"claim"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Scheduler string `mapstructure:"scheduler"`
	Reconcile string `mapstructure:"reconcile"`
}

type ChainConfig struct {
	RPCEndpoint   string        `mapstructure:"rpc_endpoint"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	// Flat fee estimate (token units) used when getFeeForMessage is unavailable.
	FallbackFee string `mapstructure:"fallback_fee"`
}

type GameConfig struct {
	Variants []VariantConfig `mapstructure:"variants"`
}

// VariantConfig parameterizes one game mode. The shipped modes differ only
// in outcome domain and timing, so one engine serves both.
type VariantConfig struct {
	Name          string        `mapstructure:"name"`
	OutcomeValues []int         `mapstructure:"outcome_values"`
	RoundDuration time.Duration `mapstructure:"round_duration"`
	StartDelay    time.Duration `mapstructure:"start_delay"`
	CreationLead  time.Duration `mapstructure:"creation_lead"`
	// Optional per-variant entry fee (token units). Empty falls back to the
	// system_configs row.
	EntryFee string `mapstructure:"entry_fee"`
}

type SettlementConfig struct {
	// When true a round whose settlement errors is force-completed with
	// zeroed counters instead of being retried on the next tick.
	ForceCloseOnError bool `mapstructure:"force_close_on_error"`
}

type ClaimConfig struct {
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`
}

type ReconcileConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	BatchSize int  `mapstructure:"batch_size"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.scheduler", "@every 10s")
	v.SetDefault("cron.reconcile", "@every 1m")
	v.SetDefault("chain.rpc_endpoint", "http://127.0.0.1:8899")
	v.SetDefault("chain.timeout", "15s")
	v.SetDefault("chain.submit_timeout", "20s")
	v.SetDefault("chain.retry_attempts", 3)
	v.SetDefault("chain.retry_backoff", "500ms")
	v.SetDefault("chain.fallback_fee", "0.000005")
	v.SetDefault("settlement.force_close_on_error", true)
	v.SetDefault("claim.submit_timeout", "20s")
	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.batch_size", 100)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
