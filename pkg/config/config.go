package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Scheduler struct {
		DailyHour   int `mapstructure:"DAILY_HOUR"`
		DailyMinute int `mapstructure:"DAILY_MINUTE"`
	} `mapstructure:"SCHEDULER"`

	// Business parameter tables. They are read once at startup and frozen
	// into an allocation.Snapshot per batch run, so a run never observes a
	// mid-flight config change.
	Plans           []PlanConfig           `mapstructure:"PLANS"`
	CommissionRates []CommissionRateConfig `mapstructure:"COMMISSION_RATES"`
	Ranks           []RankConfig           `mapstructure:"RANKS"`
}

// PlanConfig maps a subscription plan to its yearly token entitlement, the
// number of downline levels the plan's holder may earn commission on, and
// the stable reference value one accrual event is worth to the fanout.
type PlanConfig struct {
	ID              string `mapstructure:"ID"`
	Name            string `mapstructure:"NAME"`
	YearlyTokens    string `mapstructure:"YEARLY_TOKENS"`
	CommissionDepth int    `mapstructure:"COMMISSION_DEPTH"`
	DailyBaseValue  string `mapstructure:"DAILY_BASE_VALUE"`
}

// CommissionRateConfig assigns one rate to an inclusive level range.
type CommissionRateConfig struct {
	FromLevel int    `mapstructure:"FROM_LEVEL"`
	ToLevel   int    `mapstructure:"TO_LEVEL"`
	Rate      string `mapstructure:"RATE"`
}

// RankConfig is one row of the rank threshold table.
type RankConfig struct {
	Rank      string `mapstructure:"RANK"`
	MinDirect int    `mapstructure:"MIN_DIRECT"`
	MinGroups int    `mapstructure:"MIN_GROUPS"`
	MinDepth  int    `mapstructure:"MIN_DEPTH"`
	Bonus     string `mapstructure:"BONUS"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config file", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	ApplyDefaults(&cfg)

	return &cfg
}

// ApplyDefaults fills the reference configuration for anything the config
// file leaves unset. The amounts are strings so decimal parsing owns the
// precision, not YAML float handling.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Scheduler.DailyHour == 0 && cfg.Scheduler.DailyMinute == 0 {
		cfg.Scheduler.DailyHour = 1 // 01:00, same window the legacy cron used
	}
	if len(cfg.Plans) == 0 {
		cfg.Plans = []PlanConfig{
			{ID: "starter", Name: "Starter Plan", YearlyTokens: "500", CommissionDepth: 1, DailyBaseValue: "0.44"},
			{ID: "vip", Name: "VIP Plan", YearlyTokens: "6900", CommissionDepth: 15, DailyBaseValue: "0.44"},
		}
	}
	if len(cfg.CommissionRates) == 0 {
		cfg.CommissionRates = []CommissionRateConfig{
			{FromLevel: 1, ToLevel: 1, Rate: "0.10"},
			{FromLevel: 2, ToLevel: 6, Rate: "0.05"},
			{FromLevel: 7, ToLevel: 10, Rate: "0.025"},
			{FromLevel: 11, ToLevel: 15, Rate: "0.01"},
		}
	}
	if len(cfg.Ranks) == 0 {
		cfg.Ranks = []RankConfig{
			{Rank: "diamond", MinDirect: 12, MinGroups: 5, MinDepth: 3, Bonus: "14904"},
			{Rank: "platinum", MinDirect: 8, MinGroups: 4, MinDepth: 3, Bonus: "8832"},
			{Rank: "gold", MinDirect: 6, MinGroups: 3, MinDepth: 2, Bonus: "4830"},
			{Rank: "silver", MinDirect: 5, MinGroups: 3, MinDepth: 2, Bonus: "2484"},
			{Rank: "bronze", MinDirect: 5, MinGroups: 2, MinDepth: 1, Bonus: "690"},
		}
	}
}
