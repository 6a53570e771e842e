package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Economy  Economy
	Trading  Trading
	Market   Market
	Storage  Storage
	Postgres Postgres
	Telegram Telegram
	Redis    Redis
	API      API
}

type Economy struct {
	StartingBalance float64 `env:"ECONOMY_STARTING_BALANCE" envDefault:"10000"`
	CurrencySymbol  string  `env:"CURRENCY_SYMBOL" envDefault:"$"`
}

type Trading struct {
	FeePercent float64 `env:"TRADING_FEE_PERCENT" envDefault:"0.1"`
	MinimumFee float64 `env:"TRADING_MINIMUM_FEE" envDefault:"1.00"`
}

type Market struct {
	TickInterval        time.Duration `env:"MARKET_TICK_INTERVAL" envDefault:"1s"`
	FluctuationInterval int           `env:"MARKET_FLUCTUATION_INTERVAL" envDefault:"5"`
	EventChance         float64       `env:"MARKET_EVENT_CHANCE" envDefault:"0.02"`
	CleanupEvery        int           `env:"MARKET_CLEANUP_EVERY" envDefault:"3600"`
	FlushEvery          int           `env:"MARKET_FLUSH_EVERY" envDefault:"600"`
	OpenTime            string        `env:"MARKET_OPEN_TIME" envDefault:"09:00"`
	CloseTime           string        `env:"MARKET_CLOSE_TIME" envDefault:"17:00"`
	AutoHours           bool          `env:"MARKET_AUTO_HOURS" envDefault:"false"`
	StartOpen           bool          `env:"MARKET_START_OPEN" envDefault:"true"`
	BroadcastNews       bool          `env:"MARKET_BROADCAST_NEWS" envDefault:"true"`
	SeedDefaults        bool          `env:"MARKET_SEED_DEFAULTS" envDefault:"true"`
}

type Storage struct {
	Driver               string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	HistoryRetentionDays int    `env:"STORAGE_HISTORY_RETENTION_DAYS" envDefault:"90"`
	TransactionsPerUser  int    `env:"STORAGE_TRANSACTIONS_PER_USER" envDefault:"1000"`
}

type Postgres struct {
	Host            string `env:"PG_HOST" envDefault:"localhost"`
	Port            int    `env:"PG_PORT" envDefault:"5432"`
	DbName          string `env:"PG_DB_NAME" envDefault:"stock_market"`
	Password        string `env:"PG_PASSWORD" envDefault:""`
	User            string `env:"PG_USER" envDefault:"postgres"`
	MaxOpenConns    int    `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
	ConnMaxLifetime int    `env:"PG_CONN_MAX_LIFETIME" envDefault:"300"`
	MaxIdleConns    int    `env:"PG_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxIdleTime int    `env:"PG_CONN_MAX_IDLE_TIME" envDefault:"60"`
	MigrationDir    string `env:"PG_MIGRATION_DIR" envDefault:"data/migrations"`
}

type Telegram struct {
	Enabled    bool          `env:"TELEGRAM_ENABLED" envDefault:"false"`
	Token      string        `env:"TELEGRAM_TOKEN" envDefault:""`
	UpdTimeout time.Duration `env:"TELEGRAM_UPD_TIMEOUT" envDefault:"10s"`
	NewsChatID int64         `env:"TELEGRAM_NEWS_CHAT_ID" envDefault:"0"`
	AdminIDs   []int64       `env:"TELEGRAM_ADMIN_IDS" envSeparator:"," envDefault:""`
}

type Redis struct {
	Enabled         bool          `env:"REDIS_ENABLED" envDefault:"false"`
	Host            string        `env:"REDIS_HOST" envDefault:"localhost"`
	Port            int           `env:"REDIS_PORT" envDefault:"6379"`
	Password        string        `env:"REDIS_PASSWORD" envDefault:""`
	DB              int           `env:"REDIS_DB" envDefault:"0"`
	QuoteExpiration time.Duration `env:"REDIS_QUOTE_EXPIRATION" envDefault:"10m"`
	EventsChannel   string        `env:"REDIS_EVENTS_CHANNEL" envDefault:"market:events"`
}

type API struct {
	Debug     bool          `env:"API_DEBUG" envDefault:"false"`
	Timeout   time.Duration `env:"API_TIMEOUT" envDefault:"5s"`
	LedgerApi LedgerApi
}

type LedgerApi struct {
	Enabled bool   `env:"LEDGER_API_ENABLED" envDefault:"false"`
	Url     string `env:"LEDGER_API_URL" envDefault:""`
	Token   string `env:"LEDGER_API_TOKEN" envDefault:""`
}

func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	opts := env.Options{RequiredIfNoDef: true}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}
