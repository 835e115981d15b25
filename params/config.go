package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Storage struct {
	DataDir         string
	SeriesDBPath    string // Pebble database for series and member orders
	BalanceDBPath   string // Pebble database for meter balances
	FillJournalPath string // Append-only fill journal (JSON lines)
}

type API struct {
	Addr           string
	AllowedOrigins []string
}

type Oracle struct {
	// FeedURL points at the external price-feed/time-lock provider.
	// Empty means run against the built-in simulated provider (devnet).
	FeedURL string
	// Ref is the price feed reference queried for price-ceiling checks.
	Ref string
	// MinInterval is the fixed minimum spacing between eligible executions
	// of one series. The time gate opens when now - lastExecution >= MinInterval.
	MinInterval time.Duration
	// RequestTimeout bounds every provider call. A call exceeding it resolves
	// to oracle-unavailable, never a hung resolver pass.
	RequestTimeout time.Duration
	// MaxStale rejects feed answers older than this as unavailable.
	MaxStale time.Duration
}

type Resolver struct {
	// PollInterval is the resolver pass cadence. It is independent of
	// Oracle.MinInterval; polling faster than the gate is a no-op.
	PollInterval time.Duration
}

type Config struct {
	Storage  Storage
	API      API
	Oracle   Oracle
	Resolver Resolver
	LogFile  string
}

func Default() Config {
	return Config{
		Storage: Storage{
			DataDir:         "data",
			SeriesDBPath:    "data/series.db",
			BalanceDBPath:   "data/balances.db",
			FillJournalPath: "data/fills.log",
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Oracle: Oracle{
			FeedURL:        "",
			Ref:            "ETH-USD",
			MinInterval:    24 * time.Hour,
			RequestTimeout: 5 * time.Second,
			MaxStale:       time.Hour,
		},
		Resolver: Resolver{
			PollInterval: 15 * time.Second,
		},
		LogFile: "data/wattd.log",
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
		cfg.Storage.SeriesDBPath = v + "/series.db"
		cfg.Storage.BalanceDBPath = v + "/balances.db"
		cfg.Storage.FillJournalPath = v + "/fills.log"
		cfg.LogFile = v + "/wattd.log"
	}
	if v := os.Getenv("SERIES_DB_PATH"); v != "" {
		cfg.Storage.SeriesDBPath = v
	}
	if v := os.Getenv("BALANCE_DB_PATH"); v != "" {
		cfg.Storage.BalanceDBPath = v
	}
	if v := os.Getenv("FILL_JOURNAL_PATH"); v != "" {
		cfg.Storage.FillJournalPath = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}

	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("API_ALLOWED_ORIGINS"); v != "" {
		cfg.API.AllowedOrigins = strings.Split(v, ",")
	}

	if v := os.Getenv("ORACLE_FEED_URL"); v != "" {
		cfg.Oracle.FeedURL = v
	}
	if v := os.Getenv("ORACLE_REF"); v != "" {
		cfg.Oracle.Ref = v
	}
	if d := envDurationMS("ORACLE_MIN_INTERVAL_MS"); d > 0 {
		cfg.Oracle.MinInterval = d
	}
	if d := envDurationMS("ORACLE_TIMEOUT_MS"); d > 0 {
		cfg.Oracle.RequestTimeout = d
	}
	if d := envDurationMS("ORACLE_MAX_STALE_MS"); d > 0 {
		cfg.Oracle.MaxStale = d
	}

	if d := envDurationMS("RESOLVER_POLL_INTERVAL_MS"); d > 0 {
		cfg.Resolver.PollInterval = d
	}

	return cfg
}

// envDurationMS reads an integer-millisecond env var, 0 when unset or invalid.
func envDurationMS(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
