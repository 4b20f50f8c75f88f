// Package config loads service configuration from environment variables.
// A .env file in the working directory is applied first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultSymbols = "BTCUSDT,ETHUSDT,SOLUSDT,XRPUSDT,BNBUSDT"

// DB holds Postgres connection settings shared by both services.
type DB struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// URL renders the pgx connection string.
func (d DB) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.User, d.Password, d.Host, d.Port, d.Name)
}

// Redis holds broker connection settings shared by both services.
type Redis struct {
	Host     string
	Port     int
	Password string
}

// Addr renders the host:port pair for the go-redis client.
func (r Redis) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Collector configures the market-data collector service.
type Collector struct {
	DB          DB
	Redis       Redis
	MetricsAddr string
	LogLevel    string

	BinanceBaseURL    string
	Symbols           []string
	StartDate         time.Time
	Interval          string
	BatchSize         int
	RetryDelay        time.Duration
	MaxRetries        int
	RealtimeInterval  time.Duration
	UpstreamRateLimit float64

	OrderBookSymbols        []string
	OrderBookLevels         int
	OrderBookUpdateInterval time.Duration
	OrderBookRetryDelay     time.Duration
	OrderBookMaxRetries     int
}

// APIServer configures the query and distribution service.
type APIServer struct {
	DB          DB
	Redis       Redis
	MetricsAddr string
	LogLevel    string

	Host string
	Port int

	PingInterval    time.Duration
	PongTimeout     time.Duration
	CleanupInterval time.Duration
}

// Addr renders the HTTP listen address.
func (c *APIServer) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadCollector reads collector configuration with defaults matching the
// deployed environment. Unparseable values are configuration errors.
func LoadCollector() (*Collector, error) {
	_ = godotenv.Load()

	db, err := loadDB()
	if err != nil {
		return nil, err
	}
	rd, err := loadRedis()
	if err != nil {
		return nil, err
	}

	cfg := &Collector{
		DB:          db,
		Redis:       rd,
		MetricsAddr: getEnv("METRICS_ADDR", ":9101"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		BinanceBaseURL: getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
		Symbols:        getSymbols("SYMBOLS", defaultSymbols),
		Interval:       getEnv("INTERVAL", "1m"),

		OrderBookSymbols: getSymbols("ORDERBOOK_SYMBOLS", defaultSymbols),
	}

	if cfg.StartDate, err = getDate("START_DATE", "2025-01-01"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = getInt("BATCH_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = getSeconds("RETRY_DELAY", 1); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = getInt("MAX_RETRIES", 5); err != nil {
		return nil, err
	}
	if cfg.RealtimeInterval, err = getSeconds("REALTIME_INTERVAL", 0.5); err != nil {
		return nil, err
	}
	if cfg.UpstreamRateLimit, err = getFloat("UPSTREAM_RATE_LIMIT", 20); err != nil {
		return nil, err
	}
	if cfg.OrderBookLevels, err = getInt("ORDERBOOK_LEVELS", 20); err != nil {
		return nil, err
	}
	if cfg.OrderBookUpdateInterval, err = getSeconds("ORDERBOOK_UPDATE_INTERVAL", 1); err != nil {
		return nil, err
	}
	if cfg.OrderBookRetryDelay, err = getSeconds("ORDERBOOK_RETRY_DELAY", 1); err != nil {
		return nil, err
	}
	if cfg.OrderBookMaxRetries, err = getInt("ORDERBOOK_MAX_RETRIES", 3); err != nil {
		return nil, err
	}

	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("config: SYMBOLS must name at least one symbol")
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("config: BATCH_SIZE must be positive, got %d", cfg.BatchSize)
	}
	if cfg.OrderBookLevels < 1 {
		return nil, fmt.Errorf("config: ORDERBOOK_LEVELS must be positive, got %d", cfg.OrderBookLevels)
	}
	return cfg, nil
}

// LoadAPIServer reads API server configuration.
func LoadAPIServer() (*APIServer, error) {
	_ = godotenv.Load()

	db, err := loadDB()
	if err != nil {
		return nil, err
	}
	rd, err := loadRedis()
	if err != nil {
		return nil, err
	}

	cfg := &APIServer{
		DB:          db,
		Redis:       rd,
		MetricsAddr: getEnv("METRICS_ADDR", ":9100"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Host:        getEnv("API_HOST", "0.0.0.0"),
	}

	if cfg.Port, err = getInt("API_PORT", 8000); err != nil {
		return nil, err
	}
	if cfg.PingInterval, err = getSeconds("WEBSOCKET_PING_INTERVAL", 30); err != nil {
		return nil, err
	}
	if cfg.PongTimeout, err = getSeconds("WEBSOCKET_PONG_TIMEOUT", 60); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = getSeconds("WEBSOCKET_CLEANUP_INTERVAL", 120); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDB() (DB, error) {
	port, err := getInt("DB_PORT", 5432)
	if err != nil {
		return DB{}, err
	}
	return DB{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     port,
		Name:     getEnv("DB_NAME", "crypto_data"),
		User:     getEnv("DB_USER", "crypto_user"),
		Password: getEnv("DB_PASSWORD", "crypto_pass"),
	}, nil
}

func loadRedis() (Redis, error) {
	port, err := getInt("REDIS_PORT", 6379)
	if err != nil {
		return Redis{}, err
	}
	return Redis{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     port,
		Password: getEnv("REDIS_PASSWORD", ""),
	}, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a number", key, v)
	}
	return f, nil
}

// getSeconds reads a duration expressed in seconds, fractional values
// allowed (REALTIME_INTERVAL=0.5).
func getSeconds(key string, fallback float64) (time.Duration, error) {
	f, err := getFloat(key, fallback)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, fmt.Errorf("config: %s must not be negative, got %v", key, f)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// getDate reads a UTC calendar date in YYYY-MM-DD form.
func getDate(key, fallback string) (time.Time, error) {
	v := getEnv(key, fallback)
	t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: %s=%q is not a YYYY-MM-DD date", key, v)
	}
	return t, nil
}

// getSymbols splits a comma-separated symbol list, trimming and
// uppercasing each entry.
func getSymbols(key, fallback string) []string {
	parts := strings.Split(getEnv(key, fallback), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
