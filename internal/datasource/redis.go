package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"hestonlab/internal/surface"
)

// RedisConfig holds the optional redis tier settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// DefaultRedisConfig returns a disabled tier with a one week TTL.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		TTL:    7 * 24 * time.Hour,
		Prefix: "hestonlab:quotes:",
	}
}

// redisEntry is the JSON value stored per key. Rows reuse the CSV cell
// encoding so missing values survive the round trip.
type redisEntry struct {
	Symbol    string     `json:"symbol"`
	TradeDate string     `json:"trade_date"`
	Source    string     `json:"source"`
	CachedAt  time.Time  `json:"cached_at"`
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
}

// RedisCache is a shared cache tier in front of WRDS.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisCache connects to cfg.Addr.
func NewRedisCache(cfg RedisConfig, logger *slog.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})
	return NewRedisCacheWithClient(client, cfg, logger)
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, cfg RedisConfig, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisConfig().Prefix
	}
	return &RedisCache{client: client, ttl: cfg.TTL, prefix: cfg.Prefix, logger: logger, now: time.Now}
}

func (c *RedisCache) Name() string { return "redis" }

// Key returns the redis key for a symbol and date.
func (c *RedisCache) Key(symbol string, tradeDate time.Time) string {
	return c.prefix + upper(symbol) + ":" + dateKey(tradeDate)
}

// Get returns the cached quotes; redis.Nil is a miss.
func (c *RedisCache) Get(ctx context.Context, symbol string, tradeDate time.Time) ([]surface.Quote, bool, error) {
	value, err := c.client.Get(ctx, c.Key(symbol, tradeDate)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var entry redisEntry
	if err := json.Unmarshal(value, &entry); err != nil {
		c.logger.WarnContext(ctx, "redis entry unreadable",
			slog.String("key", c.Key(symbol, tradeDate)),
			slog.String("error", err.Error()))
		return nil, false, nil
	}
	quotes, err := decodeRecords(entry.Columns, entry.Rows, readOptions{StrikeScale: 1})
	if err != nil {
		return nil, false, fmt.Errorf("redis entry decode failed: %w", err)
	}
	if len(quotes) == 0 {
		return nil, false, nil
	}
	standardizeQuoteDate(quotes, tradeDate)
	return quotes, true, nil
}

// Put stores quotes with the configured TTL.
func (c *RedisCache) Put(ctx context.Context, symbol string, tradeDate time.Time, quotes []surface.Quote, source string) error {
	entry := redisEntry{
		Symbol:    upper(symbol),
		TradeDate: dateKey(tradeDate),
		Source:    source,
		CachedAt:  c.now().UTC(),
		Columns:   QuoteColumns,
		Rows:      quoteRecords(quotes),
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode redis entry: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(symbol, tradeDate), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Close releases the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
