package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"golang.org/x/time/rate"

	apperrors "hestonlab/internal/errors"
	"hestonlab/internal/pricing"
	"hestonlab/internal/surface"
)

const (
	// WRDSHost, WRDSPort and WRDSDatabase address the WRDS PostgreSQL server.
	WRDSHost     = "wrds-pgdata.wharton.upenn.edu"
	WRDSPort     = 9737
	WRDSDatabase = "wrds"

	optionRowLimit = 6000
)

// WRDSConfig holds connection and throttling settings.
type WRDSConfig struct {
	Enabled      bool
	DSN          string
	Host         string
	Port         int
	Username     string
	Password     string
	QueryTimeout time.Duration
	// RatePerSecond caps query throughput across all loads.
	RatePerSecond float64
	Burst         int
}

// DefaultWRDSConfig returns a disabled configuration pointing at WRDS.
func DefaultWRDSConfig() WRDSConfig {
	return WRDSConfig{
		Host:          WRDSHost,
		Port:          WRDSPort,
		QueryTimeout:  60 * time.Second,
		RatePerSecond: 2,
		Burst:         1,
	}
}

// HasCredentials reports whether the source may be used.
func (c WRDSConfig) HasCredentials() bool {
	return c.Enabled && (c.DSN != "" || (c.Username != "" && c.Password != ""))
}

// ConnectionString returns the DSN, building one from the parts if needed.
func (c WRDSConfig) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + WRDSDatabase,
		RawQuery: "sslmode=require",
	}
	return u.String()
}

// optionRow is one row of optionm.opprcd<YEAR>.
type optionRow struct {
	Date         time.Time       `db:"date"`
	ExDate       time.Time       `db:"exdate"`
	CPFlag       string          `db:"cp_flag"`
	Strike       float64         `db:"strike"`
	BestBid      float64         `db:"best_bid"`
	BestOffer    float64         `db:"best_offer"`
	ForwardPrice sql.NullFloat64 `db:"forward_price"`
}

const secidQuery = `SELECT secid FROM optionm.secnmd WHERE ticker = $1 AND effect_date <= $2 ORDER BY effect_date DESC LIMIT 1`

func optionsQuery(year int) string {
	return fmt.Sprintf(`
		SELECT date, exdate, cp_flag, strike_price / 1000.0 AS strike,
		       best_bid, best_offer, forward_price
		FROM optionm.opprcd%d
		WHERE secid = $1
		  AND date = $2
		  AND cp_flag = 'C'
		  AND best_bid IS NOT NULL
		  AND best_offer IS NOT NULL
		  AND best_bid > 0
		  AND best_offer > best_bid
		LIMIT %d`, year, optionRowLimit)
}

func spotQuery(year int) string {
	return fmt.Sprintf(`SELECT close FROM optionm.secprd%d WHERE secid = $1 AND date = $2 LIMIT 1`, year)
}

// WRDSSource queries OptionMetrics on WRDS.
type WRDSSource struct {
	db      *sqlx.DB
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

// NewWRDSSource opens a connection pool for cfg.
func NewWRDSSource(cfg WRDSConfig, logger *slog.Logger) (*WRDSSource, error) {
	if !cfg.HasCredentials() {
		return nil, apperrors.NewConfigError("WRDS access requires enabled=true and credentials", nil)
	}
	db, err := sqlx.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, apperrors.NewSourceError("failed to open WRDS connection", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewWRDSSourceWithDB(db, cfg, logger), nil
}

// NewWRDSSourceWithDB wraps an existing handle.
func NewWRDSSourceWithDB(db *sqlx.DB, cfg WRDSConfig, logger *slog.Logger) *WRDSSource {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = DefaultWRDSConfig().QueryTimeout
	}
	return &WRDSSource{
		db:      db,
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
		logger:  logger,
	}
}

func (s *WRDSSource) Name() string { return string(ProvenanceWRDS) }

// Load resolves the security id, pulls the day's calls and attaches the
// closing spot. Rate and dividend are fixed at the surface defaults.
func (s *WRDSSource) Load(ctx context.Context, symbol string, tradeDate time.Time) ([]surface.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	date := dateKey(tradeDate)

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var secid int64
	if err := s.db.GetContext(ctx, &secid, secidQuery, upper(symbol), date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewSourceError("No secid found for ticker "+upper(symbol), err).
				WithContext("trade_date", date)
		}
		return nil, apperrors.NewSourceError("secid lookup failed", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var rows []optionRow
	if err := s.db.SelectContext(ctx, &rows, optionsQuery(tradeDate.Year()), secid, date); err != nil {
		return nil, apperrors.NewSourceError(fmt.Sprintf("WRDS table optionm.opprcd%d query failed", tradeDate.Year()), err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	spot, err := s.spot(ctx, secid, tradeDate)
	if err != nil {
		return nil, err
	}

	quotes := make([]surface.Quote, 0, len(rows))
	for _, r := range rows {
		forward := math.NaN()
		if r.ForwardPrice.Valid {
			forward = r.ForwardPrice.Float64
		}
		quotes = append(quotes, surface.Quote{
			TradeDate:     r.Date,
			Expiry:        r.ExDate,
			Right:         pricing.ParseRight(r.CPFlag),
			Strike:        r.Strike,
			Bid:           r.BestBid,
			Ask:           r.BestOffer,
			Spot:          spot,
			UnderlyingBid: math.NaN(),
			UnderlyingAsk: math.NaN(),
			ForwardPrice:  forward,
			Rate:          surface.DefaultRate,
			Dividend:      surface.DefaultDividend,
		})
	}
	standardizeQuoteDate(quotes, tradeDate)
	s.logger.InfoContext(ctx, "WRDS quotes loaded",
		slog.String("symbol", upper(symbol)),
		slog.String("trade_date", date),
		slog.Int64("secid", secid),
		slog.Int("rows", len(quotes)))
	return quotes, nil
}

func (s *WRDSSource) spot(ctx context.Context, secid int64, tradeDate time.Time) (float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	var closePrice sql.NullFloat64
	err := s.db.GetContext(ctx, &closePrice, spotQuery(tradeDate.Year()), secid, dateKey(tradeDate))
	if errors.Is(err, sql.ErrNoRows) {
		return surface.SpotFallback, nil
	}
	if err != nil {
		return 0, apperrors.NewSourceError("spot lookup failed", err)
	}
	if !closePrice.Valid {
		return surface.SpotFallback, nil
	}
	return math.Abs(closePrice.Float64), nil
}

// Close releases the connection pool.
func (s *WRDSSource) Close() error {
	return s.db.Close()
}
