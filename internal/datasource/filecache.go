package datasource

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"hestonlab/internal/surface"
)

// CacheMeta is the JSON sidecar written next to each cached CSV.
type CacheMeta struct {
	Symbol    string   `json:"symbol"`
	TradeDate string   `json:"trade_date"`
	Rows      int      `json:"rows"`
	Columns   []string `json:"columns"`
	Source    string   `json:"source"`
	CreatedAt string   `json:"created_at"`
	Checksum  string   `json:"checksum"`
}

// FileCache keeps quote pulls under <dir>/optionm/<SYMBOL>/<year>/.
type FileCache struct {
	Dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewFileCache returns a cache rooted at dir. An empty dir disables it.
func NewFileCache(dir string, logger *slog.Logger) *FileCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileCache{Dir: dir, logger: logger, now: time.Now}
}

func (c *FileCache) Name() string { return "file" }

// Path returns the CSV location for a symbol and date.
func (c *FileCache) Path(symbol string, tradeDate time.Time) string {
	return filepath.Join(c.Dir, "optionm", upper(symbol), strconv.Itoa(tradeDate.Year()),
		fmt.Sprintf("%s_%s.csv", lower(symbol), dateKey(tradeDate)))
}

// MetaPath returns the sidecar location for a cache CSV.
func MetaPath(csvPath string) string {
	return strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + ".json"
}

// Checksum returns the hex BLAKE2b-256 digest of data.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached quotes. Unreadable or corrupted entries are logged
// and reported as a miss so the chain can refetch them.
func (c *FileCache) Get(ctx context.Context, symbol string, tradeDate time.Time) ([]surface.Quote, bool, error) {
	if c.Dir == "" {
		return nil, false, nil
	}
	path := c.Path(symbol, tradeDate)
	body, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		c.logger.WarnContext(ctx, "cache read failed", slog.String("path", path), slog.String("error", err.Error()))
		return nil, false, nil
	}

	if metaBody, err := os.ReadFile(MetaPath(path)); err == nil {
		var meta CacheMeta
		if err := json.Unmarshal(metaBody, &meta); err != nil {
			c.logger.WarnContext(ctx, "cache metadata unreadable", slog.String("path", path), slog.String("error", err.Error()))
			return nil, false, nil
		}
		if meta.Checksum != "" && meta.Checksum != Checksum(body) {
			c.logger.WarnContext(ctx, "cache checksum mismatch",
				slog.String("path", path),
				slog.String("expected", meta.Checksum))
			return nil, false, nil
		}
	}

	quotes, err := ReadQuotes(bytes.NewReader(body))
	if err != nil {
		c.logger.WarnContext(ctx, "cache decode failed", slog.String("path", path), slog.String("error", err.Error()))
		return nil, false, nil
	}
	if len(quotes) == 0 {
		return nil, false, nil
	}
	standardizeQuoteDate(quotes, tradeDate)
	return quotes, true, nil
}

// Put writes quotes and their sidecar. Files are written to a temporary name
// and renamed so readers never observe a partial entry.
func (c *FileCache) Put(ctx context.Context, symbol string, tradeDate time.Time, quotes []surface.Quote, source string) error {
	if c.Dir == "" {
		return nil
	}
	path := c.Path(symbol, tradeDate)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	var buf bytes.Buffer
	if err := WriteQuotes(&buf, quotes); err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	meta := CacheMeta{
		Symbol:    upper(symbol),
		TradeDate: dateKey(tradeDate),
		Rows:      len(quotes),
		Columns:   QuoteColumns,
		Source:    source,
		CreatedAt: c.now().UTC().Format(time.RFC3339),
		Checksum:  Checksum(buf.Bytes()),
	}
	metaBody, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache metadata: %w", err)
	}

	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return err
	}
	if err := writeAtomic(MetaPath(path), append(metaBody, '\n')); err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "cache entry written",
		slog.String("path", path),
		slog.Int("rows", len(quotes)),
		slog.String("source", source))
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}
