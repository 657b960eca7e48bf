package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DateLayout is used in every dated directory and file name.
const DateLayout = "2006-01-02"

// Paths holds absolute locations derived from PathsConfig.
// This is the single place that knows the artifact layout.
type Paths struct {
	BaseDir      string
	OutputDir    string
	PerDateDir   string
	LocalRoot    string
	CacheDir     string
	SampleFile   string
	ManifestPath string
	DatesetFile  string
}

// ResolvePaths makes every configured path absolute against base. An empty
// base means the working directory.
func ResolvePaths(base string, cfg PathsConfig) (*Paths, error) {
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		base = wd
	}
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	out := abs(cfg.OutputDir)
	return &Paths{
		BaseDir:      base,
		OutputDir:    out,
		PerDateDir:   filepath.Join(out, "per_date"),
		LocalRoot:    abs(cfg.LocalRoot),
		CacheDir:     abs(cfg.CacheDir),
		SampleFile:   abs(cfg.SampleFile),
		ManifestPath: abs(cfg.ManifestPath),
		DatesetFile:  abs(cfg.DatesetFile),
	}, nil
}

// EnsureDirectories creates the output tree and the cache directory.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.OutputDir, p.PerDateDir, filepath.Dir(p.ManifestPath)}
	if p.CacheDir != "" {
		dirs = append(dirs, p.CacheDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DateDir returns <output>/per_date/<date>.
func (p *Paths) DateDir(tradeDate time.Time) string {
	return filepath.Join(p.PerDateDir, tradeDate.Format(DateLayout))
}

// SurfacePath returns <date dir>/<symbol>_<date>_surface.csv for the given day.
func (p *Paths) SurfacePath(dir, symbol string, day time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s_surface.csv", strings.ToLower(symbol), day.Format(DateLayout)))
}

// OutputPath returns a file directly under the output directory.
func (p *Paths) OutputPath(name string) string {
	return filepath.Join(p.OutputDir, name)
}

// Relative renders path relative to the base directory when possible, for
// manifests that should not embed machine-specific prefixes.
func (p *Paths) Relative(path string) string {
	rel, err := filepath.Rel(p.BaseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// LogPathResolution logs resolved paths at debug level.
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("Path resolution",
		slog.String("base_dir", p.BaseDir),
		slog.String("output_dir", p.OutputDir),
		slog.String("local_root", p.LocalRoot),
		slog.String("cache_dir", p.CacheDir),
		slog.String("sample_file", p.SampleFile),
		slog.String("manifest", p.ManifestPath))
}
