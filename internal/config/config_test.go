package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hestonlab/internal/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "SPX", cfg.Source.Symbol)
	assert.Equal(t, 9737, cfg.Source.WRDS.Port)
	assert.False(t, cfg.Source.WRDS.Enabled)
	assert.Equal(t, "iv", cfg.Calibration.Objective)
	assert.Equal(t, "exp", cfg.Calibration.Transform)
	assert.Equal(t, 4, cfg.Calibration.Workers)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "docs/artifacts/manifest.json", cfg.Paths.ManifestPath)
}

func TestLoad_Layers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
source:
  symbol: NDX
  wrds:
    enabled: true
    username: analyst
calibration:
  workers: 2
  objective: price
`), 0644))

	t.Setenv("HESTON_CALIBRATION_WORKERS", "8")
	t.Setenv("HESTON_SOURCE_WRDS_PASSWORD", "secret")
	t.Setenv("HESTON_SERVER_READ_TIMEOUT", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level, "file overrides default")
	assert.Equal(t, "NDX", cfg.Source.Symbol)
	assert.Equal(t, "price", cfg.Calibration.Objective)
	assert.Equal(t, 8, cfg.Calibration.Workers, "env overrides file")
	assert.True(t, cfg.Source.WRDS.Enabled)
	assert.Equal(t, "analyst", cfg.Source.WRDS.Username)
	assert.Equal(t, "secret", cfg.Source.WRDS.Password)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "exp", cfg.Calibration.Transform, "absent keys keep defaults")
}

func TestLoad_DotEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"HESTON_SOURCE_SYMBOL=RUT\nHESTON_CALIBRATION_WORKERS=8\n"), 0644))

	prev := DotEnvFile
	DotEnvFile = envFile
	t.Cleanup(func() {
		DotEnvFile = prev
		os.Unsetenv("HESTON_SOURCE_SYMBOL")
	})
	t.Setenv("HESTON_CALIBRATION_WORKERS", "3")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "RUT", cfg.Source.Symbol)
	assert.Equal(t, 3, cfg.Calibration.Workers, "process env wins over .env")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "SPX", cfg.Source.Symbol)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "bad yaml", body: "logging: [unterminated"},
		{name: "bad objective", body: "calibration:\n  objective: vega\n"},
		{name: "bad env", env: map[string]string{"HESTON_SERVER_PORT": "not-a-number"}},
		{name: "sheets without id", env: map[string]string{"HESTON_SHEETS_ENABLED": "true"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.body != "" {
				path = filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"workers zero", func(c *Config) { c.Calibration.Workers = 0 }, true},
		{"bad transform", func(c *Config) { c.Calibration.Transform = "tanh" }, true},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
		{"file output needs path", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, true},
		{"stdout needs no path", func(c *Config) { c.Logging.FilePath = "" }, false},
		{"sample ratio above one", func(c *Config) { c.Telemetry.SampleRatio = 1.5 }, true},
		{"sheets configured", func(c *Config) {
			c.Sheets.Enabled = true
			c.Sheets.SpreadsheetID = "abc"
			c.Sheets.CredentialsFile = "credentials.json"
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolvePaths(t *testing.T) {
	base := t.TempDir()
	cfg := Default().Paths
	cfg.LocalRoot = "/mnt/optionm"

	paths, err := ResolvePaths(base, cfg)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "docs", "artifacts", "wrds"), paths.OutputDir)
	assert.Equal(t, filepath.Join(base, "docs", "artifacts", "wrds", "per_date"), paths.PerDateDir)
	assert.Equal(t, "/mnt/optionm", paths.LocalRoot)
	assert.Equal(t, filepath.Join(base, "data", "cache"), paths.CacheDir)

	day := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	dir := paths.DateDir(day)
	assert.Equal(t, filepath.Join(paths.PerDateDir, "2024-06-14"), dir)
	assert.Equal(t, filepath.Join(dir, "spx_2024-06-14_surface.csv"), paths.SurfacePath(dir, "SPX", day))
	assert.Equal(t, "docs/artifacts/wrds/per_date/2024-06-14", paths.Relative(dir))
	assert.Equal(t, "/mnt/optionm", paths.Relative("/mnt/optionm"))

	require.NoError(t, paths.EnsureDirectories())
	assert.DirExists(t, paths.PerDateDir)
	assert.DirExists(t, paths.CacheDir)
}
