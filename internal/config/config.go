package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "hestonlab/internal/errors"
)

// EnvPrefix namespaces every environment variable, e.g. HESTON_CALIBRATION_WORKERS.
const EnvPrefix = "HESTON"

// DotEnvFile is read into the process environment before the env layer.
// Variables already set in the environment win.
var DotEnvFile = ".env"

// Config represents the complete application configuration
type Config struct {
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
	Paths       PathsConfig       `yaml:"paths" envconfig:"PATHS"`
	Source      SourceConfig      `yaml:"source" envconfig:"SOURCE"`
	Calibration CalibrationConfig `yaml:"calibration" envconfig:"CALIBRATION"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" envconfig:"TELEMETRY"`
	Server      ServerConfig      `yaml:"server" envconfig:"SERVER"`
	Sheets      SheetsConfig      `yaml:"sheets" envconfig:"SHEETS"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=stdout file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_unless=Output stdout"`
}

// PathsConfig locates inputs and outputs. Relative paths resolve against the
// working directory.
type PathsConfig struct {
	OutputDir    string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
	LocalRoot    string `yaml:"local_root" envconfig:"LOCAL_ROOT"`
	CacheDir     string `yaml:"cache_dir" envconfig:"CACHE_DIR"`
	SampleFile   string `yaml:"sample_file" envconfig:"SAMPLE_FILE" validate:"required"`
	ManifestPath string `yaml:"manifest_path" envconfig:"MANIFEST_PATH" validate:"required"`
	DatesetFile  string `yaml:"dateset_file" envconfig:"DATESET_FILE"`
}

// SourceConfig selects and tunes the quote sources.
type SourceConfig struct {
	Symbol      string      `yaml:"symbol" envconfig:"SYMBOL" validate:"required"`
	ForceSample bool        `yaml:"force_sample" envconfig:"FORCE_SAMPLE"`
	WRDS        WRDSConfig  `yaml:"wrds" envconfig:"WRDS"`
	Redis       RedisConfig `yaml:"redis" envconfig:"REDIS"`
}

// WRDSConfig holds the OptionMetrics connection.
type WRDSConfig struct {
	Enabled       bool          `yaml:"enabled" envconfig:"ENABLED"`
	DSN           string        `yaml:"dsn" envconfig:"DSN"`
	Host          string        `yaml:"host" envconfig:"HOST" validate:"required"`
	Port          int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	Username      string        `yaml:"username" envconfig:"USERNAME"`
	Password      string        `yaml:"password" envconfig:"PASSWORD"`
	RatePerSecond float64       `yaml:"rate_per_second" envconfig:"RATE_PER_SECOND" validate:"gte=0"`
	Burst         int           `yaml:"burst" envconfig:"BURST" validate:"gte=1"`
	QueryTimeout  time.Duration `yaml:"query_timeout" envconfig:"QUERY_TIMEOUT" validate:"gt=0"`
}

// RedisConfig enables the shared cache tier when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr" envconfig:"ADDR"`
	Password string        `yaml:"password" envconfig:"PASSWORD"`
	DB       int           `yaml:"db" envconfig:"DB" validate:"gte=0"`
	TTL      time.Duration `yaml:"ttl" envconfig:"TTL" validate:"gte=0"`
}

// CalibrationConfig tunes the fit and the batch runner.
type CalibrationConfig struct {
	Fast           bool    `yaml:"fast" envconfig:"FAST"`
	Objective      string  `yaml:"objective" envconfig:"OBJECTIVE" validate:"oneof=iv price"`
	Transform      string  `yaml:"transform" envconfig:"TRANSFORM" validate:"oneof=none exp sigmoid"`
	FellerPenalty  float64 `yaml:"feller_penalty" envconfig:"FELLER_PENALTY" validate:"gte=0"`
	RhoPenalty     float64 `yaml:"rho_penalty" envconfig:"RHO_PENALTY" validate:"gte=0"`
	Workers        int     `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=64"`
	DatesetWorkers int     `yaml:"dateset_workers" envconfig:"DATESET_WORKERS" validate:"min=1,max=16"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	EnableTracing  bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	EnableMetrics  bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" validate:"gte=0"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" validate:"gte=0"`
}

// SheetsConfig controls publishing the comparison table to Google Sheets.
type SheetsConfig struct {
	Enabled         bool   `yaml:"enabled" envconfig:"ENABLED"`
	SpreadsheetID   string `yaml:"spreadsheet_id" envconfig:"SPREADSHEET_ID" validate:"required_if=Enabled true"`
	CredentialsFile string `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE" validate:"required_if=Enabled true"`
	SheetName       string `yaml:"sheet_name" envconfig:"SHEET_NAME"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "logs/hestonlab.log",
		},
		Paths: PathsConfig{
			OutputDir:    "docs/artifacts/wrds",
			CacheDir:     "data/cache",
			SampleFile:   "data/sample/spx_options_sample.csv",
			ManifestPath: "docs/artifacts/manifest.json",
			DatesetFile:  "config/dateset.yaml",
		},
		Source: SourceConfig{
			Symbol: "SPX",
			WRDS: WRDSConfig{
				Host:          "wrds-pgdata.wharton.upenn.edu",
				Port:          9737,
				RatePerSecond: 2,
				Burst:         1,
				QueryTimeout:  60 * time.Second,
			},
			Redis: RedisConfig{
				TTL: 7 * 24 * time.Hour,
			},
		},
		Calibration: CalibrationConfig{
			Objective:      "iv",
			Transform:      "exp",
			FellerPenalty:  1,
			RhoPenalty:     1,
			Workers:        4,
			DatesetWorkers: 1,
		},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			EnableTracing:  false,
			EnableMetrics:  true,
			TraceExporter:  "stdout",
			MetricExporter: "prometheus",
			SampleRatio:    1,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitRPS:    20,
			RateLimitBurst:  10,
		},
		Sheets: SheetsConfig{
			SheetName: "comparison",
		},
	}
}

// Load builds the configuration in three layers: Default(), then the YAML
// file at path (skipped when path is empty or absent), then HESTON_*
// environment variables, with DotEnvFile merged into the environment first.
// The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg. Keys missing from the file
// keep their current values.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return apperrors.NewConfigError("failed to read config file", err).WithContext("path", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return apperrors.NewConfigError("failed to parse config file", err).WithContext("path", path)
	}
	return nil
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return apperrors.NewConfigError("failed to load env file", err).WithContext("path", path)
	}
	return nil
}

var validate = validator.New()

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.NewConfigError(fmt.Sprintf("config validation failed: %v", err), err)
	}
	return nil
}
