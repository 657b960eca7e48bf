// Package config loads and validates hestonlab settings.
//
// # Configuration Sources
//
// Configuration is layered, later sources overriding earlier ones:
//
//	1. Default() values
//	2. An optional YAML file (keys absent from the file keep their defaults)
//	3. Environment variables with the HESTON_ prefix
//
// # Environment Variables
//
// Variable names are built from the section and field tags:
//
//	HESTON_LOGGING_LEVEL=debug
//	HESTON_PATHS_OUTPUT_DIR=/data/artifacts/wrds
//	HESTON_SOURCE_WRDS_ENABLED=true
//	HESTON_SOURCE_WRDS_USERNAME=analyst
//	HESTON_SOURCE_REDIS_ADDR=localhost:6379
//	HESTON_CALIBRATION_WORKERS=8
//	HESTON_SHEETS_ENABLED=true
//
// # Path Management
//
// ResolvePaths turns PathsConfig into absolute locations and owns the
// artifact layout:
//
//	paths, _ := config.ResolvePaths("", cfg.Paths)
//	dir := paths.DateDir(tradeDate)
//	surface := paths.SurfacePath(dir, "SPX", tradeDate)
//
// # Validation
//
// Struct tags are checked with go-playground/validator. Failures are
// returned as CONFIG errors.
package config
