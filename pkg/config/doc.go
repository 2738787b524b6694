// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11:
// the default `.env` file is read once per process (a missing file is not
// an error), then the environment is parsed into a struct using field tags.
// Each configuration type is parsed once and cached by its type name.
//
// # Usage
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//	    log.Fatalf("parsing env: %v", err)
//	}
//
// Extra env files can be loaded before parsing with LoadEnv. Tests that
// mutate the environment call Reset to drop cached values.
//
// # Errors
//
//   - ErrParsingConfig: env vars could not be parsed into the struct.
//   - ErrLoadingEnvFile: an explicitly requested env file failed to load.
//   - ErrNilPointer: nil pointer passed to Load or MustLoad.
package config
