// Package config loads and validates the application configuration.
// Values are resolved in order of increasing precedence: built-in
// defaults, a JSON config file, command-line flags, environment
// variables (with .env support via godotenv).
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the bookmarkd server.
type Config struct {
	RunAddr             string        `env:"SERVER_ADDRESS" json:"server_address" validate:"hostname_port"`
	LogLevel            string        `env:"LOG_LEVEL" json:"log_level" validate:"loglevel"`
	BackendAddr         string        `env:"BACKEND_ADDRESS" json:"backend_address" validate:"omitempty,url"`
	BackendKey          string        `env:"BACKEND_KEY" json:"backend_key"`
	DatabaseDSN         string        `env:"DATABASE_DSN" json:"database_dsn"`
	AuthCookieName      string        `env:"AUTH_COOKIE_NAME" json:"auth_cookie_name"`
	SessionSecret       string        `env:"SESSION_SECRET" json:"session_secret"`
	DBConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT" json:"db_connection_timeout"`
	ConfigFile          string        `env:"CONFIG" json:"-"`
}

var defaultConfig = Config{
	RunAddr:             ":8080",
	LogLevel:            "info",
	BackendAddr:         "",
	BackendKey:          "",
	DatabaseDSN:         "",
	AuthCookieName:      "bookmarkd-session",
	SessionSecret:       "c2Vzc2lvbi1zaWduaW5nLWtleS1jaGFuZ2UtbWU=",
	DBConnectionTimeout: 10 * time.Second,
}

// ErrBackendNotConfigured is returned when the managed backend address
// or public API key is missing. Every backend-dependent code path is
// unusable without them, so startup fails instead.
var ErrBackendNotConfigured = errors.New("BACKEND_ADDRESS and BACKEND_KEY must be set")

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warning": true,
		"error":   true,
		"fatal":   true,
	}

	return allowedLogLevels[value]
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.BackendAddr == "" || c.BackendKey == "" {
		return ErrBackendNotConfigured
	}

	return nil
}

func applyDefaults(target *Config, defaults Config) {
	*target = defaults
}

func (c *Config) applyJSONFile() error {
	if c.ConfigFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.ConfigFile)
	if err != nil {
		return err
	}

	fromFile := Config{}
	if err := json.Unmarshal(data, &fromFile); err != nil {
		return err
	}

	// The file only fills fields still holding their built-in default;
	// flags and environment always win over the file.
	if c.RunAddr == defaultConfig.RunAddr && fromFile.RunAddr != "" {
		c.RunAddr = fromFile.RunAddr
	}
	if c.LogLevel == defaultConfig.LogLevel && fromFile.LogLevel != "" {
		c.LogLevel = fromFile.LogLevel
	}
	if c.BackendAddr == "" && fromFile.BackendAddr != "" {
		c.BackendAddr = fromFile.BackendAddr
	}
	if c.BackendKey == "" && fromFile.BackendKey != "" {
		c.BackendKey = fromFile.BackendKey
	}
	if c.DatabaseDSN == "" && fromFile.DatabaseDSN != "" {
		c.DatabaseDSN = fromFile.DatabaseDSN
	}
	if c.AuthCookieName == defaultConfig.AuthCookieName && fromFile.AuthCookieName != "" {
		c.AuthCookieName = fromFile.AuthCookieName
	}
	if c.SessionSecret == defaultConfig.SessionSecret && fromFile.SessionSecret != "" {
		c.SessionSecret = fromFile.SessionSecret
	}
	if c.DBConnectionTimeout == defaultConfig.DBConnectionTimeout && fromFile.DBConnectionTimeout != 0 {
		c.DBConnectionTimeout = fromFile.DBConnectionTimeout
	}

	return nil
}

// InitOption customizes New.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing disables command-line flag parsing, which is
// needed when New is called from tests.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// New resolves the full configuration and validates it.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	err := godotenv.Load()
	if err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	if !options.disableFlagsParsing {
		flag.StringVar(&values.RunAddr, "a", values.RunAddr, "address and port to run server")
		flag.StringVar(&values.LogLevel, "l", values.LogLevel, "logger level")
		flag.StringVar(&values.BackendAddr, "b", values.BackendAddr, "base URL of the managed backend")
		flag.StringVar(&values.BackendKey, "k", values.BackendKey, "public API key of the managed backend")
		flag.StringVar(&values.DatabaseDSN, "d", values.DatabaseDSN, "database connection string for direct-postgres mode")
		flag.StringVar(&values.ConfigFile, "c", values.ConfigFile, "path to a JSON config file")
		flag.Parse()
	}

	valuesFromEnv := Config{}
	if err := env.Parse(&valuesFromEnv); err != nil {
		return nil, err
	}

	if valuesFromEnv.RunAddr != "" {
		values.RunAddr = valuesFromEnv.RunAddr
	}
	if valuesFromEnv.LogLevel != "" {
		values.LogLevel = valuesFromEnv.LogLevel
	}
	if valuesFromEnv.BackendAddr != "" {
		values.BackendAddr = valuesFromEnv.BackendAddr
	}
	if valuesFromEnv.BackendKey != "" {
		values.BackendKey = valuesFromEnv.BackendKey
	}
	if valuesFromEnv.DatabaseDSN != "" {
		values.DatabaseDSN = valuesFromEnv.DatabaseDSN
	}
	if valuesFromEnv.AuthCookieName != "" {
		values.AuthCookieName = valuesFromEnv.AuthCookieName
	}
	if valuesFromEnv.SessionSecret != "" {
		values.SessionSecret = valuesFromEnv.SessionSecret
	}
	if valuesFromEnv.DBConnectionTimeout != 0 {
		values.DBConnectionTimeout = valuesFromEnv.DBConnectionTimeout
	}
	if valuesFromEnv.ConfigFile != "" {
		values.ConfigFile = valuesFromEnv.ConfigFile
	}

	if err := values.applyJSONFile(); err != nil {
		return nil, err
	}

	if err := values.validate(); err != nil {
		return nil, err
	}

	return values, nil
}
