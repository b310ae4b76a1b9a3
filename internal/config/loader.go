package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ErrorType classifies a configuration failure.
type ErrorType string

const (
	ErrFile       ErrorType = "file"
	ErrParsing    ErrorType = "parsing"
	ErrValidation ErrorType = "validation"
)

// Error is returned by Load.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: [%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("config: [%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Load builds the configuration in layers:
//  1. Defaults.
//  2. A .env file in the working directory, if present. It never overrides
//     variables already set in the environment.
//  3. The YAML file at path, if path is non-empty. ${VAR} references are
//     expanded before parsing.
//  4. TERRAVISION_* environment variables, e.g. TERRAVISION_MODEL_API_KEY.
//  5. Struct validation.
func Load(path string, opts ...LoadOption) (*Config, error) {
	var lo loadOptions
	for _, o := range opts {
		o(&lo)
	}

	_ = godotenv.Load()

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is operator-provided configuration
		if err != nil {
			msg := "read config file"
			if errors.Is(err, fs.ErrNotExist) {
				msg = "config file not found"
			}
			return nil, &Error{Type: ErrFile, Message: msg, Err: err}
		}

		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return nil, &Error{Type: ErrParsing, Message: "parse " + path, Err: err}
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, &Error{Type: ErrParsing, Message: "process environment", Err: err}
	}

	validate := Validate
	if lo.skipModel {
		validate = validateTools
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOption adjusts Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	skipModel bool
}

// SkipModel leaves the model section unvalidated, for binaries that serve
// the tools without talking to a language model.
func SkipModel() LoadOption {
	return func(o *loadOptions) { o.skipModel = true }
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return &Error{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}
	return nil
}

func validateTools(cfg *Config) error {
	if err := validator.New().StructExcept(cfg, "Model"); err != nil {
		return &Error{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}
	return nil
}
