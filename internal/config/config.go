// Package config loads the service configuration from an optional YAML file,
// a .env file and TERRAVISION_* environment variables, and validates it.
package config

import (
	"io"
	"log/slog"
	"time"

	"github.com/Berektassuly/terra-vision-ai/pkg/engine"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "TERRAVISION"

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Log       LogConfig       `yaml:"log" envconfig:"LOG"`
	Model     ModelConfig     `yaml:"model" envconfig:"MODEL"`
	Agent     AgentConfig     `yaml:"agent" envconfig:"AGENT"`
	Geocoder  GeocoderConfig  `yaml:"geocoder" envconfig:"GEOCODER"`
	Imagery   ImageryConfig   `yaml:"imagery" envconfig:"IMAGERY"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig holds the HTTP listener settings. WriteTimeout stays zero by
// default so long event streams are not cut off.
type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" validate:"gt=0"`
}

// LogConfig selects the log level and handler format.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
}

// ModelConfig selects the language model.
type ModelConfig struct {
	Kind        string  `yaml:"kind" envconfig:"KIND" validate:"required,oneof=anthropic openai grok gemini"`
	Name        string  `yaml:"name" envconfig:"NAME" validate:"required"`
	APIKey      Secret  `yaml:"api_key" envconfig:"API_KEY" validate:"required"`
	BaseURL     string  `yaml:"base_url" envconfig:"BASE_URL" validate:"omitempty,url"`
	MaxTokens   int     `yaml:"max_tokens" envconfig:"MAX_TOKENS" validate:"gte=0"`
	Temperature float64 `yaml:"temperature" envconfig:"TEMPERATURE" validate:"gte=0,lte=2"`
}

// AgentConfig holds the conversation loop settings.
type AgentConfig struct {
	MaxSteps       int           `yaml:"max_steps" envconfig:"MAX_STEPS" validate:"gte=1,lte=20"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
	ToolTimeout    time.Duration `yaml:"tool_timeout" envconfig:"TOOL_TIMEOUT" validate:"gt=0"`
	StrictOrdering bool          `yaml:"strict_ordering" envconfig:"STRICT_ORDERING"`
	MaxCloudCover  float64       `yaml:"max_cloud_cover" envconfig:"MAX_CLOUD_COVER" validate:"gt=0,lte=100"`
}

// GeocoderConfig configures place-name lookups.
type GeocoderConfig struct {
	BaseURL   string `yaml:"base_url" envconfig:"BASE_URL" validate:"required,url"`
	UserAgent string `yaml:"user_agent" envconfig:"USER_AGENT" validate:"required"`
}

// ImageryConfig configures the imagery services and their credentials.
type ImageryConfig struct {
	BaseURL      string `yaml:"base_url" envconfig:"BASE_URL" validate:"required,url"`
	TokenURL     string `yaml:"token_url" envconfig:"TOKEN_URL" validate:"required,url"`
	ClientID     string `yaml:"client_id" envconfig:"CLIENT_ID" validate:"required"`
	ClientSecret Secret `yaml:"client_secret" envconfig:"CLIENT_SECRET" validate:"required"`
	Collection   string `yaml:"collection" envconfig:"COLLECTION" validate:"required"`
}

// TelemetryConfig configures the OTLP exporters. An empty endpoint disables
// export.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" envconfig:"ENDPOINT"`
	Insecure    bool   `yaml:"insecure" envconfig:"INSECURE"`
	ServiceName string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Model: ModelConfig{
			Kind: "anthropic",
			Name: "claude-sonnet-4-5",
		},
		Agent: AgentConfig{
			MaxSteps:       5,
			RequestTimeout: engine.DefaultRequestTimeout,
			ToolTimeout:    engine.DefaultToolTimeout,
			MaxCloudCover:  20,
		},
		Geocoder: GeocoderConfig{
			BaseURL:   "https://nominatim.openstreetmap.org",
			UserAgent: "terra-vision-ai/1.0",
		},
		Imagery: ImageryConfig{
			BaseURL:    engine.DefaultImageryURL,
			TokenURL:   engine.DefaultTokenURL,
			Collection: engine.DefaultCollection,
		},
		Telemetry: TelemetryConfig{ServiceName: "terravision"},
	}
}

// Engine converts the configuration into the engine's settings.
func (c Config) Engine() engine.Config {
	return engine.Config{
		Model: engine.ModelConfig{
			Kind:        c.Model.Kind,
			Name:        c.Model.Name,
			APIKey:      c.Model.APIKey.Unmask(),
			BaseURL:     c.Model.BaseURL,
			MaxTokens:   c.Model.MaxTokens,
			Temperature: c.Model.Temperature,
		},
		Agent: engine.AgentConfig{
			MaxSteps:       c.Agent.MaxSteps,
			RequestTimeout: c.Agent.RequestTimeout,
			ToolTimeout:    c.Agent.ToolTimeout,
			StrictOrdering: c.Agent.StrictOrdering,
			MaxCloudCover:  c.Agent.MaxCloudCover,
		},
		Geocoder: engine.GeocoderConfig{
			BaseURL:   c.Geocoder.BaseURL,
			UserAgent: c.Geocoder.UserAgent,
		},
		Imagery: engine.ImageryConfig{
			BaseURL:      c.Imagery.BaseURL,
			TokenURL:     c.Imagery.TokenURL,
			ClientID:     c.Imagery.ClientID,
			ClientSecret: c.Imagery.ClientSecret.Unmask(),
			Collection:   c.Imagery.Collection,
		},
	}
}

// Logger builds the process logger: JSON or text, at the configured level.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch c.Level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
