package engine

import (
	"errors"
	"fmt"
	"time"
)

// Default values applied by Config.withDefaults.
const (
	DefaultRequestTimeout = 60 * time.Second
	DefaultToolTimeout    = 30 * time.Second
	DefaultImageryURL     = "https://sh.dataspace.copernicus.eu"
	DefaultTokenURL       = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"
	DefaultCollection     = "sentinel-2-l2a"
)

// Config is the engine configuration.
type Config struct {
	Model    ModelConfig
	Agent    AgentConfig
	Geocoder GeocoderConfig
	Imagery  ImageryConfig
}

// ModelConfig selects and configures the model provider.
type ModelConfig struct {
	Kind        string // anthropic, openai, grok or gemini.
	Name        string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// AgentConfig holds loop settings.
type AgentConfig struct {
	MaxSteps       int
	RequestTimeout time.Duration
	ToolTimeout    time.Duration
	StrictOrdering bool
	MaxCloudCover  float64
}

// GeocoderConfig configures the place-name lookup service.
type GeocoderConfig struct {
	BaseURL   string
	UserAgent string
}

// ImageryConfig configures the satellite imagery services and their OAuth
// client credentials.
type ImageryConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Collection   string
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Model.Kind == "" {
		return errors.New("engine: config: model kind is required")
	}
	if _, ok := getFactory(c.Model.Kind); !ok {
		return fmt.Errorf("engine: config: unknown model kind %q", c.Model.Kind)
	}
	if c.Model.Name == "" {
		return errors.New("engine: config: model name is required")
	}
	if c.Agent.MaxSteps < 0 {
		return fmt.Errorf("engine: config: agent max steps %d is negative", c.Agent.MaxSteps)
	}
	if c.Agent.MaxCloudCover < 0 || c.Agent.MaxCloudCover > 100 {
		return fmt.Errorf("engine: config: agent max cloud cover %g outside [0, 100]", c.Agent.MaxCloudCover)
	}
	if c.Agent.RequestTimeout < 0 || c.Agent.ToolTimeout < 0 {
		return errors.New("engine: config: timeouts must not be negative")
	}

	return nil
}

func (c Config) withDefaults() Config {
	if c.Agent.RequestTimeout == 0 {
		c.Agent.RequestTimeout = DefaultRequestTimeout
	}
	if c.Agent.ToolTimeout == 0 {
		c.Agent.ToolTimeout = DefaultToolTimeout
	}
	if c.Imagery.BaseURL == "" {
		c.Imagery.BaseURL = DefaultImageryURL
	}
	if c.Imagery.TokenURL == "" {
		c.Imagery.TokenURL = DefaultTokenURL
	}
	if c.Imagery.Collection == "" {
		c.Imagery.Collection = DefaultCollection
	}
	return c
}
