package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/Berektassuly/terra-vision-ai/pkg/modeladapter"
	"github.com/Berektassuly/terra-vision-ai/pkg/providers/anthropic"
	"github.com/Berektassuly/terra-vision-ai/pkg/providers/gemini"
	"github.com/Berektassuly/terra-vision-ai/pkg/providers/openai"
)

// ProviderFactory creates a Completer from the model configuration.
type ProviderFactory func(ctx context.Context, cfg modeladapter.Config) (modeladapter.Completer, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories["anthropic"] = newAnthropic
		factories["openai"] = newOpenAI
		factories["grok"] = newGrok
		factories["gemini"] = newGemini
	})
}

// RegisterProvider registers a custom provider factory under the given kind.
// It can be called before New to extend the engine with additional providers.
func RegisterProvider(kind string, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[kind] = factory
}

// getFactory returns the factory for the given kind.
func getFactory(kind string) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[kind]
	return f, ok
}

func newAnthropic(_ context.Context, cfg modeladapter.Config) (modeladapter.Completer, error) {
	return anthropic.New(cfg), nil
}

func newOpenAI(_ context.Context, cfg modeladapter.Config) (modeladapter.Completer, error) {
	return openai.New(cfg), nil
}

func newGrok(_ context.Context, cfg modeladapter.Config) (modeladapter.Completer, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openai.XAIBaseURL
	}
	return openai.New(cfg), nil
}

func newGemini(ctx context.Context, cfg modeladapter.Config) (modeladapter.Completer, error) {
	return gemini.New(ctx, cfg)
}

// buildCompleter creates a Completer using the registered factory for the
// configured kind.
func buildCompleter(ctx context.Context, mc ModelConfig, hc *http.Client) (modeladapter.Completer, error) {
	factory, ok := getFactory(mc.Kind)
	if !ok {
		return nil, fmt.Errorf("engine: unknown model kind %q", mc.Kind)
	}

	c, err := factory(ctx, modeladapter.Config{
		Name:        mc.Name,
		APIKey:      mc.APIKey,
		BaseURL:     mc.BaseURL,
		MaxTokens:   mc.MaxTokens,
		Temperature: mc.Temperature,
		HTTPClient:  hc,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: model %q: %w", mc.Kind, err)
	}

	return c, nil
}
