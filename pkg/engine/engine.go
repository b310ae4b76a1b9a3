package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Berektassuly/terra-vision-ai/pkg/agent"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/message"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/role"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/transcript"
	"github.com/Berektassuly/terra-vision-ai/pkg/geocode"
	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/catalog"
	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/credentials"
	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/httpclient"
	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/render"
	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/statistics"
	"github.com/Berektassuly/terra-vision-ai/pkg/modeladapter"
	"github.com/Berektassuly/terra-vision-ai/pkg/tools/toolbox"
	"github.com/Berektassuly/terra-vision-ai/pkg/tools/vegetation"
)

// AgentName is the sender name on assistant and tool messages.
const AgentName = "terravision"

// eventBuffer is the capacity of the channel returned by Ask.
const eventBuffer = 64

var (
	// ErrTimeout is returned when a run exceeds the request timeout.
	ErrTimeout = errors.New("engine: request timed out")
	// ErrInvalidTranscript wraps every transcript validation failure.
	ErrInvalidTranscript = errors.New("engine: invalid transcript")
)

// Engine assembles the framework components from configuration. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	cfg       Config
	completer modeladapter.Completer
	service   *vegetation.Service
	tools     *toolbox.ToolBox
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	completer  modeladapter.Completer
	providers  *vegetation.Providers
	logger     *slog.Logger
	now        func() time.Time
	httpClient *http.Client
}

// WithCompleter uses c instead of building one from the model configuration.
func WithCompleter(c modeladapter.Completer) Option {
	return func(o *options) { o.completer = c }
}

// WithProviders uses p instead of building imagery and geocoding clients.
func WithProviders(p vegetation.Providers) Option {
	return func(o *options) { o.providers = &p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the source of today's date in the system prompt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHTTPClient sets the HTTP client used for every outbound call.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// New creates an Engine from the given configuration. It validates the
// config, creates the provider clients and the model completer, and builds
// the toolbox.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if o.completer == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	cfg = cfg.withDefaults()

	e := &Engine{cfg: cfg, completer: o.completer, logger: o.logger, now: o.now}

	if e.completer == nil {
		c, err := buildCompleter(ctx, cfg.Model, o.httpClient)
		if err != nil {
			return nil, err
		}
		e.completer = c
	}

	e.service = newService(cfg, o)
	e.tools = e.service.ToolBox()

	return e, nil
}

// NewService builds the vegetation tool service without a model. The model
// section of cfg is ignored. The MCP server uses it to expose the tools
// alone.
func NewService(cfg Config, opts ...Option) *vegetation.Service {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return newService(cfg.withDefaults(), o)
}

func newService(cfg Config, o options) *vegetation.Service {
	providers := buildProviders(cfg, o.httpClient, o.logger)
	if o.providers != nil {
		providers = *o.providers
	}

	return vegetation.New(providers,
		vegetation.WithMaxCloudCover(cfg.Agent.MaxCloudCover),
		vegetation.WithLogger(o.logger),
	)
}

// buildProviders creates the geocoder and the imagery clients. The imagery
// clients share one credential cache and one circuit breaker.
func buildProviders(cfg Config, hc *http.Client, logger *slog.Logger) vegetation.Providers {
	common := []httpclient.Option{httpclient.WithLogger(logger)}
	if hc != nil {
		common = append(common, httpclient.WithHTTPClient(hc))
	}

	creds := credentials.New(credentials.Config{
		ClientID:     cfg.Imagery.ClientID,
		ClientSecret: cfg.Imagery.ClientSecret,
		TokenURL:     cfg.Imagery.TokenURL,
		HTTPClient:   hc,
	})

	imagery := httpclient.New("imagery", cfg.Imagery.BaseURL,
		append(common, httpclient.WithTokenSource(creds))...)

	geoOpts := common
	if cfg.Geocoder.UserAgent != "" {
		geoOpts = append(geoOpts, httpclient.WithUserAgent(cfg.Geocoder.UserAgent))
	}

	return vegetation.Providers{
		Geocoder:   geocode.New(cfg.Geocoder.BaseURL, geoOpts...),
		Catalog:    catalog.New(imagery, catalog.WithCollection(cfg.Imagery.Collection)),
		Statistics: statistics.New(imagery, cfg.Imagery.Collection),
		Renderer:   render.New(imagery, cfg.Imagery.Collection),
	}
}

// ToolBox returns the vegetation toolbox.
func (e *Engine) ToolBox() *toolbox.ToolBox { return e.tools }

// Service returns the vegetation tool service.
func (e *Engine) Service() *vegetation.Service { return e.service }

// Completer returns the model completer.
func (e *Engine) Completer() modeladapter.Completer { return e.completer }

// Ask validates t and starts a run in the background. Events arrive on the
// returned channel, which is closed when the run ends. A failed run ends with
// an error event. Cancelling ctx stops the run and the stream.
func (e *Engine) Ask(ctx context.Context, t transcript.Transcript) (<-chan agent.Event, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTranscript, err)
	}

	events := make(chan agent.Event, eventBuffer)
	send := func(ctx context.Context, ev agent.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(events)

		_, err := e.run(ctx, t, agent.EmitterFunc(send))
		if err == nil || ctx.Err() != nil {
			return
		}

		switch {
		case errors.Is(err, ErrTimeout):
			send(ctx, agent.ErrorEvent(agent.CodeTimeout, "the request took too long and was stopped", true))
		default:
			send(ctx, agent.ErrorEvent(agent.CodeModelError, err.Error(), true))
		}
	}()

	return events, nil
}

// Run answers t synchronously. Events, if em is non-nil, are delivered as
// they happen.
func (e *Engine) Run(ctx context.Context, t transcript.Transcript, em agent.Emitter) (agent.Result, error) {
	if err := t.Validate(); err != nil {
		return agent.Result{}, fmt.Errorf("%w: %w", ErrInvalidTranscript, err)
	}
	return e.run(ctx, t, em)
}

func (e *Engine) run(ctx context.Context, t transcript.Transcript, em agent.Emitter) (agent.Result, error) {
	opts := agent.Options{
		MaxSteps:    e.cfg.Agent.MaxSteps,
		ToolTimeout: e.cfg.Agent.ToolTimeout,
		Emitter:     em,
		Images:      vegetation.ImageURL,
		Middleware: []agent.Middleware{
			agent.Recovery(),
			agent.Logger(e.logger, AgentName),
			agent.Timeout(e.cfg.Agent.RequestTimeout),
		},
	}
	if e.cfg.Agent.StrictOrdering {
		opts.Gate = vegetation.StrictOrdering
	}

	a := agent.New(AgentName, e.completer, opts)
	a.AddToolBoxes(e.tools)
	a.Chat().Append(message.NewText(AgentName, role.System, e.service.SystemPrompt(e.now())))
	a.Chat().Append(t.ToMessages(vegetation.ModelView)...)

	res, err := a.Run(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return res, fmt.Errorf("%w after %s: %w", ErrTimeout, e.cfg.Agent.RequestTimeout, err)
		}
		return res, err
	}

	return res, nil
}
