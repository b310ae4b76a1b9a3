// Package credentials caches the imagery provider's OAuth2 client-credentials
// bearer token.
//
// One Cache is created per process and shared by the catalog, statistics and
// render clients. A cached token is reused while it has more than Margin of
// lifetime left; otherwise a new exchange is made. Concurrent refreshes are
// coalesced, and a racing refresh is harmless because every exchange yields an
// equally valid token.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/httpclient"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

var _ httpclient.Invalidator = (*Cache)(nil)

// Margin is how much lifetime a cached token must have left to be reused.
const Margin = 60 * time.Second

// fallbackLifetime applies when the token endpoint omits expires_in.
const fallbackLifetime = 5 * time.Minute

// exchangeTimeout bounds a shared exchange, which outlives any one caller.
const exchangeTimeout = 15 * time.Second

// Config describes the client-credentials exchange.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	HTTPClient   *http.Client
}

// Cache hands out bearer tokens, exchanging credentials only when needed.
type Cache struct {
	cfg   clientcredentials.Config
	http  *http.Client
	now   func() time.Time
	group singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache. No exchange is made until the first Token call.
func New(cfg Config, opts ...Option) *Cache {
	c := &Cache{
		cfg: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		http: cfg.HTTPClient,
		now:  time.Now,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Token returns a bearer token valid for at least Margin. A caller whose ctx
// ends while an exchange is in flight returns ctx.Err(); the exchange itself
// keeps running for the other waiters.
func (c *Cache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	ch := c.group.DoChan("token", func() (any, error) {
		if tok, ok := c.cached(); ok {
			return tok, nil
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exchangeTimeout)
		defer cancel()

		return c.refresh(ctx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next Token call exchanges again.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.expiry = time.Time{}
}

func (c *Cache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" || !c.now().Add(Margin).Before(c.expiry) {
		return "", false
	}
	return c.token, true
}

func (c *Cache) refresh(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	t, err := c.cfg.Token(ctx)
	if err != nil {
		return "", exchangeError(err)
	}
	if t.AccessToken == "" {
		return "", &httpclient.UpstreamError{Service: "credentials", Message: "token response without access_token"}
	}

	expiry := t.Expiry
	if expiry.IsZero() {
		expiry = c.now().Add(fallbackLifetime)
	}

	c.mu.Lock()
	c.token = t.AccessToken
	c.expiry = expiry
	c.mu.Unlock()

	return t.AccessToken, nil
}

func exchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		ue := &httpclient.UpstreamError{Service: "credentials", Message: "token exchange rejected", Err: err}
		if re.Response != nil {
			ue.Status = re.Response.StatusCode
		}
		if re.ErrorCode != "" {
			ue.Message = fmt.Sprintf("token exchange rejected: %s", re.ErrorCode)
		}
		return ue
	}
	return &httpclient.UpstreamError{Service: "credentials", Message: "token exchange failed", Err: err}
}
