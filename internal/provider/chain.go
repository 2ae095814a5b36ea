package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/linkforensics/internal/cache"
	"github.com/nao1215/linkforensics/internal/metrics"
)

// DefaultTimeout bounds a single provider attempt when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Provider is one entry of a Chain.
type Provider[Req, Resp any] struct {
	// Name identifies the provider in logs, metrics and results.
	Name string

	// Eligible reports whether the provider can serve req. Nil means always.
	Eligible func(req Req) bool

	// Lookup performs the request. ctx carries the per-attempt deadline.
	Lookup func(ctx context.Context, req Req) (Resp, error)
}

// Result is a successful chain lookup.
type Result[Resp any] struct {
	Value Resp

	// Provider is the name of the provider that answered.
	Provider string

	// Cached is true when the value came from the cache.
	Cached bool
}

// ChainOption configures a Chain.
type ChainOption func(*chainOptions)

type chainOptions struct {
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// WithTimeout sets the per-provider timeout.
func WithTimeout(d time.Duration) ChainOption {
	return func(o *chainOptions) {
		o.timeout = d
	}
}

// WithRateLimit throttles attempts across the whole chain to r per second
// with the given burst. A zero r disables throttling.
func WithRateLimit(r float64, burst int) ChainOption {
	return func(o *chainOptions) {
		if r <= 0 {
			o.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ChainOption {
	return func(o *chainOptions) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) ChainOption {
	return func(o *chainOptions) {
		o.metrics = m
	}
}

// Chain is an ordered list of providers tried until one answers.
// A Chain is safe for concurrent use once configured.
type Chain[Req, Resp any] struct {
	name      string
	providers []Provider[Req, Resp]
	opts      chainOptions

	accept   func(Resp) bool
	cache    cache.Cache
	cacheTTL time.Duration
	cacheKey func(Req) string
}

// NewChain creates a chain named name over providers, in order.
func NewChain[Req, Resp any](name string, providers []Provider[Req, Resp], opts ...ChainOption) *Chain[Req, Resp] {
	o := chainOptions{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Chain[Req, Resp]{
		name:      name,
		providers: append([]Provider[Req, Resp](nil), providers...),
		opts:      o,
	}
}

// Accept installs a predicate that rejects answers lacking required data.
// Rejected answers count as failures and the chain moves on.
func (c *Chain[Req, Resp]) Accept(fn func(Resp) bool) *Chain[Req, Resp] {
	c.accept = fn
	return c
}

// WithCache answers repeated requests from store for ttl. key derives the
// cache key from a request; an empty key bypasses the cache.
func (c *Chain[Req, Resp]) WithCache(store cache.Cache, ttl time.Duration, key func(Req) string) *Chain[Req, Resp] {
	c.cache = store
	c.cacheTTL = ttl
	c.cacheKey = key
	return c
}

// Name returns the chain name.
func (c *Chain[Req, Resp]) Name() string {
	return c.name
}

// Len returns the number of providers.
func (c *Chain[Req, Resp]) Len() int {
	return len(c.providers)
}

// Lookup tries each eligible provider in order and returns the first
// acceptable answer.
func (c *Chain[Req, Resp]) Lookup(ctx context.Context, req Req) (Result[Resp], error) {
	key := c.key(req)
	if v, ok := c.fromCache(ctx, key); ok {
		return Result[Resp]{Value: v, Provider: "cache", Cached: true}, nil
	}

	var errs []error
	eligible := 0
	for _, p := range c.providers {
		if p.Eligible != nil && !p.Eligible(req) {
			c.opts.metrics.ObserveProvider(c.name, p.Name, metrics.OutcomeSkipped)
			continue
		}
		eligible++

		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if c.opts.limiter != nil {
			if err := c.opts.limiter.Wait(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: rate limit: %w", p.Name, err))
				break
			}
		}

		v, err := Bounded(ctx, c.opts.timeout, func(ctx context.Context) (Resp, error) {
			return p.Lookup(ctx, req)
		})
		if err == nil && c.accept != nil && !c.accept(v) {
			err = ErrEmptyResponse
		}
		if err != nil {
			outcome := metrics.OutcomeError
			if errors.Is(err, ErrProbeTimeout) {
				outcome = metrics.OutcomeTimeout
			}
			c.opts.metrics.ObserveProvider(c.name, p.Name, outcome)
			c.opts.logger.Debug("provider failed", "chain", c.name, "provider", p.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
			continue
		}

		c.opts.metrics.ObserveProvider(c.name, p.Name, metrics.OutcomeSuccess)
		c.toCache(ctx, key, v)
		return Result[Resp]{Value: v, Provider: p.Name}, nil
	}

	if eligible == 0 {
		errs = append(errs, ErrNoEligibleProvider)
	}
	var zero Result[Resp]
	return zero, fmt.Errorf("%s: %w", c.name, errors.Join(append([]error{ErrAllProvidersExhausted}, errs...)...))
}

func (c *Chain[Req, Resp]) key(req Req) string {
	if c.cache == nil || c.cacheKey == nil {
		return ""
	}
	k := c.cacheKey(req)
	if k == "" {
		return ""
	}
	return c.name + ":" + k
}

func (c *Chain[Req, Resp]) fromCache(ctx context.Context, key string) (Resp, bool) {
	var zero Resp
	if key == "" {
		return zero, false
	}
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			c.opts.logger.Debug("cache read failed", "chain", c.name, "error", err)
		}
		return zero, false
	}
	var v Resp
	if err := json.Unmarshal(data, &v); err != nil {
		c.opts.logger.Debug("cache entry undecodable", "chain", c.name, "error", err)
		return zero, false
	}
	c.opts.metrics.ObserveProvider(c.name, "cache", metrics.OutcomeCacheHit)
	return v, true
}

func (c *Chain[Req, Resp]) toCache(ctx context.Context, key string, v Resp) {
	if key == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
		c.opts.logger.Debug("cache write failed", "chain", c.name, "error", err)
	}
}
