package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Config controls the backoff schedule.
type Config struct {
	// MaxRetries is the total number of attempts.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// RateLimitMultiplier stretches the delay after a rate-limit error.
	RateLimitMultiplier float64
}

// DefaultConfig returns a schedule suited to public RPC providers.
func DefaultConfig() Config {
	return Config{
		MaxRetries:          5,
		BaseDelay:           500 * time.Millisecond,
		MaxDelay:            30 * time.Second,
		Multiplier:          2,
		RateLimitMultiplier: 2,
	}
}

func (c Config) normalized() Config {
	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultConfig().MaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = 1
	}
	if c.RateLimitMultiplier < 1 {
		c.RateLimitMultiplier = 1
	}
	return c
}

// Delay returns the wait after failed attempt n (1-based).
func (c Config) Delay(attempt int, kind Kind) time.Duration {
	c = c.normalized()
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if kind == KindRateLimit {
		delay *= c.RateLimitMultiplier
	}
	if delay > float64(c.MaxDelay) || math.IsInf(delay, 0) {
		return c.MaxDelay
	}
	return time.Duration(delay)
}

// Error is returned once a call is given up on.
type Error struct {
	Op       string
	Attempts int
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s) (%s): %v", e.Op, e.Attempts, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Observer is notified before each retry sleep.
type Observer func(op string, kind Kind)

// Policy runs calls under a classification-aware backoff.
type Policy struct {
	cfg        Config
	classifier Classifier
	logger     *zap.Logger
	observer   Observer
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option customizes a Policy.
type Option func(*Policy)

// WithObserver registers a retry observer.
func WithObserver(fn Observer) Option {
	return func(p *Policy) {
		p.observer = fn
	}
}

// WithSleep replaces the wait function, mostly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Policy) {
		p.sleep = fn
	}
}

// NewPolicy builds a Policy. A nil classifier uses DefaultClassifier.
func NewPolicy(cfg Config, classifier Classifier, logger *zap.Logger, opts ...Option) *Policy {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Policy{
		cfg:        cfg.normalized(),
		classifier: classifier,
		logger:     logger,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run calls fn until it succeeds, fails permanently or runs out of attempts.
func (p *Policy) Run(ctx context.Context, op string, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		kind := p.classifier.Classify(err)
		if !kind.Retryable() || attempt >= p.cfg.MaxRetries {
			return &Error{Op: op, Attempts: attempt, Kind: kind, Err: err}
		}

		delay := p.cfg.Delay(attempt, kind)
		p.logger.Warn("rpc call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", p.cfg.MaxRetries),
			zap.Duration("delay", delay),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		if p.observer != nil {
			p.observer(op, kind)
		}

		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Do is Run for calls that return a value.
func Do[T any](ctx context.Context, p *Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Run(ctx, op, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
