package retry

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"
)

// BackoffConfig contains configuration for exponential backoff.
// MaxRetries counts retries after the first invocation, so an always
// failing operation runs MaxRetries+1 times.
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	Jitter       bool          `json:"jitter" yaml:"jitter"`
}

// DefaultBackoffConfig returns the pipeline defaults: 3 retries, 1s initial delay capped at 5s.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   3,
		Jitter:       false,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Observer is notified before every retry.
type Observer func(attempt int, delay time.Duration, err error)

// Backoff implements exponential backoff with optional jitter
type Backoff struct {
	config   BackoffConfig
	name     string
	logger   *logrus.Logger
	sleep    SleepFunc
	observer Observer
}

// Option customizes a Backoff.
type Option func(*Backoff)

// WithLogger logs every retry at warn level under the given operation name.
func WithLogger(logger *logrus.Logger, operation string) Option {
	return func(b *Backoff) {
		b.logger = logger
		b.name = operation
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep SleepFunc) Option {
	return func(b *Backoff) {
		b.sleep = sleep
	}
}

// WithObserver registers a hook called before each retry.
func WithObserver(observer Observer) Option {
	return func(b *Backoff) {
		b.observer = observer
	}
}

// NewBackoff creates a new exponential backoff instance
func NewBackoff(config BackoffConfig, opts ...Option) *Backoff {
	defaults := DefaultBackoffConfig()
	if config.InitialDelay <= 0 {
		config.InitialDelay = defaults.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.Multiplier < 1 {
		config.Multiplier = defaults.Multiplier
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	b := &Backoff{config: config, sleep: sleepContext}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Config returns the effective configuration.
func (b *Backoff) Config() BackoffConfig {
	return b.config
}

// With returns a copy of b with extra options applied.
func (b *Backoff) With(opts ...Option) *Backoff {
	clone := *b
	for _, opt := range opts {
		opt(&clone)
	}
	return &clone
}

// Retry executes the operation with exponential backoff retry logic.
// Every failure is retried the same way; the last error is returned as is.
func (b *Backoff) Retry(ctx context.Context, operation func() error) error {
	return b.RetryWithPredicate(ctx, operation, func(error) bool { return true })
}

// RetryWithPredicate executes the operation with exponential backoff, using a predicate to determine if errors are retryable
func (b *Backoff) RetryWithPredicate(ctx context.Context, operation func() error, isRetryable func(error) bool) error {
	var lastErr error

	for attempt := 0; attempt <= b.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == b.config.MaxRetries {
			break
		}

		delay := b.calculateDelay(attempt + 1)
		b.notify(attempt+1, delay, err)

		if err := b.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// Do runs op under b and returns its value on success.
func Do[T any](ctx context.Context, b *Backoff, op func() (T, error)) (T, error) {
	var result T
	err := b.Retry(ctx, func() error {
		v, err := op()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func (b *Backoff) notify(attempt int, delay time.Duration, err error) {
	if b.logger != nil {
		b.logger.WithFields(logrus.Fields{
			"operation":   b.name,
			"attempt":     attempt,
			"max_retries": b.config.MaxRetries,
			"delay_ms":    delay.Milliseconds(),
		}).WithError(err).Warn("Operation failed, retrying")
	}
	if b.observer != nil {
		b.observer(attempt, delay, err)
	}
}

// calculateDelay computes the delay before the given retry (1-based)
func (b *Backoff) calculateDelay(retry int) time.Duration {
	delay := float64(b.config.InitialDelay) * math.Pow(b.config.Multiplier, float64(retry-1))

	if delay > float64(b.config.MaxDelay) {
		delay = float64(b.config.MaxDelay)
	}

	// ±25% randomness
	if b.config.Jitter {
		jitter := delay * 0.25
		delay += (secureFloat64() - 0.5) * 2 * jitter

		if delay < 0 {
			delay = float64(b.config.InitialDelay)
		}
		if delay > float64(b.config.MaxDelay) {
			delay = float64(b.config.MaxDelay)
		}
	}

	return time.Duration(delay)
}

// GetNextDelay returns the delay that would be used before the given retry
func (b *Backoff) GetNextDelay(retry int) time.Duration {
	return b.calculateDelay(retry)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// secureFloat64 generates a cryptographically secure float64 between 0 and 1
func secureFloat64() float64 {
	max := big.NewInt(0).SetUint64(math.MaxUint64)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return float64(time.Now().UnixNano()%1000000) / 1000000.0
	}
	return float64(n.Uint64()) / float64(math.MaxUint64)
}
