// Package retry wraps an embedding service with bounded retries and
// proactive rate limiting.
//
// Embedding failures during ingestion must either recover or fail the
// whole document; retrying here keeps transient network errors from
// failing ingestion while the bound guarantees the caller is never
// stuck. Dimension mismatches and other validation errors are not
// retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
	"github.com/custodia-labs/ragcore/internal/logger"
)

// Ensure Service implements the interface.
var _ driven.EmbeddingService = (*Service)(nil)

// Config configures retry behaviour.
type Config struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries).
	MaxRetries int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// RequestsPerSecond throttles calls to the inner service.
	// Zero disables throttling.
	RequestsPerSecond float64
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryDelay: time.Second,
		MaxDelay:   15 * time.Second,
	}
}

// Service wraps an EmbeddingService with retries and throttling.
type Service struct {
	inner   driven.EmbeddingService
	cfg     Config
	limiter *rate.Limiter
}

// New wraps an existing embedding service.
func New(inner driven.EmbeddingService, cfg Config) *Service {
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 15 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Service{
		inner:   inner,
		cfg:     cfg,
		limiter: limiter,
	}
}

// Embed calls the inner service with retries.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := s.do(ctx, func() error {
		var innerErr error
		out, innerErr = s.inner.Embed(ctx, text)
		return innerErr
	})
	return out, err
}

// EmbedBatch calls the inner service with retries. A batch either
// succeeds completely or fails; there are no partial results.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := s.do(ctx, func() error {
		var innerErr error
		out, innerErr = s.inner.EmbedBatch(ctx, texts)
		return innerErr
	})
	return out, err
}

// Dimensions returns the inner service's vector size.
func (s *Service) Dimensions() int {
	return s.inner.Dimensions()
}

// ModelName returns the inner service's model name.
func (s *Service) ModelName() string {
	return s.inner.ModelName()
}

// Ping delegates to the inner service without retrying.
func (s *Service) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close closes the inner service.
func (s *Service) Close() error {
	return s.inner.Close()
}

// do runs fn with throttling and bounded exponential backoff.
func (s *Service) do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.backoff(attempt)
			logger.Debug("Embedding retry %d/%d after %s: %v", attempt, s.cfg.MaxRetries, delay, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("embedding failed after %d retries: %w", s.cfg.MaxRetries, lastErr)
}

// backoff doubles the delay per attempt, capped at MaxDelay.
func (s *Service) backoff(attempt int) time.Duration {
	delay := s.cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.cfg.MaxDelay {
			return s.cfg.MaxDelay
		}
	}
	return delay
}

// retryable reports whether the error may succeed on another attempt.
// Validation errors never will; transport failures might.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrDimensionMismatch) {
		return false
	}
	return true
}
