// Package embedding drives chunk texts through an embedding provider with
// bounded, size-adaptive concurrency and per-call retry.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"veritasai-be/internal/pkg/logger"
	"veritasai-be/pkg/llm"
)

const (
	MinChunkLength = 5

	largeInput          = 200
	mediumInput         = 100
	maxSmallConcurrency = 3
)

// ErrEmbeddingGenerationFailed is returned once every retry for a chunk is
// exhausted. It wraps the last provider error.
var ErrEmbeddingGenerationFailed = errors.New("embedding generation failed")

var errEmptyVector = errors.New("provider returned no vector")

// ProgressFunc receives the number of processed chunks after each batch.
type ProgressFunc func(processed, total int)

type Config struct {
	Concurrency int
	MaxRetries  int
	RetryDelay  time.Duration

	// Inter-batch delays for small, medium (100-200) and large (>200) inputs.
	BatchDelay  time.Duration
	MediumDelay time.Duration
	LargeDelay  time.Duration

	// RateLimit caps provider calls per second across workers. 0 disables it.
	RateLimit float64
}

func DefaultConfig() Config {
	return Config{
		Concurrency: 3,
		MaxRetries:  3,
		RetryDelay:  time.Second,
		BatchDelay:  200 * time.Millisecond,
		MediumDelay: 500 * time.Millisecond,
		LargeDelay:  time.Second,
	}
}

type Engine struct {
	provider llm.Provider
	fallback llm.Provider
	model    string
	cfg      Config
	limiter  *rate.Limiter
	logger   logger.ILogger
}

type Option func(*Engine)

// WithFallback sets the provider tried when the primary is unreachable.
func WithFallback(p llm.Provider) Option {
	return func(e *Engine) { e.fallback = p }
}

func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

func WithLogger(l logger.ILogger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(provider llm.Provider, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}

	e := &Engine{
		provider: provider,
		cfg:      cfg,
		logger:   logger.NewNopLogger(),
	}
	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Concurrency)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Filter trims chunks and drops those shorter than MinChunkLength. Generate
// returns one vector per element of this list, in the same order.
func Filter(chunks []string) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		if utf8.RuneCountInString(c) < MinChunkLength {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (e *Engine) Filter(chunks []string) []string {
	return Filter(chunks)
}

// plan picks the batch width and inter-batch delay for n chunks. Large inputs
// go near-serially so a local backend is not flooded.
func (e *Engine) plan(n int) (int, time.Duration) {
	switch {
	case n > largeInput:
		return 1, e.cfg.LargeDelay
	case n >= mediumInput:
		return 2, e.cfg.MediumDelay
	default:
		return min(e.cfg.Concurrency, maxSmallConcurrency), e.cfg.BatchDelay
	}
}

// CheckHealth probes the primary provider.
func (e *Engine) CheckHealth(ctx context.Context) error {
	if err := e.provider.Health(ctx); err != nil {
		if errors.Is(err, llm.ErrProviderUnavailable) {
			return err
		}
		return llm.Unavailable(e.provider.Name(), err)
	}
	return nil
}

// Generate embeds the filtered chunks. Batches run strictly one after
// another; inside a batch every chunk is embedded concurrently and written to
// its own slot, so the output order always matches the input order.
//
// progress runs on its own goroutine. Generate returns only after the last
// call to progress has returned, so a slow callback delays the return but
// never sees an update after it.
func (e *Engine) Generate(ctx context.Context, chunks []string, progress ProgressFunc) ([][]float32, error) {
	valid := e.Filter(chunks)
	total := len(valid)
	if total == 0 {
		return [][]float32{}, nil
	}

	width, delay := e.plan(total)
	results := make([][]float32, total)

	reporter := newProgressReporter(progress)
	defer reporter.close()

	e.logger.Info("EMBEDDING", "Generating embeddings", map[string]interface{}{
		"chunks":      total,
		"concurrency": width,
		"delay_ms":    delay.Milliseconds(),
	})

	for start := 0; start < total; start += width {
		end := min(start+width, total)

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				vec, err := e.embedOne(gctx, valid[i])
				if err != nil {
					return fmt.Errorf("chunk %d: %w", i, err)
				}
				results[i] = vec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		reporter.report(end, total)

		if end < total && delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
	return results, nil
}

// EmbedQuery embeds a single question with the same retry policy.
func (e *Engine) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embedOne(ctx, text)
}

func (e *Engine) embedOne(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.withRetry(ctx, e.provider, text)
	if err == nil {
		return vec, nil
	}

	if e.fallback != nil && errors.Is(err, llm.ErrProviderUnavailable) {
		fbVec, fbErr := e.withRetry(ctx, e.fallback, text)
		if fbErr == nil {
			return fbVec, nil
		}
		e.logger.Error("EMBEDDING", "Primary and fallback embedding failed", map[string]interface{}{
			"error":          err.Error(),
			"fallback_error": fbErr.Error(),
		})
		err = fmt.Errorf("%w (fallback: %v)", err, fbErr)
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrEmbeddingGenerationFailed, e.cfg.MaxRetries, err)
}

func (e *Engine) withRetry(ctx context.Context, p llm.Provider, text string) ([]float32, error) {
	operation := func() ([]float32, error) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		vecs, err := p.Embed(ctx, []string{text}, llm.WithModel(e.model))
		if err != nil {
			if errors.Is(err, llm.ErrCapabilityNotSupported) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if len(vecs) != 1 || len(vecs[0]) == 0 {
			return nil, errEmptyVector
		}
		return vecs[0], nil
	}

	notify := func(err error, next time.Duration) {
		e.logger.Warn("EMBEDDING", "Embedding attempt failed, retrying", map[string]interface{}{
			"provider":     p.Name(),
			"error":        err.Error(),
			"chunk_length": len(text),
			"retry_in_ms":  next.Milliseconds(),
		})
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(newJitterBackOff(e.cfg.RetryDelay)),
		backoff.WithMaxTries(uint(e.cfg.MaxRetries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
