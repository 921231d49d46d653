package llm

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

const MaxRetries = 3

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// RetryOptions tunes CompleteWithRetry.
type RetryOptions struct {
	// CallTimeout bounds each attempt. Zero means no per-call bound.
	CallTimeout time.Duration
	// Attempts defaults to MaxRetries.
	Attempts int
	// Backoff defaults to Backoff.
	Backoff func(attempt int) time.Duration
	Stats   *LLMStats
	// OnAttempt, when set, is told about every attempt outcome.
	OnAttempt func(Outcome)
	Log       *slog.Logger
}

// CompleteWithRetry calls g until it succeeds, fails permanently, the
// attempts are used up, or ctx is done. Each attempt gets its own timeout.
func CompleteWithRetry(ctx context.Context, g Gateway, prompt string, maxTokens int, opts RetryOptions) (string, error) {
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = MaxRetries
	}
	backoff := opts.Backoff
	if backoff == nil {
		backoff = Backoff
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	var lastErr error
	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if opts.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, opts.CallTimeout)
		}
		start := time.Now()
		out, err := g.Complete(callCtx, prompt, maxTokens)
		elapsed := time.Since(start).Milliseconds()
		cancel()

		outcome := outcomeOf(err)
		opts.Stats.Observe(elapsed, outcome)
		if opts.OnAttempt != nil {
			opts.OnAttempt(outcome)
		}
		if err == nil {
			return out, nil
		}

		// The caller's deadline is not ours to retry.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = &Error{Kind: KindTimeout, Err: err}
		}
		lastErr = err
		if !IsRetryable(err) || attempt == attempts-1 {
			break
		}

		wait := backoff(attempt)
		log.Warn("llm call failed, retrying", "attempt", attempt+1, "backoff", wait, "error", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func outcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	var le *Error
	if errors.As(err, &le) {
		switch le.Kind {
		case KindRateLimited:
			return OutcomeRateLimited
		case KindTimeout:
			return OutcomeTimeout
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	return OutcomeError
}

// Retrying wraps a Gateway so every Complete goes through CompleteWithRetry.
type Retrying struct {
	Gateway Gateway
	Options RetryOptions
}

func (r *Retrying) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return CompleteWithRetry(ctx, r.Gateway, prompt, maxTokens, r.Options)
}
