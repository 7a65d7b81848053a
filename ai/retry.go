// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"context"
	"log/slog"
	"time"
)

// Backoff describes a capped exponential retry schedule.
type Backoff struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration
	// Factor multiplies the delay after every retry.
	Factor float64
	// MaxDelay caps a single wait.
	MaxDelay time.Duration
}

// DefaultBackoff returns 3 retries starting at 1s, doubling, capped at 60s.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Factor:     2,
		MaxDelay:   60 * time.Second,
	}
}

// NoRetry is a Backoff that makes a single attempt.
var NoRetry = Backoff{Factor: 1}

// Validate checks the schedule.
func (b Backoff) Validate() error {
	if b.MaxRetries < 0 || b.Factor < 1 || b.BaseDelay < 0 || b.MaxDelay < 0 {
		return ErrInvalidBackoff
	}
	return nil
}

// Delay returns the wait before the given retry (1-based): min(base*factor^(retry-1), max).
func (b Backoff) Delay(retry int) time.Duration {
	delay := float64(b.BaseDelay)
	for i := 1; i < retry; i++ {
		delay *= b.Factor
		if b.MaxDelay > 0 && delay >= float64(b.MaxDelay) {
			return b.MaxDelay
		}
	}
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		return b.MaxDelay
	}
	return time.Duration(delay)
}

// Retry runs operation until it succeeds, returns an error shouldRetry rejects, the schedule
// is exhausted or ctx is done. A nil shouldRetry retries transient provider errors only.
// The error from the last attempt is returned.
func Retry(ctx context.Context, b Backoff, shouldRetry func(error) bool, operation func(context.Context) error) error {
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var lastErr error
	for attempt := 0; attempt <= b.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := b.Delay(attempt)
			slog.Debug("operation failed, will retry", "retry", attempt, "maxRetries", b.MaxRetries, "delay", delay, "error", lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation(ctx)
		if lastErr == nil {
			if attempt > 0 {
				slog.Debug("operation succeeded after retry", "retry", attempt)
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
