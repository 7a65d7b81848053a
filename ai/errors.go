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
	"errors"
	"fmt"
	"net"

	"github.com/tmc/langchaingo/llms"

	"github.com/poiesic/threadbase/core"
)

var (
	// ErrEmbedderRequired is returned when a nil embedder is supplied.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrDimensionMismatch is returned by the strict dimension policy when a provider
	// produces vectors of the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrCountMismatch is returned when a provider returns a different number of vectors
	// than texts it was given.
	ErrCountMismatch = errors.New("embedding count does not match input count")

	// ErrInvalidDimension is returned when the configured dimension is not positive.
	ErrInvalidDimension = errors.New("embedding dimension must be positive")

	// ErrUnknownDimensionPolicy is returned for an unrecognized dimension policy name.
	ErrUnknownDimensionPolicy = errors.New("unknown dimension policy")

	// ErrUnknownProvider is returned for an unrecognized provider name.
	ErrUnknownProvider = errors.New("unknown embedding provider")

	// ErrInvalidBatchSize is returned when a batch size or concurrency is below one.
	ErrInvalidBatchSize = errors.New("batch size and concurrency must be at least 1")

	// ErrInvalidBackoff is returned for a negative retry count or non-positive delays.
	ErrInvalidBackoff = errors.New("invalid retry backoff")
)

// ProviderError is a classified embedding provider failure.
// It matches core.ErrProvider and the underlying cause with errors.Is.
type ProviderError struct {
	Provider  string
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s provider failed (%s): %v", e.Provider, kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{core.ErrProvider, e.Err}
}

// IsTransient reports whether err is a provider error worth retrying.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}

// Classify converts a provider failure into a *ProviderError.
//
// Rate limits, timeouts, unavailable providers and unrecognized failures (typically network
// errors) are transient. Authentication, invalid requests, missing models, exhausted quotas,
// content filtering, token limits and dimension or count mismatches are permanent.
// Cancellation is returned unchanged, as is an error that is already classified.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, ErrDimensionMismatch) || errors.Is(err, ErrCountMismatch) {
		return &ProviderError{Provider: provider, Transient: false, Err: err}
	}

	// Connection failures carry addresses whose digits can look like HTTP status codes.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ProviderError{Provider: provider, Transient: true, Err: err}
	}

	var lerr *llms.Error
	if !errors.As(err, &lerr) {
		mapped := llms.NewErrorMapper(provider).Map(err)
		if !errors.As(mapped, &lerr) {
			return &ProviderError{Provider: provider, Transient: true, Err: err}
		}
	}

	return &ProviderError{Provider: provider, Transient: transientCode(lerr.Code), Err: err}
}

func transientCode(code llms.ErrorCode) bool {
	switch code {
	case llms.ErrCodeRateLimit, llms.ErrCodeTimeout, llms.ErrCodeProviderUnavailable, llms.ErrCodeUnknown:
		return true
	default:
		return false
	}
}
