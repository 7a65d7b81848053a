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

package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the ingestion and retrieval paths matches
// exactly one of these with errors.Is.
var (
	// ErrValidation indicates malformed or empty input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a reference to an unknown conversation or chunk.
	ErrNotFound = errors.New("not found")

	// ErrPersistence indicates a storage failure. The transaction was rolled back
	// and the identical request can be retried safely.
	ErrPersistence = errors.New("persistence failed")

	// ErrProvider indicates an embedding provider failure.
	ErrProvider = errors.New("embedding provider failed")
)

// Validation causes.
var (
	// ErrEmptyMessages indicates an ingestion request without messages.
	ErrEmptyMessages = fmt.Errorf("%w: message list is empty", ErrValidation)

	// ErrEmptyContent indicates a message or chunk without text.
	ErrEmptyContent = fmt.Errorf("%w: content cannot be empty", ErrValidation)

	// ErrInvalidAuthorType indicates an unknown AuthorType value.
	ErrInvalidAuthorType = fmt.Errorf("%w: invalid author type", ErrValidation)

	// ErrEmptyQuery indicates a search without query text.
	ErrEmptyQuery = fmt.Errorf("%w: query cannot be empty", ErrValidation)

	// ErrInvalidTopK indicates a topK outside 1..max.
	ErrInvalidTopK = fmt.Errorf("%w: topK out of range", ErrValidation)

	// ErrInvalidThreshold indicates a relevance threshold outside [0, 1].
	ErrInvalidThreshold = fmt.Errorf("%w: relevance threshold must be within [0, 1]", ErrValidation)

	// ErrInvalidChunks indicates chunks whose order indexes are not 0..n-1.
	ErrInvalidChunks = fmt.Errorf("%w: chunk order indexes must be contiguous from 0", ErrValidation)
)
