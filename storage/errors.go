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


package storage

import (
	"errors"
	"fmt"

	"github.com/poiesic/threadbase/core"
)

var (
	// ErrConversationNotFound indicates that the requested conversation was not found.
	ErrConversationNotFound = fmt.Errorf("conversation %w", core.ErrNotFound)

	// ErrChunkNotFound indicates that a referenced chunk was not found.
	ErrChunkNotFound = fmt.Errorf("chunk %w", core.ErrNotFound)

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = fmt.Errorf("%w: invalid query parameters", core.ErrValidation)

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrDimensionMismatch indicates an embedding whose length differs from the store's.
	ErrDimensionMismatch = fmt.Errorf("%w: embedding dimension does not match the store", core.ErrValidation)
)

// Wrap marks err as a persistence failure of op. Validation and not-found outcomes are
// returned unchanged; every other error keeps its cause and also matches core.ErrPersistence.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrValidation) || errors.Is(err, core.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", core.ErrPersistence, op, err)
}
