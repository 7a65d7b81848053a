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
	"fmt"
	"math"
	"strings"
)

// ValidateMessage checks that a message is valid for ingestion.
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrValidation)
	}

	if strings.TrimSpace(msg.Text) == "" {
		return ErrEmptyContent
	}

	return ValidateAuthorType(msg.AuthorType)
}

// ValidateMessages checks a whole transcript. The error names the first offending position.
func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return ErrEmptyMessages
	}
	for i := range messages {
		if err := ValidateMessage(&messages[i]); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

// ValidateAuthorType ensures the author type is one of the known values.
func ValidateAuthorType(authorType AuthorType) error {
	switch authorType {
	case AuthorTypeHuman, AuthorTypeAssistant, AuthorTypeSystem:
		return nil
	}
	return fmt.Errorf("%w: value %d", ErrInvalidAuthorType, authorType)
}

// ValidateChunks checks that chunk order indexes form exactly 0..n-1 and that
// every chunk has text.
func ValidateChunks(chunks []Chunk) error {
	seen := make([]bool, len(chunks))
	for i := range chunks {
		idx := chunks[i].OrderIndex
		if idx < 0 || idx >= len(chunks) || seen[idx] {
			return fmt.Errorf("%w: index %d", ErrInvalidChunks, idx)
		}
		seen[idx] = true
		if chunks[i].Text == "" {
			return fmt.Errorf("chunk %d: %w", idx, ErrEmptyContent)
		}
	}
	return nil
}

// ValidateQuery checks search parameters against the configured maximum topK.
func ValidateQuery(query string, topK, maxTopK int) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	if topK < 1 || topK > maxTopK {
		return fmt.Errorf("%w: got %d, want 1..%d", ErrInvalidTopK, topK, maxTopK)
	}
	return nil
}

// ValidateThreshold checks an optional relevance threshold. Zero disables filtering.
func ValidateThreshold(threshold float32) error {
	if math.IsNaN(float64(threshold)) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	return nil
}
