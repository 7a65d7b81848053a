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


package search

import (
	"errors"
	"fmt"

	"github.com/poiesic/threadbase/core"
)

var (
	// ErrRepositoryRequired is returned when a conversation repository is not provided.
	ErrRepositoryRequired = errors.New("conversation repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidMaxTopK is returned when the configured maximum topK is below one.
	ErrInvalidMaxTopK = fmt.Errorf("%w: max topK must be at least 1", core.ErrValidation)

	// ErrQueryEmbedding is returned when the embedder does not produce exactly one query vector.
	ErrQueryEmbedding = fmt.Errorf("%w: expected one query vector", core.ErrProvider)
)
