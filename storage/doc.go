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


// Package storage defines the persistence contract for threadbase.
//
// A conversation and its chunks are always written and removed together. Every backend
// implements Repository:
//
//   - ConversationRepository: atomic save/upsert, get, list, cascading delete,
//     nearest-neighbor search and embedding updates
//   - CheckpointRepository: named progress markers for resumable jobs
//
// Backends live in sub-packages: badger (embedded default), sqlite and postgres.
// Constructors return the Repository interface:
//
//	repo, err := badger.NewRepository("/path/to/db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
// Tests use in-memory storage:
//
//	repo, err := badger.NewMemoryRepository()
//
// # Ranking
//
// SimilaritySearch ranks by Euclidean (L2) distance and reports score = 1/(1+d).
// Ties are broken by chunk order index, then conversation ID, then chunk ID, so results
// are deterministic for unchanged data. Exact-scan backends share the Ranker type;
// index-backed backends order the same way in SQL. The storagetest package verifies
// that every backend agrees.
//
// # Errors
//
// Missing records match core.ErrNotFound, bad arguments match core.ErrValidation and
// every other failure matches core.ErrPersistence while keeping its cause.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
