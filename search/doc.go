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


// Package search answers natural-language queries over ingested conversations.
//
// A query is embedded with the same provider used at ingestion time and the
// resulting vector is handed to the store's nearest-neighbor search. Hits come
// back ordered by L2 distance with a relevance score of 1/(1+distance), and are
// flattened into core.SearchResult values that carry the owning conversation's
// title.
//
// Searches are deterministic for unchanged data: ties on distance are broken by
// order index, conversation ID and chunk ID.
package search
