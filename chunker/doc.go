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


// Package chunker splits conversation transcripts into bounded, ordered chunks.
//
// Consecutive messages from the same author are aggregated into one chunk as long as the
// joined text stays within the configured maximum length. Messages that are longer than the
// maximum on their own are split into pieces, preferring whitespace boundaries. Lengths are
// counted in runes.
//
// The Chunker holds no mutable state and is safe for concurrent use.
package chunker
