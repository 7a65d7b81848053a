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


// Package ai provides the embedding abstraction used by Threadbase and the wrappers that make
// an unreliable provider safe to depend on.
//
// The core interface is Embedder. Implementations live in sub-packages:
//
//   - ai/openai: OpenAI-compatible HTTP APIs through langchaingo
//   - ai/ollama: a local Ollama server through langchaingo
//   - ai/hashing: a deterministic feature-hashing embedder that needs no network
//   - ai/mock: a test double
//
// # Wrappers
//
// Wrappers compose around any Embedder:
//
//   - Batched splits large requests into sub-batches and embeds them concurrently
//   - Cached serves repeated texts from a VectorCache (ai/cache: ristretto or Redis)
//   - Resilient retries transient failures with exponential backoff, then falls back to a
//     secondary provider, then to zero vectors, and enforces the configured dimension
//
// Resilient never returns a provider error for non-empty input: every text gets a vector of
// the configured length. Only context cancellation escapes it.
//
// # Errors
//
// Providers report failures as *ProviderError. Classify maps langchaingo's error codes onto
// the Transient flag; Retry consults IsTransient by default.
//
// # Usage Example
//
//	cfg := ai.NewConfig(
//	    ai.WithProvider(ai.ProviderOllama),
//	    ai.WithHost("http://localhost:11434"),
//	    ai.WithModel("nomic-embed-text"),
//	    ai.WithDimension(768),
//	)
//	primary, err := ollama.NewEmbedder(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fallback, _ := hashing.NewEmbedder(768)
//	normalizer, _ := ai.NewNormalizer(768, ai.PolicyPadTruncate, true)
//	embedder, err := ai.NewResilient(primary, ai.ResilientConfig{
//	    Name:       "ollama",
//	    Fallback:   fallback,
//	    Normalizer: normalizer,
//	    Backoff:    ai.DefaultBackoff(),
//	})
package ai
