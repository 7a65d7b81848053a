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


// Package openai provides an ai.Embedder for OpenAI-compatible embedding APIs.
//
// The embedder uses the langchaingo library to talk to OpenAI or any compatible service
// (Ollama's /v1 endpoint, LocalAI, vLLM). It is the metered remote provider: calls are
// paced with a token bucket when RequestsPerSecond is set, and every call runs under the
// configured timeout.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithHost("https://api.openai.com"), // /v1 added automatically
//	    ai.WithModel("text-embedding-3-small"),
//	    ai.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    ai.WithDimension(1536),
//	    ai.WithRateLimit(5, 5),
//	)
//	embedder, err := openai.NewEmbedder(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vectors, err := embedder.EmbedTexts(ctx, []string{"hello", "world"})
//
// Failures are returned as *ai.ProviderError so callers can tell transient problems
// (rate limits, timeouts, 5xx) from permanent ones (bad key, unknown model).
//
// # Thread Safety
//
// The Embedder is safe for concurrent use. The HTTP client is created once, on the first
// request.
package openai
