// Package ollama provides an ai.Embedder for models served by a local Ollama instance.
//
// It talks to the native /api/embed endpoint through langchaingo. Timeouts and connection
// failures are reported as transient *ai.ProviderError values; unknown models as permanent.
package ollama
