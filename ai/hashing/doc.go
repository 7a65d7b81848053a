// Package hashing provides a fast local embedder based on feature hashing.
//
// It is deterministic, needs no external service and is the default fallback when the
// configured provider is unavailable. Quality is lexical rather than semantic.
package hashing
