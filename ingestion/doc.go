// Package ingestion turns conversation transcripts into stored, embedded chunks.
//
// Pipeline.Ingest runs synchronously: validate the request, chunk the messages,
// embed every chunk in one provider call, then persist the conversation and its
// chunks in a single transaction. Nothing is persisted unless every step succeeds,
// so a failed request can be retried as is.
//
// Pipeline.IngestBatch runs independent requests concurrently on a worker pool.
// Each request gets an ingest ID (a UUID) that tags its log lines.
package ingestion
