// Package reembed recomputes the embeddings of stored chunks.
//
// It is used to attach vectors to chunks that were stored without them and to
// move a database to a different embedding provider. Chunks are walked in
// ascending ID order in batches; after each batch is written a named checkpoint
// records the last chunk ID, so an interrupted run resumes where it stopped.
// A completed run resets the checkpoint.
package reembed
