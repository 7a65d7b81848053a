// Package postgres implements storage.Repository on PostgreSQL with the pgvector
// extension, using a pgx connection pool.
//
// Chunk embeddings live in a vector(D) column indexed with HNSW (vector_l2_ops).
// Similarity search lets the index pick nearest-neighbor candidates with the <->
// operator, then ranks them with storage.Ranker so ordering and scores match the
// embedded backends exactly. The store is dimension-bound: vectors of any other
// length are rejected with storage.ErrDimensionMismatch.
package postgres
