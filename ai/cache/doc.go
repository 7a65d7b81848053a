// Package cache provides ai.VectorCache implementations for ai.NewCached.
//
// Memory keeps vectors in process with a cost-bounded ristretto cache. Redis shares them
// between processes; vectors are stored as little-endian float32 bytes.
package cache
