// Package sqlite implements storage.Repository on SQLite through the pure-Go
// modernc.org/sqlite driver.
//
// Conversations and chunks live in relational tables with a real foreign key
// (ON DELETE CASCADE) and a UNIQUE (conversation_id, order_index) constraint.
// Embeddings are little-endian float32 BLOBs; similarity search is an exact scan
// ranked by storage.Ranker, which suits local, single-user volumes.
//
// The schema is created by the embedded migrations on open.
package sqlite
