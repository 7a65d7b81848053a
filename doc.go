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


// Package threadbase is a conversational knowledge base: it ingests chat
// transcripts, splits them into chunks, embeds every chunk and answers
// natural-language queries with the most relevant chunks.
//
// Database wires the pieces together from a config.Config:
//
//	cfg, err := config.Load("threadbase.yaml")
//	if err != nil {
//		return err
//	}
//	db, err := threadbase.Open(cfg)
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	res, err := db.Ingest(ctx, &ingestion.Request{Title: "standup", Messages: msgs})
//	hits, err := db.Search(ctx, "who owns the deploy", 5, 0)
//
// The building blocks live in their own packages: chunker, ai (embedding
// providers and the fallback chain), storage (badger, sqlite and postgres
// stores), ingestion, search and reembed.
package threadbase
