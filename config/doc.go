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


// Package config loads the process-level configuration of threadbase.
//
// A configuration file is YAML (.yaml, .yml) or TOML (.toml). Values missing
// from the file keep their defaults, THREADBASE_* environment variables
// override the file, and the result is validated once. The configuration is
// immutable for the lifetime of the process.
//
// Example YAML:
//
//	storage:
//	  backend: sqlite
//	  path: /var/lib/threadbase/threadbase.db
//	embedding:
//	  provider: ollama
//	  host: http://localhost:11434
//	  model: nomic-embed-text
//	  dimension: 768
//	  timeout: 30s
//	  retry:
//	    max_retries: 3
//	    base_delay: 1s
//	chunking:
//	  max_chars: 1000
package config
