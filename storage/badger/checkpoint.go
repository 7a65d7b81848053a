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


package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/storage"
)

// SaveCheckpoint persists a named checkpoint.
func (r *Repository) SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error {
	if checkpoint == nil || checkpoint.Name == "" {
		return fmt.Errorf("%w: checkpoint name is required", core.ErrValidation)
	}

	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		checkpoint.UpdatedAt = time.Now().UTC()
		key := makeCheckpointKey(checkpoint.Name)
		value := storage.MarshalCheckpoint(checkpoint)
		return tx.Set(key, value)
	}, true)
	return storage.Wrap("save checkpoint", err)
}

// LoadCheckpoint retrieves a checkpoint by name.
// Returns nil, nil if no checkpoint exists.
func (r *Repository) LoadCheckpoint(ctx context.Context, name string) (*core.Checkpoint, error) {
	var checkpoint *core.Checkpoint
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		item, err := tx.Get(makeCheckpointKey(name))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			checkpoint, unmarshalErr = storage.UnmarshalCheckpoint(val)
			return unmarshalErr
		})
	}, false)
	if err != nil {
		return nil, storage.Wrap("load checkpoint", err)
	}
	return checkpoint, nil
}
