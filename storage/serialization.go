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


package storage

import (
	"fmt"

	"github.com/mus-format/mus-go/raw"
	"github.com/poiesic/threadbase/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: id: %w", ErrSerializationFailed, err)
	}
	return id, nil
}

// MarshalConversation serializes a Conversation without its chunks.
func MarshalConversation(conv *core.Conversation) []byte {
	buf := make([]byte, core.ConversationMUS.Size(*conv))
	core.ConversationMUS.Marshal(*conv, buf)
	return buf
}

// UnmarshalConversation deserializes a Conversation.
func UnmarshalConversation(data []byte) (*core.Conversation, error) {
	conv, _, err := core.ConversationMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: conversation: %w", ErrSerializationFailed, err)
	}
	return &conv, nil
}

// MarshalChunk serializes a Chunk including its embedding.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, core.ChunkMUS.Size(*chunk))
	core.ChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a Chunk.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	chunk, _, err := core.ChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk: %w", ErrSerializationFailed, err)
	}
	return &chunk, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	buf := make([]byte, core.CheckpointMUS.Size(*checkpoint))
	core.CheckpointMUS.Marshal(*checkpoint, buf)
	return buf
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	checkpoint, _, err := core.CheckpointMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: checkpoint: %w", ErrSerializationFailed, err)
	}
	return &checkpoint, nil
}

// EncodeVector converts a vector to raw float32 values for BLOB columns.
// A nil vector encodes to nil.
func EncodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, len(v)*raw.Float32.Size(0))
	n := 0
	for _, f := range v {
		n += raw.Float32.Marshal(f, buf[n:])
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(buf []byte) ([]float32, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	size := raw.Float32.Size(0)
	if len(buf)%size != 0 {
		return nil, fmt.Errorf("%w: vector blob of %d bytes", ErrSerializationFailed, len(buf))
	}
	v := make([]float32, len(buf)/size)
	for i, n := 0, 0; i < len(v); i++ {
		f, n1, err := raw.Float32.Unmarshal(buf[n:])
		if err != nil {
			return nil, fmt.Errorf("%w: vector: %w", ErrSerializationFailed, err)
		}
		v[i] = f
		n += n1
	}
	return v, nil
}
