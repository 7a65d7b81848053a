package storage

import (
	"testing"
	"time"

	"github.com/poiesic/threadbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"content-based ID", core.IDFromContent("test content")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestUnmarshalID_Invalid(t *testing.T) {
	_, err := UnmarshalID([]byte{})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalUnmarshalConversation(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	conv := &core.Conversation{
		ID:            7,
		Title:         "Deploy retro",
		SourceURL:     "https://chat.example.com/c/7",
		OriginalTitle: "deploy-retro",
		CreatedAt:     now,
		UpdatedAt:     now.Add(time.Minute),
		Chunks:        []core.Chunk{{Text: "not stored"}},
	}

	decoded, err := UnmarshalConversation(MarshalConversation(conv))
	require.NoError(t, err)
	assert.Equal(t, conv.ID, decoded.ID)
	assert.Equal(t, conv.Title, decoded.Title)
	assert.Equal(t, conv.SourceURL, decoded.SourceURL)
	assert.Equal(t, conv.OriginalTitle, decoded.OriginalTitle)
	assert.True(t, conv.CreatedAt.Equal(decoded.CreatedAt))
	assert.True(t, conv.UpdatedAt.Equal(decoded.UpdatedAt))
	assert.Empty(t, decoded.Chunks)
}

func TestMarshalUnmarshalChunk(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	tests := []struct {
		name  string
		chunk *core.Chunk
	}{
		{
			name: "with embedding",
			chunk: &core.Chunk{
				ID: 3, ConversationID: 1, OrderIndex: 2,
				Text: "hello\nthere", AuthorName: "ana", AuthorType: core.AuthorTypeHuman,
				Timestamp: now, Embedding: []float32{0.25, -1, 3.5},
			},
		},
		{
			name: "without embedding",
			chunk: &core.Chunk{
				ID: 4, ConversationID: 1, OrderIndex: 3,
				Text: "ok", AuthorName: "bot", AuthorType: core.AuthorTypeAssistant,
				Timestamp: now,
			},
		},
		{
			name:  "unicode text",
			chunk: &core.Chunk{ID: 5, Text: "日本語 ✓", AuthorType: core.AuthorTypeSystem},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := UnmarshalChunk(MarshalChunk(tt.chunk))
			require.NoError(t, err)
			assert.Equal(t, tt.chunk.ID, decoded.ID)
			assert.Equal(t, tt.chunk.ConversationID, decoded.ConversationID)
			assert.Equal(t, tt.chunk.OrderIndex, decoded.OrderIndex)
			assert.Equal(t, tt.chunk.Text, decoded.Text)
			assert.Equal(t, tt.chunk.AuthorName, decoded.AuthorName)
			assert.Equal(t, tt.chunk.AuthorType, decoded.AuthorType)
			assert.True(t, tt.chunk.Timestamp.Equal(decoded.Timestamp))
			assert.Equal(t, tt.chunk.Embedding, decoded.Embedding)
		})
	}
}

func TestUnmarshalChunk_Truncated(t *testing.T) {
	data := MarshalChunk(&core.Chunk{ID: 1, Text: "some text", Embedding: []float32{1, 2}})
	_, err := UnmarshalChunk(data[:len(data)-3])
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalUnmarshalCheckpoint(t *testing.T) {
	cp := &core.Checkpoint{Name: "reembed", LastID: 99, UpdatedAt: time.Now().UTC().Truncate(time.Microsecond)}

	decoded, err := UnmarshalCheckpoint(MarshalCheckpoint(cp))
	require.NoError(t, err)
	assert.Equal(t, cp.Name, decoded.Name)
	assert.Equal(t, cp.LastID, decoded.LastID)
	assert.True(t, cp.UpdatedAt.Equal(decoded.UpdatedAt))
}

func TestEncodeDecodeVector(t *testing.T) {
	v := []float32{1.5, -0.25, 0, 42}
	buf := EncodeVector(v)
	assert.Len(t, buf, 16)

	decoded, err := DecodeVector(buf)
	require.NoError(t, err)
	assert.Equal(t, v, decoded)

	assert.Nil(t, EncodeVector(nil))
	decoded, err = DecodeVector(nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
