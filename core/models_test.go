package core

import (
	"testing"
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "same content produces same ID", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	if IDFromContent("content1") == IDFromContent("content2") {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestParseAuthorType(t *testing.T) {
	tests := []struct {
		in   string
		want AuthorType
	}{
		{"human", AuthorTypeHuman},
		{"User", AuthorTypeHuman},
		{" assistant ", AuthorTypeAssistant},
		{"ai", AuthorTypeAssistant},
		{"bot", AuthorTypeAssistant},
		{"system", AuthorTypeSystem},
		{"tool", AuthorTypeSystem},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAuthorType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NotEqual(t, "unknown", got.String())
		})
	}

	_, err := ParseAuthorType("robot overlord")
	assert.ErrorIs(t, err, ErrInvalidAuthorType)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAuthorType_StringUnknown(t *testing.T) {
	assert.Equal(t, "unknown", AuthorType(0).String())
	assert.Equal(t, "unknown", AuthorType(42).String())
}

func TestChunk_HasEmbedding(t *testing.T) {
	c := Chunk{Text: "hi"}
	assert.False(t, c.HasEmbedding())
	c.Embedding = []float32{0.1}
	assert.True(t, c.HasEmbedding())
}

func TestChunk_HasZeroEmbedding(t *testing.T) {
	c := Chunk{Text: "hi"}
	assert.False(t, c.HasZeroEmbedding())
	c.Embedding = []float32{0, 0, 0}
	assert.True(t, c.HasZeroEmbedding())
	c.Embedding[2] = -0.01
	assert.False(t, c.HasZeroEmbedding())
}

func TestConversationMUS_PreservesFields(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 30, 0, 123456000, time.UTC)
	conv := Conversation{
		ID:            77,
		Title:         "Planning the offsite",
		SourceURL:     "https://chat.example.com/c/77",
		OriginalTitle: "Offsite",
		CreatedAt:     created,
		UpdatedAt:     created.Add(time.Hour),
		Chunks:        []Chunk{{Text: "not encoded"}},
	}

	bs := make([]byte, ConversationMUS.Size(conv))
	n := ConversationMUS.Marshal(conv, bs)
	require.Equal(t, len(bs), n)

	got, read, err := ConversationMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Equal(t, n, read)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, conv.Title, got.Title)
	assert.Equal(t, conv.SourceURL, got.SourceURL)
	assert.Equal(t, conv.OriginalTitle, got.OriginalTitle)
	assert.True(t, conv.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, conv.UpdatedAt.Equal(got.UpdatedAt))
	assert.Nil(t, got.Chunks, "chunks are stored separately")
}

func TestChunkMUS_Embedding(t *testing.T) {
	chunk := Chunk{
		ID:             9,
		ConversationID: 3,
		OrderIndex:     4,
		Text:           "naïve café ☕",
		AuthorName:     "ana",
		AuthorType:     AuthorTypeAssistant,
		Timestamp:      time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC),
		Embedding:      []float32{0.25, -1.5, 3.75e-7},
	}

	bs := make([]byte, ChunkMUS.Size(chunk))
	ChunkMUS.Marshal(chunk, bs)

	got, _, err := ChunkMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Equal(t, chunk, got)

	chunk.Embedding = nil
	chunk.Timestamp = time.Time{}
	bs = make([]byte, ChunkMUS.Size(chunk))
	ChunkMUS.Marshal(chunk, bs)
	got, _, err = ChunkMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Nil(t, got.Embedding)
	assert.True(t, got.Timestamp.IsZero())
}

func TestChunkMUS_Truncated(t *testing.T) {
	chunk := Chunk{ID: 1, ConversationID: 1, Text: "x", Embedding: []float32{1, 2, 3}}
	bs := make([]byte, ChunkMUS.Size(chunk))
	ChunkMUS.Marshal(chunk, bs)

	_, _, err := ChunkMUS.Unmarshal(bs[:len(bs)-2])
	require.Error(t, err)
	assert.ErrorIs(t, err, mus.ErrTooSmallByteSlice)
}

func TestCheckpointMUS(t *testing.T) {
	cp := Checkpoint{Name: "reembed", LastID: 1 << 40, UpdatedAt: time.Date(2025, 5, 5, 5, 5, 5, 0, time.UTC)}
	bs := make([]byte, CheckpointMUS.Size(cp))
	CheckpointMUS.Marshal(cp, bs)

	got, _, err := CheckpointMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Equal(t, cp, got)
}

func TestVectorMUS(t *testing.T) {
	v := []float32{1, -2.5, 3.25}
	bs := make([]byte, VectorMUS.Size(v))
	n := VectorMUS.Marshal(v, bs)
	require.Equal(t, len(bs), n)
	assert.Len(t, bs, 1+3*4)

	// Elements are plain raw float32 values after the length prefix.
	f, _, err := raw.Float32.Unmarshal(bs[1+4:])
	require.NoError(t, err)
	assert.Equal(t, float32(-2.5), f)

	got, n, err := VectorMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Equal(t, len(bs), n)
	assert.Equal(t, v, got)

	t.Run("empty decodes as nil", func(t *testing.T) {
		bs := make([]byte, VectorMUS.Size([]float32{}))
		VectorMUS.Marshal([]float32{}, bs)
		got, _, err := VectorMUS.Unmarshal(bs)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("length beyond input", func(t *testing.T) {
		bs := make([]byte, varint.PositiveInt.Size(1<<40))
		varint.PositiveInt.Marshal(1<<40, bs)
		_, _, err := VectorMUS.Unmarshal(bs)
		assert.ErrorIs(t, err, mus.ErrTooSmallByteSlice)
	})
}

func TestTimeMUS_ZeroAndUTC(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2025, 3, 4, 5, 6, 7, 8000, zone)

	bs := make([]byte, timeMUS.Size(ts))
	timeMUS.Marshal(ts, bs)
	got, _, err := timeMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))
	assert.Equal(t, time.UTC, got.Location())

	bs = make([]byte, timeMUS.Size(time.Time{}))
	timeMUS.Marshal(time.Time{}, bs)
	got, _, err = timeMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
