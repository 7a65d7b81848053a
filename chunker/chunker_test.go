package chunker

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/threadbase/core"
)

func human(name, text string) core.Message {
	return core.Message{Text: text, AuthorName: name, AuthorType: core.AuthorTypeHuman}
}

func assistant(text string) core.Message {
	return core.Message{Text: text, AuthorName: "assistant", AuthorType: core.AuthorTypeAssistant}
}

func requireContiguous(t *testing.T, chunks []core.Chunk, maxChars int) {
	t.Helper()
	for i, c := range chunks {
		require.Equal(t, i, c.OrderIndex)
		require.NotEmpty(t, c.Text)
		require.LessOrEqual(t, utf8.RuneCountInString(c.Text), maxChars, "chunk %d too long", i)
	}
}

func TestNew(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidMaxChars)
	_, err = New(-5)
	assert.ErrorIs(t, err, ErrInvalidMaxChars)

	c, err := New(DefaultMaxChars)
	require.NoError(t, err)
	assert.Equal(t, 1000, c.MaxChars())
}

func TestChunk_Empty(t *testing.T) {
	c, _ := New(100)
	chunks := c.Chunk(nil)
	require.NotNil(t, chunks)
	assert.Empty(t, chunks)
}

func TestChunk_SameAuthorAggregated(t *testing.T) {
	c, _ := New(DefaultMaxChars)
	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	msgs := []core.Message{human("ann", "first"), human("ann", "second"), human("ann", "third")}
	msgs[0].Timestamp = ts
	msgs[1].Timestamp = ts.Add(time.Minute)

	chunks := c.Chunk(msgs)

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].OrderIndex)
	assert.Equal(t, "first\nsecond\nthird", chunks[0].Text)
	assert.Equal(t, "ann", chunks[0].AuthorName)
	assert.Equal(t, core.AuthorTypeHuman, chunks[0].AuthorType)
	assert.Equal(t, ts, chunks[0].Timestamp)
}

func TestChunk_AuthorChangeForcesBoundary(t *testing.T) {
	c, _ := New(DefaultMaxChars)
	msgs := []core.Message{
		human("ann", "question one"),
		assistant("answer one"),
		assistant("more detail"),
		human("ann", "thanks"),
		human("bob", "me too"),
	}

	chunks := c.Chunk(msgs)

	require.Len(t, chunks, 4)
	requireContiguous(t, chunks, DefaultMaxChars)
	assert.Equal(t, "question one", chunks[0].Text)
	assert.Equal(t, "answer one\nmore detail", chunks[1].Text)
	assert.Equal(t, "thanks", chunks[2].Text)
	assert.Equal(t, "me too", chunks[3].Text)
	assert.Equal(t, "bob", chunks[3].AuthorName)
}

func TestChunk_ThresholdForcesBoundary(t *testing.T) {
	c, _ := New(10)
	chunks := c.Chunk([]core.Message{human("a", "12345"), human("a", "1234"), human("a", "xyz")})

	require.Len(t, chunks, 2)
	assert.Equal(t, "12345\n1234", chunks[0].Text)
	assert.Equal(t, "xyz", chunks[1].Text)
}

func TestChunk_OversizeMessageSplit(t *testing.T) {
	c, _ := New(DefaultMaxChars)
	word := "lorem ipsum dolor sit amet "
	text := strings.Repeat(word, 2500/len(word)+1)[:2500]

	chunks := c.Chunk([]core.Message{human("ann", text)})

	require.Greater(t, len(chunks), 1)
	requireContiguous(t, chunks, DefaultMaxChars)

	var rebuilt strings.Builder
	for _, ch := range chunks {
		rebuilt.WriteString(ch.Text)
	}
	assert.Equal(t, text, rebuilt.String())
	for _, ch := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(ch.Text, " "), "cut should follow whitespace: %q", ch.Text[len(ch.Text)-5:])
	}
}

func TestChunk_HardCutWithoutWhitespace(t *testing.T) {
	c, _ := New(4)
	chunks := c.Chunk([]core.Message{human("ann", "ééééééééé")})

	require.Len(t, chunks, 3)
	assert.Equal(t, "éééé", chunks[0].Text)
	assert.Equal(t, "éééé", chunks[1].Text)
	assert.Equal(t, "é", chunks[2].Text)
	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch.Text))
	}
}

func TestChunk_SplitTailKeepsAccumulating(t *testing.T) {
	c, _ := New(10)
	chunks := c.Chunk([]core.Message{
		human("ann", "hi"),
		human("ann", "abcdefghijkl"),
		human("ann", "ok"),
		assistant("sure"),
	})

	require.Len(t, chunks, 4)
	requireContiguous(t, chunks, 10)
	assert.Equal(t, "hi", chunks[0].Text)
	assert.Equal(t, "abcdefghij", chunks[1].Text)
	assert.Equal(t, "kl\nok", chunks[2].Text)
	assert.Equal(t, "sure", chunks[3].Text)
}

func TestChunk_Deterministic(t *testing.T) {
	c, _ := New(50)
	msgs := []core.Message{
		human("ann", strings.Repeat("word ", 30)),
		assistant("reply"),
		assistant(strings.Repeat("x", 120)),
	}
	assert.Equal(t, c.Chunk(msgs), c.Chunk(msgs))
}
