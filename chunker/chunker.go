package chunker

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/threadbase/core"
)

// DefaultMaxChars is the chunk length threshold used when none is configured.
const DefaultMaxChars = 1000

// Chunker folds messages into chunks of at most maxChars runes.
type Chunker struct {
	maxChars int
}

// New creates a Chunker with the given maximum chunk length in runes.
func New(maxChars int) (*Chunker, error) {
	if maxChars < 1 {
		return nil, ErrInvalidMaxChars
	}
	return &Chunker{maxChars: maxChars}, nil
}

// MaxChars returns the configured maximum chunk length.
func (c *Chunker) MaxChars() int {
	return c.maxChars
}

// builder accumulates the chunk currently being formed.
type builder struct {
	text       strings.Builder
	runes      int
	authorName string
	authorType core.AuthorType
	timestamp  time.Time
}

func (b *builder) sameAuthor(msg *core.Message) bool {
	return b.authorName == msg.AuthorName && b.authorType == msg.AuthorType
}

// Chunk converts messages into chunks with order indexes 0..n-1.
// An empty input yields an empty slice.
func (c *Chunker) Chunk(messages []core.Message) []core.Chunk {
	chunks := make([]core.Chunk, 0, len(messages))
	var cur *builder

	flush := func() {
		if cur == nil {
			return
		}
		chunks = append(chunks, core.Chunk{
			OrderIndex: len(chunks),
			Text:       cur.text.String(),
			AuthorName: cur.authorName,
			AuthorType: cur.authorType,
			Timestamp:  cur.timestamp,
		})
		cur = nil
	}
	start := func(msg *core.Message, text string, n int) {
		cur = &builder{
			runes:      n,
			authorName: msg.AuthorName,
			authorType: msg.AuthorType,
			timestamp:  msg.Timestamp,
		}
		cur.text.WriteString(text)
	}

	for i := range messages {
		msg := &messages[i]
		n := utf8.RuneCountInString(msg.Text)

		if n > c.maxChars {
			flush()
			pieces := c.split(msg.Text)
			for _, piece := range pieces[:len(pieces)-1] {
				start(msg, piece, utf8.RuneCountInString(piece))
				flush()
			}
			last := pieces[len(pieces)-1]
			start(msg, last, utf8.RuneCountInString(last))
			continue
		}

		if cur != nil && cur.sameAuthor(msg) && cur.runes+1+n <= c.maxChars {
			cur.text.WriteByte('\n')
			cur.text.WriteString(msg.Text)
			cur.runes += 1 + n
			continue
		}

		flush()
		start(msg, msg.Text, n)
	}
	flush()

	return chunks
}

// split cuts text into pieces of at most maxChars runes. Each cut is placed after the last
// whitespace inside the window when there is one, otherwise exactly at the window end.
// Concatenating the pieces yields text.
func (c *Chunker) split(text string) []string {
	runes := []rune(text)
	var pieces []string
	for len(runes) > c.maxChars {
		cut := c.maxChars
		for j := c.maxChars - 1; j > 0; j-- {
			if unicode.IsSpace(runes[j]) {
				cut = j + 1
				break
			}
		}
		pieces = append(pieces, string(runes[:cut]))
		runes = runes[cut:]
	}
	return append(pieces, string(runes))
}
