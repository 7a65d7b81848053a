package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/ingestion"
)

// transcript is the JSON form accepted by the ingest command.
type transcript struct {
	Title         string              `json:"title"`
	SourceURL     string              `json:"source_url"`
	OriginalTitle string              `json:"original_title"`
	Messages      []transcriptMessage `json:"messages"`
}

type transcriptMessage struct {
	Text       string    `json:"text"`
	AuthorName string    `json:"author_name"`
	AuthorType string    `json:"author_type"`
	Timestamp  time.Time `json:"timestamp"`
}

var stdin io.Reader = os.Stdin

func readTranscript(path string) (*ingestion.Request, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var t transcript
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("decoding transcript: %w", err)
	}
	return t.request()
}

func (t *transcript) request() (*ingestion.Request, error) {
	req := &ingestion.Request{
		Title:         t.Title,
		SourceURL:     t.SourceURL,
		OriginalTitle: t.OriginalTitle,
		Messages:      make([]core.Message, len(t.Messages)),
	}
	for i, m := range t.Messages {
		authorType, err := core.ParseAuthorType(m.AuthorType)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		req.Messages[i] = core.Message{
			Text:       m.Text,
			AuthorName: m.AuthorName,
			AuthorType: authorType,
			Timestamp:  m.Timestamp,
		}
	}
	return req, nil
}
