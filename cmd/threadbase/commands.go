package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/threadbase"
	"github.com/poiesic/threadbase/config"
	"github.com/poiesic/threadbase/core"
	"github.com/poiesic/threadbase/reembed"
	"github.com/poiesic/threadbase/search"
	"github.com/urfave/cli/v2"
)

var errUsage = errors.New("invalid arguments")

func ingestCommand(c *cli.Context) error {
	req, err := readTranscript(c.String("file"))
	if err != nil {
		return err
	}
	if c.IsSet("title") {
		req.Title = c.String("title")
	}
	if c.IsSet("url") {
		req.SourceURL = c.String("url")
	}
	req.ConversationID = core.ID(c.Uint64("id"))

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := db.Ingest(c.Context, req)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Ingested conversation %d (%d chunks)\n", res.ConversationID, res.ChunksCreated)
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: search needs a query", errUsage)
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	var monitor search.SearchMonitor
	if c.Bool("verbose") {
		monitor = &stageMonitor{c: c}
	}
	threshold := float32(c.Float64("threshold"))
	if c.IsSet("threshold") && threshold == 0 {
		threshold = threadbase.NoThreshold
	}
	results, err := db.SearchWithMonitor(c.Context, query, c.Int("top-k"), threshold, monitor)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "No results")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(c.App.Writer, "%d. [%.3f] %s (conversation %d, chunk %d)\n", i+1, r.RelevanceScore, r.ConversationTitle, r.ConversationID, r.OrderIndex)
		fmt.Fprintf(c.App.Writer, "   %s (%s): %s\n", r.AuthorName, r.AuthorType, r.Text)
	}
	return nil
}

func getCommand(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	conv, err := db.GetConversation(c.Context, id)
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "Conversation %d: %s\n", conv.ID, conv.Title)
	if conv.SourceURL != "" {
		fmt.Fprintf(w, "Source: %s\n", conv.SourceURL)
	}
	fmt.Fprintf(w, "Created: %s\n", conv.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Updated: %s\n\n", conv.UpdatedAt.Format(time.RFC3339))
	for _, chunk := range conv.Chunks {
		fmt.Fprintf(w, "[%d] %s (%s) %s\n%s\n\n", chunk.OrderIndex, chunk.AuthorName, chunk.AuthorType, chunk.Timestamp.Format(time.RFC3339), chunk.Text)
	}
	return nil
}

func listCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	convs, err := db.ListConversations(c.Context, c.Int("offset"), c.Int("limit"))
	if err != nil {
		return err
	}
	for _, conv := range convs {
		fmt.Fprintf(c.App.Writer, "%d\t%s\t%s\n", conv.ID, conv.CreatedAt.Format(time.RFC3339), conv.Title)
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteConversation(c.Context, id); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted conversation %d\n", id)
	return nil
}

func reembedCommand(c *cli.Context) error {
	cfg := loadedConfig(c)
	rcfg := reembed.DefaultConfig()
	rcfg.BatchSize = c.Int("batch-size")
	rcfg.ReportInterval = c.Int("report-interval")
	rcfg.Restart = c.Bool("restart")
	rcfg.Backoff = cfg.Backoff()
	if err := rcfg.Validate(); err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintf(c.App.ErrWriter, "Storage: %s %s\n", cfg.Storage.Backend, cfg.Storage.Path)
	fmt.Fprintf(c.App.ErrWriter, "Embedding provider: %s %s\n", cfg.Embedding.Provider, cfg.Embedding.Model)
	fmt.Fprintln(c.App.ErrWriter)

	stats, err := db.Reembed(c.Context, rcfg, c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Reembedded %d chunks in %d batches\n", stats.Processed, stats.Batches)
	return nil
}

func configShowCommand(c *cli.Context) error {
	data, err := loadedConfig(c).Marshal(c.String("format"))
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(data)
	return err
}

func configEnvCommand(c *cli.Context) error {
	for _, name := range config.EnvNames() {
		fmt.Fprintln(c.App.Writer, name)
	}
	return nil
}

func idArg(c *cli.Context) (core.ID, error) {
	if c.NArg() != 1 {
		return 0, fmt.Errorf("%w: expected one conversation ID", errUsage)
	}
	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid conversation ID %q", errUsage, c.Args().First())
	}
	return core.ID(id), nil
}

// stageMonitor reports search stages on the error stream.
type stageMonitor struct {
	c       *cli.Context
	started time.Time
}

var _ search.SearchMonitor = (*stageMonitor)(nil)

func (m *stageMonitor) Start(query string, topK int, minRelevance float32) {
	m.started = time.Now()
	fmt.Fprintf(m.c.App.ErrWriter, "query=%q top_k=%d min_relevance=%.2f\n", query, topK, minRelevance)
}

func (m *stageMonitor) AfterQueryEmbedding(vector []float32) {
	fmt.Fprintf(m.c.App.ErrWriter, "embedded query (%d dims) in %s\n", len(vector), time.Since(m.started))
}

func (m *stageMonitor) AfterSimilaritySearch(hits []*core.ScoredChunk) {
	fmt.Fprintf(m.c.App.ErrWriter, "similarity search returned %d hits\n", len(hits))
	for _, h := range hits {
		fmt.Fprintf(m.c.App.ErrWriter, "  chunk %d distance=%.4f score=%.4f\n", h.Chunk.ID, h.Distance, h.Score)
	}
}

func (m *stageMonitor) Finish(results []*core.SearchResult) {
	fmt.Fprintf(m.c.App.ErrWriter, "%d results in %s\n\n", len(results), time.Since(m.started))
}
