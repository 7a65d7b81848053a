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


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/poiesic/threadbase"
	"github.com/poiesic/threadbase/config"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "threadbase",
		Usage: "Searchable knowledge base for conversation transcripts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or TOML config file",
				Value:   "threadbase.yaml",
				EnvVars: []string{config.EnvPrefix + "CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json)",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Chunk, embed and store a conversation transcript",
				Action:    ingestCommand,
				ArgsUsage: " ",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Transcript JSON file, or - for stdin",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Override the transcript title",
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "Override the transcript source URL",
					},
					&cli.Uint64Flag{
						Name:  "id",
						Usage: "Replace the conversation with this ID",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Find the chunks most relevant to a query",
				Action:    searchCommand,
				ArgsUsage: "QUERY...",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Maximum number of results (0 uses the configured default)",
					},
					&cli.Float64Flag{
						Name:    "threshold",
						Aliases: []string{"t"},
						Usage:   "Minimum relevance score in [0, 1]; an explicit 0 disables the configured minimum",
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Report intermediate search stages",
					},
				},
			},
			{
				Name:      "get",
				Usage:     "Print a conversation and its chunks",
				Action:    getCommand,
				ArgsUsage: "ID",
			},
			{
				Name:   "list",
				Usage:  "List stored conversations, newest first",
				Action: listCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Number of conversations to skip",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of conversations",
						Value: 20,
					},
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a conversation and its chunks",
				Action:    deleteCommand,
				ArgsUsage: "ID",
			},
			{
				Name:   "reembed",
				Usage:  "Recompute every chunk embedding with the configured provider",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.BoolFlag{
						Name:  "restart",
						Usage: "Ignore any saved checkpoint and start from the first chunk",
					},
				},
			},
			{
				Name:  "config",
				Usage: "Inspect the effective configuration",
				Subcommands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "Print the effective configuration with secrets redacted",
						Action: configShowCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "format",
								Usage: "Output format (yaml, toml)",
								Value: "yaml",
							},
						},
					},
					{
						Name:   "env",
						Usage:  "List the environment variables that override the config file",
						Action: configEnvCommand,
					},
				},
			},
		},
	}
}

// setup loads the configuration and installs the process logger.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}

	logger, err := cfg.Log.NewLogger(c.App.ErrWriter)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func loadedConfig(c *cli.Context) *config.Config {
	cfg, _ := c.App.Metadata[configKey].(*config.Config)
	return cfg
}

func openDatabase(c *cli.Context) (*threadbase.Database, error) {
	db, err := threadbase.Open(loadedConfig(c), threadbase.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
