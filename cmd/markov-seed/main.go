// Command markov-seed bootstraps the Markov Generator's relational store
// from a plain-text corpus file, supplementing the out-of-scope offline
// ingestion pipeline so the repository is self-contained for local
// development: `markov-seed -corpus words.txt`.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/rhamenator/antiscrape/internal/config"
	"github.com/rhamenator/antiscrape/internal/markov"
)

func main() {
	corpusPath := flag.String("corpus", "", "path to a plain-text corpus file")
	flag.Parse()

	if *corpusPath == "" {
		log.Fatal("markov-seed: -corpus is required")
	}

	cfg := config.Get()

	store, err := markov.Open(cfg.Markov.DatabaseURL)
	if err != nil {
		log.Fatalf("markov-seed: failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("markov-seed: schema migration failed: %v", err)
	}

	f, err := os.Open(*corpusPath)
	if err != nil {
		log.Fatalf("markov-seed: failed to open corpus file: %v", err)
	}
	defer f.Close()

	count, err := store.LoadCorpus(ctx, f)
	if err != nil {
		log.Fatalf("markov-seed: corpus load failed after %d tokens: %v", count, err)
	}
	slog.Info("markov-seed: corpus loaded", "tokens", count, "corpus", *corpusPath)
}
