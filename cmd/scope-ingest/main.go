package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/civintel/cityledger_backend/config"
	"github.com/civintel/cityledger_backend/ingest"
	"github.com/civintel/cityledger_backend/scoring"
	"github.com/civintel/cityledger_backend/workflow"
)

// scope-ingest runs the configured connectors for one scope from the command
// line, optionally recomputing scores afterwards. Intended for cron-style
// batch runs off-hours; it takes the same per-scope job locks as the API.
func main() {
	scopeKey := flag.String("scope", "", "Required: scope key to ingest")
	score := flag.Bool("score", false, "Recompute scores after ingestion")
	flag.Parse()

	if strings.TrimSpace(*scopeKey) == "" {
		fmt.Fprintln(os.Stderr, "--scope is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if err := config.LoadScopeConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "load scope config: %v\n", err)
		os.Exit(1)
	}

	logger := config.GetLogger()
	ctx := context.Background()

	var summary *ingest.Summary
	err := workflow.WithScopeLock(ctx, "ingest", *scopeKey, func(ctx context.Context) error {
		var err error
		summary, err = ingest.New(db, logger).RunConfigured(ctx, *scopeKey)
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("ingest complete: entities=%d payments=%d evidence=%d review_queued=%d\n",
		summary.Entities, summary.Payments, summary.Evidence, summary.ReviewQueued)

	if *score {
		var scored int
		err := workflow.WithScopeLock(ctx, "score", *scopeKey, func(ctx context.Context) error {
			var err error
			scored, err = scoring.NewEngine(db, logger).Recompute(ctx, *scopeKey)
			return err
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "score recompute failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("score recompute complete: scored=%d\n", scored)
	}
}
