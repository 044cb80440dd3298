// Command yggdrasil is the CLI for the semantic index engine: project
// management, node indexing, search, link suggestion, and the interaction
// log.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/orneryd/yggdrasil/pkg/config"
	"github.com/orneryd/yggdrasil/pkg/yggdrasil"
)

var (
	flagConfig  string
	flagDataDir string
)

func main() {
	// Best effort; a missing .env is not an error.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "yggdrasil",
		Short: "Local-first semantic index and retrieval engine",
		Long: `Yggdrasil indexes embedded notes into per-project spatial indexes and
serves cross-project semantic search, typed link suggestions, and a
decay-weighted interaction memory. All state lives in a local database;
the only network dependency is the optional embedding provider.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "override the storage directory")

	root.AddCommand(
		newProjectCmd(),
		newIndexCmd(),
		newSearchCmd(),
		newSuggestCmd(),
		newLinkCmd(),
		newInteractionsCmd(),
		newStatsCmd(),
		newReindexCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// openDB loads config (flags over env over file) and opens the engine.
func openDB() (*yggdrasil.DB, error) {
	path := flagConfig
	if path == "" {
		path = os.Getenv("YGGDRASIL_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.Storage.DataDir = flagDataDir
	}
	return yggdrasil.Open(cfg)
}

// withDB opens the engine, runs fn, and closes it.
func withDB(fn func(db *yggdrasil.DB) error) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}
