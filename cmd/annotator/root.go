package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/discochess/annotator"
	"github.com/discochess/annotator/internal/config"
)

var (
	// Global flags not covered by the configuration.
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "annotator",
	Short: "Annotate chess games with cached dual-engine evaluations",
	Long: `Annotator runs every position of a game through a centipawn engine and a
win/draw/loss engine, caching both results per position so repeated
positions are never searched twice.

Settings come from flags, ANNOTATOR_* environment variables, an optional
.env file and an optional config file, in that order.

Examples:
  # Annotate a PGN file with Stockfish and Lc0
  annotator annotate games.pgn --scalar-engine stockfish --wdl-engine lc0

  # Look up a cached position
  annotator lookup "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"

  # Summarize annotated games
  annotator report annotated.jsonl`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (yaml, toml or json)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringP("data-dir", "d", "./data", "directory for the badger store")
	flags.BoolP("verbose", "v", false, "enable verbose output")
	flags.String("store", config.BackendBadger, "store backend: badger, memory, redis, postgres, mongo")
	flags.String("redis-addr", "localhost:6379", "redis address")
	flags.String("postgres-dsn", "", "postgres connection string")
	flags.String("mongo-uri", "mongodb://localhost:27017", "mongodb connection URI")
	flags.Int("row-cache", 100000, "rows kept in the in-memory LRU in front of the badger store (0 disables)")
	flags.String("metrics", config.MetricsNone, "metrics sink: none, log, prometheus")
	flags.Int("depth", annotator.DefaultDepth, "depth budget for centipawn searches")
	flags.Int64("nodes", annotator.DefaultNodes, "node budget for win/draw/loss searches")
	flags.Bool("upgrade", false, "replace cached halves with higher-budget results")
}

// addEngineFlags registers the engine flags on commands that search.
func addEngineFlags(flags *pflag.FlagSet) {
	flags.String("scalar-engine", "", "UCI engine for centipawn scores (e.g. stockfish)")
	flags.StringToString("scalar-option", nil, "UCI options for the scalar engine (Name=value,...)")
	flags.Int("scalar-instances", 1, "scalar engine processes")
	flags.String("wdl-engine", "", "UCI engine for win/draw/loss (e.g. lc0)")
	flags.StringToString("wdl-option", nil, "UCI options for the wdl engine (Name=value,...)")
	flags.Int("wdl-instances", 1, "wdl engine processes")
	flags.Duration("engine-timeout", 5*time.Minute, "per-search timeout (0 disables)")
	flags.Int("workers", 1, "games annotated concurrently")
}
