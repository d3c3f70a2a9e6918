package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"deepresearch/internal/config"
	"deepresearch/internal/logging"
	"deepresearch/internal/server"
	"deepresearch/internal/store"
)

var (
	// Global flags
	dbPath     string
	logFile    string
	configPath string
	verbose    bool

	// Resolved in PersistentPreRunE, shared by all subcommands.
	cfg *config.Config
)

// rootCmd runs the MCP server over stdio. stdout belongs to the JSON-RPC
// stream, so everything else (logs, errors) goes to stderr or the log file.
var rootCmd = &cobra.Command{
	Use:   "researchd",
	Short: "Deep-research orchestration MCP server",
	Long: `researchd is an MCP server that coordinates multi-agent research sessions.

It maintains a Graph-of-Thoughts over exploration paths in an embedded SQLite
store, scores and prunes paths against a quality rubric, and tells the
coordinating client what to do next (generate, execute, score, aggregate,
synthesize). Extraction, validation and conflict-detection tools process
research findings, with per-family TTL caches in front of the batch variants.

Run without arguments to serve on stdio. Point an MCP client at the binary:

  {"command": "researchd", "args": ["--db", "~/.claude/mcp-server/research_state.db"]}`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded := config.DefaultConfig()
		if configPath != "" {
			var err error
			loaded, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
		}
		if cmd.Root().PersistentFlags().Changed("db") {
			loaded.Database.Path = dbPath
		}
		if logFile == "" {
			logFile = loaded.Logging.File
		}
		if !verbose {
			verbose = loaded.Logging.Verbose
		}
		cfg = loaded
		return logging.Init(logFile, verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: runServe,
}

// versionCmd prints the advertised server identity.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server name and version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", cfg.Server.Name, cfg.Server.Version)
	},
}

// statsCmd inspects a store without serving.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-table row counts for the research store",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.NewStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		counts, err := st.GetStats()
		if err != nil {
			return err
		}
		tables := make([]string, 0, len(counts))
		for table := range counts {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		fmt.Printf("database: %s\n", st.Path())
		for _, table := range tables {
			fmt.Printf("  %-24s %d\n", table, counts[table])
		}
		return nil
	},
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := store.NewStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	srv := server.NewServer(st, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Hot-reload of the tunable config subset, only when a file was named.
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, cfg, srv.ApplyConfig)
		if err != nil {
			logging.Server().Warnf("config watcher unavailable: %v", err)
		} else if err := watcher.Start(ctx); err != nil {
			logging.Server().Warnf("config watcher failed to start: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	return srv.Serve(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultDatabasePath(), "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&logFile, "log", "", "Log file path (default: stderr)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (enables hot-reload)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
