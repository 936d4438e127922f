package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vogtb/gridsync/packages/config"
)

var (
	rootCmd = &cobra.Command{
		Use:           "gridsync",
		Short:         "Collaborative spreadsheet sync server and client",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	configPath string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Runs the reference document store with the HTTP and live API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	evalCmd = &cobra.Command{
		Use:   "eval [formula]",
		Short: "Evaluates a formula or a CSV grid and prints the display values",
		Long: `Evaluates a single formula given as an argument, or every cell of a CSV
file given with --csv. Formulas may reference other cells of the grid.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runEval,
	}
	evalCSV    string
	evalLocale string

	syncCmd = &cobra.Command{
		Use:   "sync [document-id] [CELL=value ...]",
		Short: "Opens a document on a server, applies cell edits and saves them",
		Long: `Opens an edit session on the configured server, restores any local draft,
writes each CELL=value assignment (for example B2==SUM(A1:A3)) and flushes
before releasing the session.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSync,
	}
	syncRows  int
	syncCols  int
	syncPrint bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a gridsync YAML config")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address, overrides server.addr")

	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().StringVar(&evalCSV, "csv", "", "CSV file to evaluate")
	evalCmd.Flags().StringVar(&evalLocale, "locale", "en-US", "BCP 47 locale used to parse and format numbers")

	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().IntVar(&syncRows, "rows", 20, "row count of a document the server does not have yet")
	syncCmd.Flags().IntVar(&syncCols, "cols", 10, "column count of a document the server does not have yet")
	syncCmd.Flags().BoolVar(&syncPrint, "print", false, "print the document values after syncing")
	syncCmd.Flags().String("holder", "", "name shown to other editors, overrides client.holder")
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}
