package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Archerevan-01fischb/MW-website/internal/backup"
	"github.com/Archerevan-01fischb/MW-website/internal/config"
	"github.com/Archerevan-01fischb/MW-website/internal/logging"
	"github.com/Archerevan-01fischb/MW-website/internal/store"
	"github.com/Archerevan-01fischb/MW-website/internal/tilegrid"
	"github.com/spf13/cobra"
)

var (
	dataDir    string
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	closeLog   func() error
)

var rootCmd = &cobra.Command{
	Use:           "midwinter-registry",
	Short:         "Maintain the Midwinter settlement and gondola registry",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if !cmd.Flags().Changed("data-dir") {
			dataDir = cfg.Data.Dir
		}

		logger, closeLog, err = logging.New(logging.Config{
			Level:   cfg.Log.Level,
			Format:  cfg.Log.Format,
			File:    cfg.Log.File,
			Verbose: verbose,
		})
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if closeLog != nil {
			return closeLog()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "data", "Directory holding the registry database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the running
// operation, which rolls back any open transaction.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return err
}

func logVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

func openStore() (*store.Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return store.Open(databasePath(), logger)
}

func databasePath() string {
	return filepath.Join(dataDir, cfg.Data.File)
}

func tileGrid() tilegrid.Grid {
	return tilegrid.Grid{
		TileWidth:  cfg.Tiles.Width,
		TileHeight: cfg.Tiles.Height,
		WorldScale: cfg.Tiles.WorldScale,
	}
}

func backupFacility() *backup.Facility {
	return &backup.Facility{
		Dir:     cfg.BackupDir(dataDir),
		Timeout: cfg.Backup.Timeout,
		Log:     logger,
	}
}
