// Command redolog inspects, recovers and replays mailbox redo journals.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunbase/redolog/internal/config"
	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
)

var (
	cfgPath  string
	dataDir  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "redolog",
	Short:         "Mailbox redo journal tool",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file (optional)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Root every data path at this directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")

	rootCmd.AddCommand(
		newDumpCmd(),
		newRecoverCmd(),
		newReplayCmd(),
		newTxnIDCmd(),
		newCommitIDCmd(),
		newServeCmd(),
		newShellCmd(),
	)
}

// loadConfig reads the config file and environment, then applies the
// persistent flags.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(cfgPath, config.DefaultEnvPrefix)
	if err != nil {
		return nil, nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
		cfg.Redo.LogPath = filepath.Join(dataDir, "redolog", "redo.log")
		cfg.Redo.ArchiveDir = filepath.Join(dataDir, "redolog", "archive")
		cfg.Mailbox.DSN = filepath.Join(dataDir, "mailbox.db")
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, newLogger(cfg.Log), nil
}

func newLogger(c config.LogConfig) *logger.Logger {
	level := logger.ParseLevel(c.Level)
	if c.Format == "json" {
		return logger.NewJSON(os.Stderr, level, "redolog")
	}
	return logger.New(os.Stderr, level, "redolog")
}
