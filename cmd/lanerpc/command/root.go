package command

// root.go defines the lanerpc root command and its global flags.

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// version is reported to the directory by every node.
const version = "0.1.0"

var envFile string // .env file read before the environment

var rootCmd = &cobra.Command{
	Use:   "lanerpc",
	Short: "lanerpc - lane-based RPC node and caller",
	Long: `lanerpc runs a lane-rpc node or calls a service hosted by one.

Nodes are configured from the environment (optionally seeded from a .env file):
SERVER_ID, WORKER_NUM, LISTEN_ADDR, PEERS, ETCD_ENDPOINTS, ...

Use "lanerpc command --help" to see the flags of each command.`,
	SilenceUsage: true,
}

// Execute runs the root command. It is called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "environment file to load")
}

// setupLogger installs a slog default logger. Library packages log through
// the standard log package, which slog.SetDefault routes to the same handler.
func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
