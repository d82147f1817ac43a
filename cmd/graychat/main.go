// Graychat Core serves the chat REST API and the room WebSocket gate.
//
// Usage:
//
//	graychat serve [--config path]
//	graychat migrate up|down [--config path]
//	graychat version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/graychat-core/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Each call returns a fresh tree so
// tests can execute commands independently.
func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "graychat",
		Short: "Graychat Core - chat rooms with access-controlled WebSockets",
		Long: `Graychat Core serves account, room and message endpoints over HTTP
and gates WebSocket connections to rooms by their visibility and allow-list.

Configuration is read from --config, then GRAYCHAT_CONFIG, then
configs/config.yaml. GRAYCHAT_* environment variables override file values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $GRAYCHAT_CONFIG or "+defaultConfigPath+")")

	loadConfig := func() (*config.Config, string, error) {
		path := configPath(cfgFile)
		cfg, err := config.Load(path)
		if err != nil {
			return nil, path, fmt.Errorf("loading config: %w", err)
		}
		return cfg, path, nil
	}

	root.AddCommand(
		newServeCmd(loadConfig),
		newMigrateCmd(loadConfig),
		newVersionCmd(),
	)
	return root
}

// configLoader loads and validates the configuration selected by the
// persistent --config flag.
type configLoader func() (*config.Config, string, error)

// configPath resolves the config file: flag, then GRAYCHAT_CONFIG, then
// the default.
func configPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("GRAYCHAT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
