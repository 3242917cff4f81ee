// Package cli provides the command-line interface for fbxgrab.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hardcoding/fbxgrab/internal/logging"
)

var (
	// Global flags
	cfgFile      string
	discoveryURL string
	verbose      bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// Version information - set by main package at startup.
var (
	Version   = "v0.4.0-dev"
	BuildTime = "2026-08-28"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fbxgrab",
		Short: "fbxgrab - send downloads to your Freebox",
		Long: `fbxgrab ` + Version + ` - Built: ` + BuildTime + `
Companion tool for a Freebox-style device: authorizes itself against the
device, browses its remote file system and pushes downloads (HTTP URLs
and magnet links) to its download queue instead of the local disk.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultLogger()
			if verbose {
				logging.SetVerbose()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&discoveryURL, "discovery-url", "", "Device discovery URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = Version + " (" + BuildTime + ")"

	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newDownloadsCmd())
	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newTreeCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newLocationsCmd())
	rootCmd.AddCommand(newOpenCmd())

	return rootCmd
}

// Execute runs the CLI with signal-driven cancellation.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancelFunc()
	}()

	return NewRootCmd().ExecuteContext(rootContext)
}
