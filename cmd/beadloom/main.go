// Package main implements the beadloom CLI: a thin surface over the core
// library -- open a store, run an operation, print the result.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/beadloom/beadloom/internal/config"
	"github.com/beadloom/beadloom/internal/logging"
	"github.com/beadloom/beadloom/internal/store"
)

var (
	workspace string
	debug     bool
)

var rootCmd = &cobra.Command{
	Use:   "beadloom",
	Short: "beadloom - architecture-as-code index",
	Long: `beadloom maintains a persistent graph of your system's architecture,
linking domains, features, services, entities and ADRs to the docs and code
that implement them, and answers "what do I need to know about X" queries
with bounded, cacheable context bundles.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ws := workspace
		if ws == "" {
			var err error
			ws, err = os.Getwd()
			if err != nil {
				return err
			}
		}
		abs, err := filepath.Abs(ws)
		if err != nil {
			return err
		}
		workspace = abs
		debugOn, jsonOut := debug, false
		if cfg, err := config.Load(workspace); err == nil {
			debugOn = debugOn || cfg.Logging.DebugMode
			jsonOut = cfg.Logging.JSONFormat
		}
		logging.Configure(config.LogDir(workspace), debugOn, jsonOut)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "project root (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(reindexCmd, contextCmd, checkCmd, statusCmd, syncCmd, searchCmd, snapshotCmd, snapshotDiffCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore() (*store.Conn, error) {
	return store.Open(workspace)
}
