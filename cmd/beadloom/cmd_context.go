package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beadloom/beadloom/internal/cache"
	"github.com/beadloom/beadloom/internal/config"
	beadctx "github.com/beadloom/beadloom/internal/context"
)

var (
	ctxDepth     int
	ctxMaxNodes  int
	ctxMaxChunks int
)

var contextCmd = &cobra.Command{
	Use:   "context <ref_id> [ref_id...]",
	Short: "assemble a context bundle for one or more ref_ids",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openStore()
		if err != nil {
			return err
		}
		defer conn.Close()

		cfg, err := config.Load(workspace)
		if err != nil {
			return err
		}

		assembler := beadctx.New(conn)
		c := cache.New(conn, assembler, workspace, cfg.DocsDir)

		opts := beadctx.Options{Depth: ctxDepth, MaxNodes: ctxMaxNodes, MaxChunks: ctxMaxChunks}
		result, err := c.Get(args, opts)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result.Bundle, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		if result.Cached {
			fmt.Printf("(cache hit, etag %s)\n", result.ETag)
		}
		return nil
	},
}

func init() {
	defaults := beadctx.DefaultOptions()
	contextCmd.Flags().IntVar(&ctxDepth, "depth", defaults.Depth, "BFS depth")
	contextCmd.Flags().IntVar(&ctxMaxNodes, "max-nodes", defaults.MaxNodes, "max subgraph nodes")
	contextCmd.Flags().IntVar(&ctxMaxChunks, "max-chunks", defaults.MaxChunks, "max doc chunks per node")
}
