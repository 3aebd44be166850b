package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beadloom/beadloom/internal/config"
	"github.com/beadloom/beadloom/internal/reindex"
)

var full bool

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "rebuild the graph, docs and code index",
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

		p := reindex.New(conn, cfg)
		defer p.Close()

		if full {
			if err := p.Full(); err != nil {
				return err
			}
			fmt.Println("full reindex complete")
			return nil
		}
		if err := p.Incremental(); err != nil {
			return err
		}
		fmt.Println("incremental reindex complete")
		return nil
	},
}

func init() {
	reindexCmd.Flags().BoolVar(&full, "full", false, "force a full reindex instead of incremental")
}
