package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beadloom/beadloom/internal/syncengine"
)

var syncCmd = &cobra.Command{
	Use:   "sync <ref_id>",
	Short: "mark a node's docs and code as in sync",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openStore()
		if err != nil {
			return err
		}
		defer conn.Close()

		e := syncengine.New(conn)
		if err := conn.WithTx(func(tx *sql.Tx) error {
			return e.MarkSynced(tx, args[0])
		}); err != nil {
			return err
		}
		fmt.Printf("%s marked as synced\n", args[0])
		return nil
	},
}
