package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var snapshotLabel string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "capture the current graph for later diffing",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openStore()
		if err != nil {
			return err
		}
		defer conn.Close()

		id, err := conn.TakeGraphSnapshot(snapshotLabel, time.Now())
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var snapshotDiffCmd = &cobra.Command{
	Use:   "snapshot-diff <snapshot_id>",
	Short: "diff the current graph against a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openStore()
		if err != nil {
			return err
		}
		defer conn.Close()

		diff, err := conn.CompareSnapshot(args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(diff, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotLabel, "label", "", "snapshot label")
}
