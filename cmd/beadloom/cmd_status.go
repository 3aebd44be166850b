package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show recent health snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openStore()
		if err != nil {
			return err
		}
		defer conn.Close()

		snapshots, err := conn.RecentHealth(5)
		if err != nil {
			return err
		}
		if len(snapshots) == 0 {
			fmt.Println("no health snapshots yet; run `beadloom reindex` first")
			return nil
		}
		for _, h := range snapshots {
			fmt.Printf("%s  nodes=%d edges=%d docs=%d stale=%d isolated=%d coverage=%.2f\n",
				h.TakenAt.Format("2006-01-02 15:04:05"), h.NodesCount, h.EdgesCount,
				h.DocsCount, h.StaleCount, h.IsolatedCount, h.CoveragePct)
		}
		return nil
	},
}
