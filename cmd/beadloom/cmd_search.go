package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "full-text search over node summaries and doc chunks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openStore()
		if err != nil {
			return err
		}
		defer conn.Close()

		results, err := conn.SearchFTS(strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, r := range results {
			loc := r.RefID
			if r.DocPath != "" {
				loc = r.DocPath
			}
			fmt.Printf("%s\t%s\n", loc, r.Snippet)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum results")
}
