package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beadloom/beadloom/internal/rules"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "evaluate rules.yml against the current graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openStore()
		if err != nil {
			return err
		}
		defer conn.Close()

		ruleSet, err := conn.AllRules()
		if err != nil {
			return err
		}

		if warnings, err := rules.ValidateRefs(conn, ruleSet); err == nil {
			for _, w := range warnings {
				fmt.Println("warning:", w)
			}
		}

		violations, err := rules.Evaluate(conn, ruleSet)
		if err != nil {
			return err
		}
		if len(violations) == 0 {
			fmt.Println("no violations")
			return nil
		}
		for _, v := range violations {
			fmt.Printf("[%s] %s: %s\n", v.Severity, v.RuleName, v.Message)
		}
		return fmt.Errorf("%d violation(s) found", len(violations))
	},
}
