package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jward/taproot/internal/lint"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the diagnostic rules the checker can emit",
	RunE:  runRules,
}

func runRules(cmd *cobra.Command, args []string) error {
	rules := lint.DefaultRegistry().Rules()

	if flagFormat == "json" {
		type ruleJSON struct {
			ID          string `json:"id"`
			Severity    string `json:"severity"`
			Description string `json:"description"`
		}
		out := make([]ruleJSON, 0, len(rules))
		for _, r := range rules {
			out = append(out, ruleJSON{r.ID, r.Severity.String(), r.Description})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEVERITY\tDESCRIPTION")
	for _, r := range rules {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.Severity, r.Description)
	}
	return w.Flush()
}
