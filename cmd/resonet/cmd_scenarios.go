package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/nvandessel/resonet/internal/simulation"
	"github.com/spf13/cobra"
)

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List built-in scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			names := simulation.Presets()
			if jsonOut {
				list := make([]map[string]string, 0, len(names))
				for _, name := range names {
					list = append(list, map[string]string{
						"name":        name,
						"description": simulation.Describe(name),
					})
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(list)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%s\n", name, simulation.Describe(name))
			}
			return w.Flush()
		},
	}
}
