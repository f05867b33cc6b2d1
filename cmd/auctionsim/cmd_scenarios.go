package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List stored scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.store.List(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(list)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSLOTS\tROUNDS\tINCREMENT\tAGENTS")
			for _, s := range list {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%.2f\t%d\n", s.ID, s.Name, s.SlotCount, s.MaxRounds, s.Increment, len(s.Agents))
			}
			return tw.Flush()
		},
	}
}
