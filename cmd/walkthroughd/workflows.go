package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/walkthrough/catalog"
)

func newWorkflowsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "Inspect workflow catalogs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <dir>",
		Short: "Check that every workflow file in dir parses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Open(args[0], catalog.WithLogger(a.logger))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d workflows ok\n", len(cat.Workflows()))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list <dir>",
		Short: "List the workflows in dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Open(args[0], catalog.WithLogger(a.logger))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTEPS\tNAME\tSTARTING URL")
			for _, wf := range cat.Workflows() {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", wf.ID, len(wf.Steps), wf.Name, wf.StartingURL)
			}
			return tw.Flush()
		},
	})

	return cmd
}
