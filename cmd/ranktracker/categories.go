package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-best-rank/discovery"
	"github.com/aluiziolira/go-best-rank/models"
)

func newCategoriesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Inspect and update the versioned category taxonomy.",
	}

	save := &cobra.Command{
		Use:   "save FILE",
		Short: "Record the categories in FILE as the current taxonomy.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := discovery.FileSource{Path: args[0]}.Discover(cmd.Context())
			if err != nil {
				return err
			}
			res, err := a.registry().Reconcile(nodes)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !res.Changed {
				fmt.Fprintf(out, "unchanged (v%d, %d categories)\n", res.Snapshot.Version, len(res.Snapshot.Nodes))
				return nil
			}
			fmt.Fprintf(out, "saved v%d: %d categories, %d added, %d removed\n",
				res.Snapshot.Version, len(res.Snapshot.Nodes), len(res.Entry.Added), len(res.Entry.Removed))
			return nil
		},
	}

	check := &cobra.Command{
		Use:   "check FILE",
		Short: "Compare the categories in FILE with the stored taxonomy without writing.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := discovery.FileSource{Path: args[0]}.Discover(cmd.Context())
			if err != nil {
				return err
			}
			res, err := a.registry().Check(nodes)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !res.Changed {
				fmt.Fprintf(out, "no change (v%d)\n", res.Version)
				return nil
			}
			fmt.Fprintf(out, "changed since v%d: %d added, %d removed\n", res.Version, len(res.Added), len(res.Removed))
			printNodes("Added", res.Added)
			printNodes("Removed", res.Removed)
			return nil
		},
	}

	var limit int
	history := &cobra.Command{
		Use:   "history",
		Short: "List recorded taxonomy versions, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.registry().History(limit)
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Version", "Timestamp", "Hash", "Added", "Removed"})
			for _, e := range entries {
				t.AppendRow(table.Row{e.Version, e.Timestamp.In(a.loc).Format("2006-01-02 15:04:05"), shortHash(e.NewHash), len(e.Added), len(e.Removed)})
			}
			t.Render()
			return nil
		},
	}
	history.Flags().IntVarP(&limit, "limit", "n", 10, "Number of versions to show (0 = all)")

	cmd.AddCommand(save, check, history)
	return cmd
}

func printNodes(title string, nodes []models.CategoryNode) {
	if len(nodes) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Depth1", "Depth2", "Label"})
	for _, n := range nodes {
		t.AppendRow(table.Row{n.Depth1Code, n.Depth2Code, n.Label()})
	}
	t.Render()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
