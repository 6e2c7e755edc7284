package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <doc>",
	Short: "Show the heads, change history and a state summary of a document file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := current.openDoc(args[0], false)
		if err != nil {
			return err
		}
		entries, err := c.History()
		if err != nil {
			return err
		}
		s, err := c.GetState()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "heads (%d):\n", c.ChangeCount())
		for _, h := range c.Heads() {
			fmt.Fprintf(out, "  %s\n", h)
		}

		fmt.Fprintf(out, "changes (%d):\n", len(entries))
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, e := range entries {
			deps := make([]string, len(e.Deps))
			for i, d := range e.Deps {
				deps[i] = d[:min(8, len(d))]
			}
			fmt.Fprintf(w, "  %s\t%s@%d\t%s\t[%s]\n", e.Hash[:min(8, len(e.Hash))], e.Actor, e.Seq, e.Message, strings.Join(deps, " "))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Fprintln(out, "state:")
		if s.Version != nil {
			fmt.Fprintf(out, "  version: %s\n", *s.Version)
		}
		if s.Stack != nil {
			fmt.Fprintf(out, "  stack: %d in stack, %d drawn, %d discarded\n", len(s.Stack.Stack), len(s.Stack.Drawn), len(s.Stack.Discards))
		}
		if s.Zones != nil {
			names := make([]string, 0, len(s.Zones))
			for name := range s.Zones {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  zone %s: %d placements\n", name, len(s.Zones[name]))
			}
		}
		if s.GameLoop != nil {
			fmt.Fprintf(out, "  game loop: turn %d/%d phase %q running=%t\n", s.GameLoop.Turn, s.GameLoop.MaxTurns, s.GameLoop.Phase, s.GameLoop.Running)
		}
		if s.Rules != nil {
			names := make([]string, 0, len(s.Rules.Fired))
			for name := range s.Rules.Fired {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  rule %s fired at %s\n", name, formatMillis(s.Rules.Fired[name]))
			}
		}
		fmt.Fprintf(out, "  agents: %d, nullifiers: %d, extra keys: %d\n", len(s.Agents), len(s.Nullifiers), len(s.Extra))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
