package main

import (
	"github.com/spf13/cobra"

	"github.com/astromechza/chronicle/pkg/viz"
)

var graphCmd = &cobra.Command{
	Use:   "graph <doc> [path...]",
	Short: "Render the change graph of a document file",
	Long:  `Draws one node per change and one edge per dependency. When a path is given, each node also shows the value at that path as of the change.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		format, err := viz.ParseFormat(formatName)
		if err != nil {
			return err
		}
		c, err := current.openDoc(args[0], false)
		if err != nil {
			return err
		}
		entries, err := c.History(args[1:]...)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			return viz.Render(cmd.OutOrStdout(), entries, format)
		}
		if err := viz.RenderFile(output, entries, format); err != nil {
			return err
		}
		current.logger.Info("rendered graph", "path", output, "changes", len(entries))
		return nil
	},
}

func init() {
	graphCmd.Flags().StringP("format", "f", string(viz.FormatSVG), "Output format: dot, svg or png")
	graphCmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")
	rootCmd.AddCommand(graphCmd)
}
