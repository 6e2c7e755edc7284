package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set <doc> <state.json|->",
	Short: "Write a state JSON document into a document file",
	Long:  `Overwrites every known field of the document with the given state. The file is created when it does not exist.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd.InOrStdin(), args[1])
		if err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}
		c, err := current.openDoc(args[0], true)
		if err != nil {
			return err
		}
		label, _ := cmd.Flags().GetString("label")
		if label != "" {
			err = c.ChangeJSON(label, raw)
		} else {
			err = c.SetStateJSON(raw)
		}
		if err != nil {
			return err
		}
		return current.writeDoc(args[0], c)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <doc>",
	Short: "Print the state held in a document file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := current.openDoc(args[0], false)
		if err != nil {
			return err
		}
		raw, err := c.GetStateJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return err
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge <into> <from>...",
	Short: "Merge the history of one or more document files into another",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		into, err := current.openDoc(args[0], true)
		if err != nil {
			return err
		}
		for _, path := range args[1:] {
			raw, err := readInput(cmd.InOrStdin(), path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			if err := into.Merge(raw); err != nil {
				return fmt.Errorf("failed to merge %s: %w", path, err)
			}
		}
		if into.ChangeCount() > 1 {
			current.logger.Info("document has concurrent heads", "heads", into.ChangeCount())
		}
		return current.writeDoc(args[0], into)
	},
}

func init() {
	setCmd.Flags().String("label", "", "Label for the change")
	rootCmd.AddCommand(setCmd, getCmd, mergeCmd)
}
