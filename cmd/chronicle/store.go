package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/astromechza/chronicle/pkg/store"
)

var pushCmd = &cobra.Command{
	Use:   "push <doc> <store-id>",
	Short: "Save a document file as the latest snapshot of a store id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := current.openDoc(args[0], false)
		if err != nil {
			return err
		}
		st, err := current.openStore()
		if err != nil {
			return err
		}
		defer current.closeStore(st)

		merge, _ := cmd.Flags().GetBool("merge")
		if merge {
			raw, err := st.GetSnapshot(cmd.Context(), args[1])
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			} else if err == nil {
				if err := c.Merge(raw); err != nil {
					return fmt.Errorf("failed to merge stored snapshot: %w", err)
				}
			}
		}
		if err := st.PutSnapshot(cmd.Context(), args[1], c.Save()); err != nil {
			return err
		}
		current.logger.Info("pushed snapshot", "store", args[1], "heads", c.ChangeCount())
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull <store-id> <doc>",
	Short: "Write the latest snapshot of a store id into a document file",
	Long:  `Merges the stored snapshot into the document file, creating the file when it does not exist.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := current.openStore()
		if err != nil {
			return err
		}
		defer current.closeStore(st)

		raw, err := st.GetSnapshot(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no snapshot stored for %q", args[0])
			}
			return err
		}
		c, err := current.openDoc(args[1], true)
		if err != nil {
			return err
		}
		if err := c.Merge(raw); err != nil {
			return err
		}
		return current.writeDoc(args[1], c)
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List store ids that hold a snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := current.openStore()
		if err != nil {
			return err
		}
		defer current.closeStore(st)

		ids, err := st.ListStores(cmd.Context())
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	pushCmd.Flags().Bool("merge", false, "Merge the currently stored snapshot before pushing")
	rootCmd.AddCommand(pushCmd, pullCmd, lsCmd)
}
