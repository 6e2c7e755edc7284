package main

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/astromechza/chronicle/pkg/syncer"
)

// peerID derives a stable peer id from the absolute path of a document file, so sessions
// stored by an earlier run are found again.
func peerID(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String(), nil
}

var syncCmd = &cobra.Command{
	Use:   "sync <a> <b>",
	Short: "Run the sync protocol between two document files until both converge",
	Long:  `Exchanges sync messages between two document files in-process. Per-peer sessions are kept in the configured store so later runs only exchange what changed.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		peers := make([]syncer.Peer, 2)
		for i, path := range args {
			c, err := current.openDoc(path, true)
			if err != nil {
				return err
			}
			id, err := peerID(path)
			if err != nil {
				return err
			}
			peers[i] = syncer.Peer{ID: id, Chronicle: c}
		}

		st, err := current.openStore()
		if err != nil {
			return err
		}
		defer current.closeStore(st)

		s := syncer.New(st,
			syncer.WithLogger(current.logger),
			syncer.WithMaxMessages(current.cfg.Sync.MaxMessages),
		)
		res, err := s.Sync(cmd.Context(), peers[0], peers[1])
		if err != nil {
			return err
		}
		for i, path := range args {
			if err := current.writeDoc(path, peers[i].Chronicle); err != nil {
				return err
			}
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "converged after %d rounds, %d messages\n", res.Rounds, res.Messages)
		return err
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
