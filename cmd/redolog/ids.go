package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunbase/redolog/internal/redo"
)

func newTxnIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "txnid <id>",
		Short: "Decode a transaction id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := redo.DecodeTransactionID(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "time:    %d (%s)\n", id.Time, time.Unix(int64(id.Time), 0).UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "counter: %d\n", id.Counter)
			return nil
		},
	}
}

func newCommitIDCmd() *cobra.Command {
	var locate bool
	cmd := &cobra.Command{
		Use:   "commitid <id>",
		Short: "Decode a commit id and optionally locate its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := redo.DecodeCommitID(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printCommitID(out, id)
			if !locate {
				return nil
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			env, err := openEnv(cfg, log)
			if err != nil {
				return err
			}
			defer env.Close()

			commit, path, err := env.provider.Manager().FindCommit(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "found:     %v in %s\n", commit, path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&locate, "locate", false, "Search journal history for the commit record")
	return cmd
}

func printCommitID(out io.Writer, id redo.CommitID) {
	fmt.Fprintf(out, "redo seq:  %d\n", id.RedoSeq)
	fmt.Fprintf(out, "committed: %d (%s)\n", id.TxnTimestamp, time.UnixMilli(id.TxnTimestamp).UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(out, "txn:       %s\n", id.TxnID)
}
