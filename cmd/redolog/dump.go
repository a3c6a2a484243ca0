package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunbase/redolog/internal/redo"
)

func newDumpCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Print the header and records of a journal file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dumpLog(cmd.OutOrStdout(), args[0], limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many records (0 = all)")
	return cmd
}

func dumpLog(out io.Writer, path string, limit int) error {
	reg := decodeRegistry()
	r := redo.NewFileLogReader(path, false, reg)
	if err := r.Open(); err != nil {
		return err
	}
	defer r.Close()

	if h := r.Header(); h != nil {
		fmt.Fprintf(out, "%s\n", h)
	}
	for n := 0; limit == 0 || n < limit; n++ {
		pos := r.Position()
		op, err := r.NextOp()
		if err != nil {
			fmt.Fprintf(out, "%10d  unreadable: %v (%d trailing bytes)\n", pos, err, r.Size()-pos)
			return err
		}
		if op == nil {
			break
		}
		printRecord(out, reg, pos, op)
	}
	return nil
}

func printRecord(out io.Writer, reg *redo.Registry, pos int64, op redo.Operation) {
	fmt.Fprintf(out, "%10d  %-18s txn=%-16s ts=%d mbox=%d  %v\n",
		pos, reg.Name(op.OpCode()), op.TransactionID(), op.Timestamp(), op.MailboxID(), op)
}
