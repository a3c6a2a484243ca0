package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
	"github.com/kartikbazzad/bunbase/redolog/internal/redo"
)

const shellPrompt = "redo> "

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell <file>",
		Short: "Interactively inspect a journal file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := newInspector(args[0], decodeRegistry())
			if err := in.Open(); err != nil {
				return err
			}
			defer in.Close()
			return runShell(cmd.Context(), in, cmd.OutOrStdout())
		},
	}
}

func runShell(ctx context.Context, in *inspector, out io.Writer) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Fprintf(out, "Inspecting %s. Type 'help' for commands.\n", in.path)
	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := line.Prompt(shellPrompt)
		if err != nil {
			if err == io.EOF || err == liner.ErrPromptAborted {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if in.Execute(input, out) {
			return nil
		}
	}
}

// inspector walks one journal file record by record.
type inspector struct {
	path   string
	reg    *redo.Registry
	reader *redo.FileLogReader
	player *redo.Player
}

func newInspector(path string, reg *redo.Registry) *inspector {
	return &inspector{path: path, reg: reg}
}

func (in *inspector) Open() error {
	r := redo.NewFileLogReader(in.path, false, in.reg)
	if err := r.Open(); err != nil {
		return err
	}
	in.reader = r
	return nil
}

func (in *inspector) Close() error {
	if in.player != nil {
		in.player.Shutdown()
	}
	if in.reader == nil {
		return nil
	}
	return in.reader.Close()
}

// Execute runs one command line and reports whether the shell should exit.
func (in *inspector) Execute(input string, out io.Writer) bool {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false
	}
	args := fields[1:]
	switch strings.ToLower(fields[0]) {
	case "exit", "quit":
		return true
	case "help":
		in.help(out)
	case "header":
		in.header(out)
	case "ops":
		in.ops(out)
	case "next":
		in.next(out, args)
	case "rewind":
		in.rewind(out)
	case "scan":
		in.scan(out)
	case "uncommitted":
		in.uncommitted(out)
	case "commitid":
		in.commitID(out, args)
	default:
		fmt.Fprintf(out, "unknown command %q, try 'help'\n", fields[0])
	}
	return false
}

func (in *inspector) help(out io.Writer) {
	fmt.Fprintln(out, "  header          print the journal header")
	fmt.Fprintln(out, "  ops             list the record types this tool can decode")
	fmt.Fprintln(out, "  next [n]        print the next n records (default 1)")
	fmt.Fprintln(out, "  rewind          go back to the first record")
	fmt.Fprintln(out, "  scan            scan the whole file and print totals")
	fmt.Fprintln(out, "  uncommitted     list transactions left in flight by the scan")
	fmt.Fprintln(out, "  commitid <id>   decode a commit id and find its record")
	fmt.Fprintln(out, "  exit            leave the shell")
}

func (in *inspector) header(out io.Writer) {
	h := in.reader.Header()
	if h == nil {
		fmt.Fprintln(out, "empty journal")
		return
	}
	fmt.Fprintf(out, "%s\n", h)
}

func (in *inspector) ops(out io.Writer) {
	for _, code := range in.reg.Codes() {
		fmt.Fprintf(out, "%6d  %s\n", code, in.reg.Name(code))
	}
}

func (in *inspector) next(out io.Writer, args []string) {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			fmt.Fprintf(out, "bad count %q\n", args[0])
			return
		}
		n = v
	}
	for i := 0; i < n; i++ {
		pos := in.reader.Position()
		op, err := in.reader.NextOp()
		if err != nil {
			fmt.Fprintf(out, "%10d  unreadable: %v\n", pos, err)
			return
		}
		if op == nil {
			fmt.Fprintln(out, "end of journal")
			return
		}
		printRecord(out, in.reg, pos, op)
	}
}

func (in *inspector) rewind(out io.Writer) {
	in.reader.Close()
	if err := in.Open(); err != nil {
		fmt.Fprintf(out, "reopen failed: %v\n", err)
		return
	}
	fmt.Fprintln(out, "rewound")
}

func (in *inspector) scan(out io.Writer) {
	if in.player != nil {
		in.player.Shutdown()
	}
	in.player = redo.NewPlayer(in.reg, redo.PlayerOptions{}, logger.New(os.Stderr, logger.LevelWarn, "shell"))
	if err := in.player.ScanLog(context.Background(), in.path, false, nil, 0, math.MaxInt64, math.MaxInt64); err != nil {
		fmt.Fprintf(out, "scan failed: %v\n", err)
		return
	}
	s := in.player.Stats()
	fmt.Fprintf(out, "records=%d uncommitted=%d orphans=%d late_starts=%d checkpoint_mismatches=%d\n",
		s.Scanned, len(in.player.UncommittedTxnIDs()), s.Orphans, s.LateStarts, s.CheckpointDiscrepancies)
}

func (in *inspector) uncommitted(out io.Writer) {
	if in.player == nil {
		in.scan(out)
		if in.player == nil {
			return
		}
	}
	ops := in.player.UncommittedOps()
	ids := in.player.UncommittedTxnIDs()
	if len(ids) == 0 {
		fmt.Fprintln(out, "no uncommitted transactions")
		return
	}
	for _, id := range ids {
		op := ops[id]
		fmt.Fprintf(out, "%-16s %-18s ts=%d mbox=%d  %v\n", id, in.reg.Name(op.OpCode()), op.Timestamp(), op.MailboxID(), op)
	}
}

func (in *inspector) commitID(out io.Writer, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: commitid <id>")
		return
	}
	id, err := redo.DecodeCommitID(args[0])
	if err != nil {
		fmt.Fprintf(out, "%v\n", err)
		return
	}
	printCommitID(out, id)

	if h := in.reader.Header(); h != nil && h.Seq != id.RedoSeq {
		fmt.Fprintf(out, "not in this journal (seq %d)\n", h.Seq)
		return
	}
	r := redo.NewFileLogReader(in.path, false, in.reg)
	if err := r.Open(); err != nil {
		fmt.Fprintf(out, "%v\n", err)
		return
	}
	defer r.Close()
	for {
		pos := r.Position()
		op, err := r.NextOp()
		if err != nil || op == nil {
			fmt.Fprintln(out, "commit record not found")
			return
		}
		if id.Matches(op) {
			fmt.Fprintf(out, "found at offset %d\n", pos)
			return
		}
	}
}
