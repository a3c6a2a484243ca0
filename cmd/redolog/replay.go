package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunbase/redolog/internal/redolog"
	"github.com/kartikbazzad/bunbase/redolog/internal/restore"
)

func newReplayCmd() *cobra.Command {
	var (
		remaps       []string
		from, to     string
		skipDeletes  bool
		ignoreErrors bool
		workers      int
	)
	cmd := &cobra.Command{
		Use:   "replay [files...]",
		Short: "Replay committed operations into the mailbox store",
		Long: "Replay committed operations from the given journal files, or from the whole\n" +
			"journal history when none are given. Each --remap old=new restores one mailbox\n" +
			"under a new id; remapped mailboxes are restored in parallel.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			groups, err := parseRemaps(remaps)
			if err != nil {
				return err
			}
			start, err := parseTime(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := parseTime(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			env, err := openEnv(cfg, log)
			if err != nil {
				return err
			}
			defer env.Close()

			files := args
			if len(files) == 0 {
				if files, err = env.provider.Manager().AllLogs(); err != nil {
					return err
				}
			}
			if workers <= 0 {
				workers = cfg.Restore.Workers
			}

			opts := redolog.PlayerOptions(&cfg.Redo, false)
			opts.SkipDeleteOps = skipDeletes
			opts.IgnoreReplayErrors = ignoreErrors

			r := restore.NewRestorer(env.reg, workers, log.Named("restore"))
			results, err := r.Restore(cmd.Context(), restore.Request{
				Files:     files,
				Groups:    groups,
				StartTime: start,
				EndTime:   end,
				Options:   opts,
			})
			for _, res := range results {
				status := "ok"
				if res.Err != nil {
					status = res.Err.Error()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s  %s\n", res.Name, res.Stats, status)
			}
			return err
		},
	}
	cmd.Flags().StringArrayVar(&remaps, "remap", nil, "Restore mailbox old as new (old=new, repeatable)")
	cmd.Flags().StringVar(&from, "from", "", "Replay commits at or after this time (RFC 3339 or unix ms)")
	cmd.Flags().StringVar(&to, "to", "", "Replay commits before this time (RFC 3339 or unix ms)")
	cmd.Flags().BoolVar(&skipDeletes, "skip-deletes", false, "Do not replay delete operations")
	cmd.Flags().BoolVar(&ignoreErrors, "ignore-errors", false, "Log replay failures and keep going")
	cmd.Flags().IntVar(&workers, "workers", 0, "Mailboxes restored at once (0 = restore.workers)")
	return cmd
}

// parseRemaps turns old=new pairs into one restore group each. No pairs
// means a single group replaying every mailbox as is.
func parseRemaps(pairs []string) ([]restore.Group, error) {
	if len(pairs) == 0 {
		return []restore.Group{{Name: "all"}}, nil
	}
	groups := make([]restore.Group, 0, len(pairs))
	for _, pair := range pairs {
		oldStr, newStr, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("bad remap %q: want old=new", pair)
		}
		from, err := strconv.ParseInt(strings.TrimSpace(oldStr), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad remap %q: %w", pair, err)
		}
		to, err := strconv.ParseInt(strings.TrimSpace(newStr), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad remap %q: %w", pair, err)
		}
		groups = append(groups, restore.Group{
			Name:  fmt.Sprintf("mbox-%d", from),
			Remap: map[int32]int32{int32(from): int32(to)},
		})
	}
	if err := restore.Validate(groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// parseTime accepts unix milliseconds or an RFC 3339 time. Empty is 0.
func parseTime(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("bad time %q: want RFC 3339 or unix ms", s)
	}
	return t.UnixMilli(), nil
}
