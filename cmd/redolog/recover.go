package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Redo operations left uncommitted by a crash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			env, err := openEnv(cfg, log)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			p := env.provider
			if err := p.Startup(ctx); err != nil {
				return err
			}
			defer p.Shutdown()

			st := p.Manager().Status()
			deferred, err := p.RunPostStartupRecovery(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recovered %d operations (%d after startup) from %s\n",
				st.Recovered, deferred, st.LogFile)
			return nil
		},
	}
}
