package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunbase/redolog/internal/admin"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Own the redo log and serve the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Admin.Addr = addr
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

			if _, err := p.RunPostStartupRecovery(ctx); err != nil {
				log.Error("Post-startup recovery failed: %v", err)
			}

			srv := admin.NewServer(cfg.Admin.Addr, admin.NewHandler(p.Manager(), log.Named("admin")), log)
			if err := srv.Start(); err != nil {
				return err
			}
			log.Info("Admin API listening on %s", srv.Addr())

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			select {
			case sig := <-sigChan:
				log.Info("Received %s, shutting down", sig)
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default admin.addr)")
	return cmd
}
