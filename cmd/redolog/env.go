package main

import (
	"os"
	"path/filepath"

	"github.com/kartikbazzad/bunbase/redolog/internal/config"
	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
	"github.com/kartikbazzad/bunbase/redolog/internal/mailbox"
	"github.com/kartikbazzad/bunbase/redolog/internal/redo"
	"github.com/kartikbazzad/bunbase/redolog/internal/redolog"
)

// env is the mailbox store and redo log a command works against.
type env struct {
	cfg      *config.Config
	logger   *logger.Logger
	store    *mailbox.Store
	reg      *redo.Registry
	provider *redolog.Provider
}

func openEnv(cfg *config.Config, log *logger.Logger) (*env, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Mailbox.DSN), 0755); err != nil {
		return nil, err
	}
	store, err := mailbox.Open(cfg.Mailbox.DSN)
	if err != nil {
		return nil, err
	}
	reg := mailbox.NewRegistry(store)
	return &env{
		cfg:      cfg,
		logger:   log,
		store:    store,
		reg:      reg,
		provider: redolog.NewProvider(cfg, reg, log),
	}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

// decodeRegistry knows every op type but cannot redo any of them.
func decodeRegistry() *redo.Registry {
	return mailbox.NewRegistry(nil)
}
