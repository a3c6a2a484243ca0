package redolog

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/kartikbazzad/bunbase/redolog/internal/config"
	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
	"github.com/kartikbazzad/bunbase/redolog/internal/redo"
)

const lockFileName = "redo.lock"

// Provider ties the redo log to a server's lifecycle. A master owns the
// journal and runs crash recovery on Startup; a slave never writes to it.
// Only one provider may hold a journal directory at a time.
type Provider struct {
	cfg    *config.Config
	reg    *redo.Registry
	logger *logger.Logger

	mu      sync.Mutex
	lock    *dirLock
	manager *Manager
	running bool
}

func NewProvider(cfg *config.Config, reg *redo.Registry, log *logger.Logger) *Provider {
	if log == nil {
		log = logger.Default()
	}
	return &Provider{
		cfg:     cfg,
		reg:     reg,
		logger:  log,
		manager: NewManager(&cfg.Redo, reg, log.Named("redolog")),
	}
}

// Startup locks the journal directory and, on a master, opens the journal
// and redoes whatever the last run left uncommitted. Operations that asked
// to wait are redone by RunPostStartupRecovery.
func (p *Provider) Startup(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if !p.cfg.Redo.Enabled {
		p.logger.Info("Redo log disabled")
		return nil
	}

	dir := filepath.Dir(p.cfg.Redo.LogPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(errors.ErrFileOpen, "create redo log dir: %v", err)
	}
	lock, err := acquireLock(filepath.Join(dir, lockFileName))
	if err != nil {
		return err
	}

	if p.IsMaster() {
		if err := p.manager.Start(ctx, true); err != nil {
			lock.release()
			return err
		}
	} else {
		p.logger.Info("Redo log running as %s, journal is read-only", p.cfg.Redo.Role)
	}

	p.lock = lock
	p.running = true
	return nil
}

// RunPostStartupRecovery redoes operations deferred by crash recovery.
func (p *Provider) RunPostStartupRecovery(ctx context.Context) (int, error) {
	if !p.IsMaster() {
		return 0, nil
	}
	return p.manager.RunPostStartupRecovery(ctx)
}

// Shutdown closes the journal and releases the directory.
func (p *Provider) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false

	err := p.manager.Stop()
	if relErr := p.lock.release(); err == nil {
		err = relErr
	}
	p.lock = nil
	return err
}

func (p *Provider) IsMaster() bool {
	return p.cfg.Redo.Role == config.RoleMaster
}

func (p *Provider) IsSlave() bool {
	return p.cfg.Redo.Role == config.RoleSlave
}

func (p *Provider) Manager() *Manager {
	return p.manager
}

func (p *Provider) Registry() *redo.Registry {
	return p.reg
}
