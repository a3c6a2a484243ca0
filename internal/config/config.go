package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"
)

type Config struct {
	DataDir string `mapstructure:"data_dir"`

	Log     LogConfig     `mapstructure:"log"`
	Redo    RedoConfig    `mapstructure:"redo"`
	Mailbox MailboxConfig `mapstructure:"mailbox"`
	Restore RestoreConfig `mapstructure:"restore"`
	Admin   AdminConfig   `mapstructure:"admin"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // DEBUG, INFO, WARN, ERROR
	Format string `mapstructure:"format"` // text | json
}

type FsyncMode string

const (
	FsyncAlways FsyncMode = "always" // Sync on every synchronous log call
	FsyncGroup  FsyncMode = "group"  // Batch syncs with group commit
	FsyncNone   FsyncMode = "none"   // Never sync (benchmarks only, unsafe)
)

type FsyncConfig struct {
	Mode         FsyncMode     `mapstructure:"mode"`
	Interval     time.Duration `mapstructure:"interval"`       // Flush interval for group mode
	MaxBatchSize int           `mapstructure:"max_batch_size"` // Records per group commit batch
}

type Role string

const (
	RoleMaster Role = "master"
	RoleSlave  Role = "slave"
)

type RedoConfig struct {
	Enabled            bool        `mapstructure:"enabled"`
	LogPath            string      `mapstructure:"log_path"`    // Active journal file
	ArchiveDir         string      `mapstructure:"archive_dir"` // Rotated journals
	RolloverFileSizeMB uint64      `mapstructure:"rollover_file_size_mb"`
	Fsync              FsyncConfig `mapstructure:"fsync"`
	Role               Role        `mapstructure:"role"`
	ServerID           string      `mapstructure:"server_id"` // Empty = generate per journal

	// CrashRecoveryLookback bounds which commits crash recovery trusts: commits
	// stamped within this window before the journal's last write are treated as
	// uncommitted. Zero disables the window.
	CrashRecoveryLookback time.Duration `mapstructure:"crash_recovery_lookback"`

	IgnoreReplayErrors    bool `mapstructure:"ignore_replay_errors"`
	SkipDeleteOps         bool `mapstructure:"skip_delete_ops"`
	HandleMailboxConflict bool `mapstructure:"handle_mailbox_conflict"`
}

type MailboxConfig struct {
	DSN string `mapstructure:"dsn"` // SQLite data source for the reference mailbox store
}

type RestoreConfig struct {
	Workers int `mapstructure:"workers"` // Concurrent mailbox groups (0 = NumCPU)
}

type AdminConfig struct {
	Addr string `mapstructure:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Log: LogConfig{
			Level:  "INFO",
			Format: "text",
		},
		Redo: RedoConfig{
			Enabled:            true,
			LogPath:            "./data/redolog/redo.log",
			ArchiveDir:         "./data/redolog/archive",
			RolloverFileSizeMB: 100,
			Fsync: FsyncConfig{
				Mode:         FsyncGroup,
				Interval:     10 * time.Millisecond,
				MaxBatchSize: 100,
			},
			Role:                  RoleMaster,
			CrashRecoveryLookback: 10 * time.Second,
			HandleMailboxConflict: true,
		},
		Mailbox: MailboxConfig{
			DSN: "./data/mailbox.db",
		},
		Restore: RestoreConfig{
			Workers: runtime.NumCPU(),
		},
		Admin: AdminConfig{
			Addr: "127.0.0.1:7090",
		},
	}
}

// ForDataDir returns DefaultConfig with every path rooted at dir.
func ForDataDir(dir string) *Config {
	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.Redo.LogPath = filepath.Join(dir, "redolog", "redo.log")
	cfg.Redo.ArchiveDir = filepath.Join(dir, "redolog", "archive")
	cfg.Mailbox.DSN = filepath.Join(dir, "mailbox.db")
	return cfg
}

// Validate rejects settings the redo log cannot run with.
func (c *Config) Validate() error {
	if c.Redo.LogPath == "" {
		return fmt.Errorf("redo.log_path must be set")
	}
	if c.Redo.ArchiveDir == "" {
		return fmt.Errorf("redo.archive_dir must be set")
	}
	switch c.Redo.Role {
	case RoleMaster, RoleSlave:
	default:
		return fmt.Errorf("redo.role must be %q or %q, got %q", RoleMaster, RoleSlave, c.Redo.Role)
	}
	switch c.Redo.Fsync.Mode {
	case FsyncAlways, FsyncNone:
	case FsyncGroup:
		if c.Redo.Fsync.Interval <= 0 {
			return fmt.Errorf("redo.fsync.interval must be positive in group mode")
		}
		if c.Redo.Fsync.MaxBatchSize <= 0 {
			return fmt.Errorf("redo.fsync.max_batch_size must be positive in group mode")
		}
	default:
		return fmt.Errorf("unknown redo.fsync.mode %q", c.Redo.Fsync.Mode)
	}
	if c.Redo.CrashRecoveryLookback < 0 {
		return fmt.Errorf("redo.crash_recovery_lookback must not be negative")
	}
	return nil
}

// RolloverBytes returns the rotation threshold in bytes (0 = never rotate).
func (c *RedoConfig) RolloverBytes() int64 {
	return int64(c.RolloverFileSizeMB) * 1024 * 1024
}
