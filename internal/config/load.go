package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultEnvPrefix is the environment prefix Load uses when none is given.
const DefaultEnvPrefix = "REDOLOG"

// Load builds a Config from defaults, an optional config file and environment
// variables, in increasing order of precedence.
//
// path may be empty. Environment keys are the upper-cased config keys with dots
// replaced by underscores, e.g. REDOLOG_REDO_FSYNC_MODE.
func Load(path, envPrefix string) (*Config, error) {
	if envPrefix == "" {
		envPrefix = DefaultEnvPrefix
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that no
// config file mentions.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("redo.enabled", d.Redo.Enabled)
	v.SetDefault("redo.log_path", d.Redo.LogPath)
	v.SetDefault("redo.archive_dir", d.Redo.ArchiveDir)
	v.SetDefault("redo.rollover_file_size_mb", d.Redo.RolloverFileSizeMB)
	v.SetDefault("redo.fsync.mode", string(d.Redo.Fsync.Mode))
	v.SetDefault("redo.fsync.interval", d.Redo.Fsync.Interval)
	v.SetDefault("redo.fsync.max_batch_size", d.Redo.Fsync.MaxBatchSize)
	v.SetDefault("redo.role", string(d.Redo.Role))
	v.SetDefault("redo.server_id", d.Redo.ServerID)
	v.SetDefault("redo.crash_recovery_lookback", d.Redo.CrashRecoveryLookback)
	v.SetDefault("redo.ignore_replay_errors", d.Redo.IgnoreReplayErrors)
	v.SetDefault("redo.skip_delete_ops", d.Redo.SkipDeleteOps)
	v.SetDefault("redo.handle_mailbox_conflict", d.Redo.HandleMailboxConflict)

	v.SetDefault("mailbox.dsn", d.Mailbox.DSN)
	v.SetDefault("restore.workers", d.Restore.Workers)
	v.SetDefault("admin.addr", d.Admin.Addr)
}
