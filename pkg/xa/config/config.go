// Copyright 2026 The XA Coordinator Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the coordinator's runtime configuration, loaded
// from a TOML file into a tagged struct on top of a set of defaults.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/xadb/xa-coordinator/pkg/xa/recovery"
)

// Config is the coordinator's full set of operator-tunable knobs.
type Config struct {
	// TCHeuristicRecover mirrors tc_heuristic_recover: "OFF", "COMMIT",
	// or "ROLLBACK".
	TCHeuristicRecover string `toml:"tcHeuristicRecover"`
	// LockWaitTimeoutSeconds bounds how long a foreign-XID finalize waits
	// for the MDL commit lock before returning ER_XA_RETRY, mirroring
	// lock_wait_timeout's seconds unit.
	LockWaitTimeoutSeconds int64 `toml:"lockWaitTimeout"`
	// LogBin and LogSlaveUpdates gate whether the binlog and its derived
	// recovery sets participate at all.
	LogBin          bool `toml:"logBin"`
	LogSlaveUpdates bool `toml:"logSlaveUpdates"`
	// SQLLogBin mirrors sql_log_bin: when false, the session's own
	// statements are not written to the binlog.
	SQLLogBin bool `toml:"sqlLogBin"`
	// DDCMode mirrors ddc_mode, the setting that goes with the quoted XID
	// form (xid.ParseQuoted/SerializeQuoted). It is loaded and carried
	// only; no code in this module reads it.
	DDCMode bool `toml:"ddcMode"`
	// PreparedRegistryShards sizes the PreparedRegistry's shard count
	// (pkg/xa/registry).
	PreparedRegistryShards int `toml:"preparedRegistryShards"`
	// DSN is the go-sql-driver/mysql data source name each storage
	// engine adapter dials.
	DSN string `toml:"dsn"`
}

// Default returns the configuration the coordinator starts from before a
// TOML file is applied on top of it.
func Default() Config {
	return Config{
		TCHeuristicRecover:     "OFF",
		LockWaitTimeoutSeconds: 50,
		LogBin:                 true,
		LogSlaveUpdates:        false,
		SQLLogBin:              true,
		DDCMode:                false,
		PreparedRegistryShards: 16,
	}
}

// Load reads path as TOML on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// LockWaitTimeout is LockWaitTimeoutSeconds as a time.Duration, the unit
// engine.MDLManager.AcquireCommitLock expects.
func (c Config) LockWaitTimeout() time.Duration {
	return time.Duration(c.LockWaitTimeoutSeconds) * time.Second
}

// Heuristic translates TCHeuristicRecover into recovery.Heuristic,
// rejecting anything but the three values tc_heuristic_recover accepts.
func (c Config) Heuristic() (recovery.Heuristic, error) {
	switch c.TCHeuristicRecover {
	case "", "OFF":
		return recovery.HeuristicUnused, nil
	case "COMMIT":
		return recovery.HeuristicCommit, nil
	case "ROLLBACK":
		return recovery.HeuristicRollback, nil
	default:
		return 0, fmt.Errorf("tcHeuristicRecover: unknown value %q", c.TCHeuristicRecover)
	}
}
