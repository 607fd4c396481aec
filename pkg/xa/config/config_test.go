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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xadb/xa-coordinator/pkg/xa/recovery"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	require.Equal(t, "OFF", cfg.TCHeuristicRecover)
	require.Equal(t, int64(50), cfg.LockWaitTimeoutSeconds)
	require.Equal(t, 50*time.Second, cfg.LockWaitTimeout())
	require.Equal(t, 16, cfg.PreparedRegistryShards)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xadbd.toml")
	const body = `
tcHeuristicRecover = "COMMIT"
lockWaitTimeout = 10
logBin = false
preparedRegistryShards = 64
dsn = "root:@tcp(127.0.0.1:3306)/"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "COMMIT", cfg.TCHeuristicRecover)
	require.Equal(t, 10*time.Second, cfg.LockWaitTimeout())
	require.False(t, cfg.LogBin)
	require.Equal(t, 64, cfg.PreparedRegistryShards)
	require.Equal(t, "root:@tcp(127.0.0.1:3306)/", cfg.DSN)

	// Untouched fields keep their default.
	require.True(t, cfg.SQLLogBin)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestHeuristicTranslation(t *testing.T) {
	cfg := Default()

	cfg.TCHeuristicRecover = "OFF"
	h, err := cfg.Heuristic()
	require.NoError(t, err)
	require.Equal(t, recovery.HeuristicUnused, h)

	cfg.TCHeuristicRecover = "COMMIT"
	h, err = cfg.Heuristic()
	require.NoError(t, err)
	require.Equal(t, recovery.HeuristicCommit, h)

	cfg.TCHeuristicRecover = "ROLLBACK"
	h, err = cfg.Heuristic()
	require.NoError(t, err)
	require.Equal(t, recovery.HeuristicRollback, h)

	cfg.TCHeuristicRecover = "bogus"
	_, err = cfg.Heuristic()
	require.Error(t, err)
}
