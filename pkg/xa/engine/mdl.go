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

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/xadb/xa-coordinator/pkg/xa/cache"
	"github.com/xadb/xa-coordinator/pkg/xa/xaerr"
	"github.com/xadb/xa-coordinator/pkg/xa/xid"
)

// MDLManager is the narrow slice of the metadata-lock manager the
// coordinator needs: acquiring the COMMIT-scope lock that serializes XA
// finalization against FLUSH TABLES WITH READ LOCK, and releasing a
// session's transactional locks. The MDL manager proper lives elsewhere
// in the server; this interface and its in-memory implementation stand
// in for it.
type MDLManager interface {
	// AcquireCommitLock blocks up to timeout for the MDL_key::COMMIT,
	// INTENTION_EXCLUSIVE, MDL_STATEMENT lock. On success it returns a
	// release function the caller must call when the statement ends. On
	// timeout it returns ER_XA_RETRY without having modified any state.
	AcquireCommitLock(ctx context.Context, timeout time.Duration) (release func(), err error)
	// ReleaseTransactionalLocks releases all locks held by sess.
	ReleaseTransactionalLocks(sess Session)
}

// BackupManager restores metadata locks for branches retained across a
// restart.
type BackupManager interface {
	CreateBackup(x xid.XID, tables []cache.TableRef) error
	RestoreBackup(x xid.XID) ([]cache.TableRef, error)
	DeleteBackup(x xid.XID) error
}

// InMemoryMDLManager is a single-slot semaphore standing in for the
// MDL_key::COMMIT lock: its INTENTION_EXCLUSIVE mode is modeled as "one
// XA finalizer at a time," since no other lock mode is exercised without
// the MDL manager proper.
type InMemoryMDLManager struct {
	sem chan struct{}
}

// NewInMemoryMDLManager returns an unlocked InMemoryMDLManager.
func NewInMemoryMDLManager() *InMemoryMDLManager {
	m := &InMemoryMDLManager{sem: make(chan struct{}, 1)}
	m.sem <- struct{}{}
	return m
}

func (m *InMemoryMDLManager) AcquireCommitLock(ctx context.Context, timeout time.Duration) (func(), error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-m.sem:
		return func() { m.sem <- struct{}{} }, nil
	case <-timer.C:
		return nil, xaerr.Retry(timeout.String())
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *InMemoryMDLManager) ReleaseTransactionalLocks(sess Session) {}

// HoldForTest acquires the commit lock without a timeout and returns the
// release function, for tests that need to simulate FLUSH TABLES WITH
// READ LOCK contention.
func (m *InMemoryMDLManager) HoldForTest() func() {
	<-m.sem
	return func() { m.sem <- struct{}{} }
}

// InMemoryBackupManager is a mutex-guarded map standing in for the MDL
// backup manager.
type InMemoryBackupManager struct {
	mu      sync.Mutex
	backups map[string][]cache.TableRef
}

// NewInMemoryBackupManager returns an empty InMemoryBackupManager.
func NewInMemoryBackupManager() *InMemoryBackupManager {
	return &InMemoryBackupManager{backups: make(map[string][]cache.TableRef)}
}

func (b *InMemoryBackupManager) CreateBackup(x xid.XID, tables []cache.TableRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backups[x.Key()] = tables
	return nil
}

func (b *InMemoryBackupManager) RestoreBackup(x xid.XID) ([]cache.TableRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tables, ok := b.backups[x.Key()]
	if !ok {
		return nil, xaerr.NotA(x.Key())
	}
	return tables, nil
}

func (b *InMemoryBackupManager) DeleteBackup(x xid.XID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.backups, x.Key())
	return nil
}
