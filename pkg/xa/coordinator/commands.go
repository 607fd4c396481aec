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

// Package coordinator implements XaCommands: the session command driver
// for XA START/END/PREPARE/COMMIT/ROLLBACK/RECOVER, wiring the XidState
// transition table to the TransactionCache, the engine plugins, the MDL
// manager, and the binlog and GTID collaborators.
package coordinator

import (
	"context"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/xadb/xa-coordinator/internal/xalog"
	"github.com/xadb/xa-coordinator/pkg/xa/cache"
	"github.com/xadb/xa-coordinator/pkg/xa/engine"
	"github.com/xadb/xa-coordinator/pkg/xa/metrics"
	"github.com/xadb/xa-coordinator/pkg/xa/registry"
	"github.com/xadb/xa-coordinator/pkg/xa/state"
	"github.com/xadb/xa-coordinator/pkg/xa/xaerr"
	"github.com/xadb/xa-coordinator/pkg/xa/xid"
)

const defaultLockWaitTimeout = 50 * time.Second

// StartOptions carries the option keywords XA START accepts on the wire.
// JOIN, SUSPEND and FOR MIGRATE are rejected; RESUME is accepted only for
// the session's own IDLE branch with the same XID.
type StartOptions struct {
	Join       bool
	Resume     bool
	Suspend    bool
	ForMigrate bool
}

// RecoverRow is one row of an XA RECOVER result set.
type RecoverRow struct {
	FormatID    int32
	GtridLength int
	BqualLength int
	Data        string
}

// XaCommands drives every session's XA state machine against the shared
// collaborators. One instance is shared by every session on the server;
// per-session state lives in the Session the caller passes to each
// method.
type XaCommands struct {
	cache    *cache.Cache
	registry *registry.PreparedRegistry
	engines  []engine.Engine
	mdl      engine.MDLManager
	backups  engine.BackupManager
	binlog   engine.BinlogFacade
	gtid     engine.GTIDTracker

	lockWaitTimeout time.Duration
	observer        StateObserver
	log             *zap.Logger
}

// New builds a XaCommands over the given collaborators.
func New(
	c *cache.Cache,
	r *registry.PreparedRegistry,
	engines []engine.Engine,
	mdl engine.MDLManager,
	backups engine.BackupManager,
	binlog engine.BinlogFacade,
	gtid engine.GTIDTracker,
	opts ...Option,
) *XaCommands {
	xc := &XaCommands{
		cache:           c,
		registry:        r,
		engines:         engines,
		mdl:             mdl,
		backups:         backups,
		binlog:          binlog,
		gtid:            gtid,
		lockWaitTimeout: defaultLockWaitTimeout,
		observer:        noopObserver{},
	}
	for _, opt := range opts {
		opt(xc)
	}
	if xc.log == nil {
		xc.log = xalog.Named("coordinator")
	}
	return xc
}

func (xc *XaCommands) notify(sess Session, x *xid.XID, from, to state.State) {
	xc.observer.OnTransition(sess.SessionID(), x, from, to)
}

// resultLabel renders err as the CommandTotal "result" label: "ok" for
// success, else the xaerr mnemonic (or "error" for an untyped error).
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if e, ok := err.(*xaerr.Error); ok {
		return e.Code().String()
	}
	return "error"
}

// Start implements XA START.
func (xc *XaCommands) Start(ctx context.Context, sess Session, x xid.XID, opts StartOptions) (err error) {
	defer func() { metrics.CommandTotal.WithLabelValues("START", resultLabel(err)).Inc() }()
	if opts.Join || opts.Suspend || opts.ForMigrate {
		return xaerr.Inval("XA START does not support JOIN, SUSPEND, or FOR MIGRATE")
	}
	if x.IsExternal() && x.HasReservedByte() {
		return xaerr.Inval("XID contains the reserved delimiter byte")
	}
	if sess.InNonXATransaction() {
		return xaerr.Outside()
	}

	st := sess.XidState()

	if opts.Resume {
		cur := st.XID()
		if st.State() != state.IDLE || cur == nil || !cur.Equal(x) {
			return xaerr.RMFail("XA START ... RESUME", st.State().String())
		}
		if err := st.SetState(state.ACTIVE); err != nil {
			return err
		}
		xc.notify(sess, &x, state.IDLE, state.ACTIVE)
		return nil
	}

	branchCtx := &cache.TransactionCtx{XID: x, State: st, EngineHandles: make(map[string]any)}
	if err := xc.cache.InsertLive(x, branchCtx); err != nil {
		return err
	}
	typ := state.External
	if !x.IsExternal() {
		typ = state.Internal
	}
	if err := st.StartNormalXA(x, typ); err != nil {
		xc.cache.Delete(branchCtx)
		return err
	}
	metrics.CachedBranches.Set(float64(xc.cache.Len()))
	xc.notify(sess, &x, state.NOTR, state.ACTIVE)
	return nil
}

// End implements XA END, valid from ACTIVE and ROLLBACK_ONLY.
func (xc *XaCommands) End(ctx context.Context, sess Session, x xid.XID) (err error) {
	defer func() { metrics.CommandTotal.WithLabelValues("END", resultLabel(err)).Inc() }()
	st := sess.XidState()
	cur := st.XID()
	if cur == nil || !cur.Equal(x) {
		return xaerr.NotA(xid.SerializeLiteral(x))
	}

	from := st.State()
	switch from {
	case state.ROLLBACKONLY:
		if err := st.SetState(state.IDLE); err != nil {
			return err
		}
		xc.notify(sess, &x, from, state.IDLE)
		_, rbErr := st.XaTransRolledBack()
		if rbErr != nil {
			return rbErr
		}
		return nil
	case state.ACTIVE:
		if err := st.SetState(state.IDLE); err != nil {
			return err
		}
		xc.notify(sess, &x, from, state.IDLE)
		return nil
	default:
		return xaerr.RMFail("XA END", from.String())
	}
}

// Prepare implements XA PREPARE, valid only from IDLE.
func (xc *XaCommands) Prepare(ctx context.Context, sess Session) (err error) {
	defer func() { metrics.CommandTotal.WithLabelValues("PREPARE", resultLabel(err)).Inc() }()
	st := sess.XidState()
	if st.State() != state.IDLE {
		return xaerr.RMFail("XA PREPARE", st.State().String())
	}
	if sess.IsReplicationApplier() && !sess.HasEngineVisibleWork() {
		return xaerr.ReplicationFilters()
	}

	for _, e := range xc.engines {
		if err := e.Prepare(ctx, sess); err != nil {
			st.SetRMError(uint32(xaerr.XAERRMERR), state.RMErrorOther)
			_, rbErr := st.XaTransRolledBack()
			xc.log.Warn("xa prepare failed, branch moved to rollback-only",
				zap.Uint64("session_id", sess.SessionID()), zap.String("engine", e.Name()), zap.Error(err))
			if rbErr != nil {
				return rbErr
			}
			return err
		}
	}

	if err := st.SetState(state.PREPARED); err != nil {
		return err
	}
	st.SetBinlogged(true)
	xc.notify(sess, st.XID(), state.IDLE, state.PREPARED)

	if st.Type() == state.External {
		xc.registry.AddID(xid.SerializeLiteral(*st.XID()))
	}

	// Detach unconditionally: a replication applier needs this to swap
	// its native transaction handle, and every other PREPARED branch
	// must be cache-visible too, since finalizeForeign only accepts a
	// branch that is already InRecovery().
	branchCtx, ok := xc.cache.Search(*st.XID())
	if ok {
		if _, err := xc.cache.Detach(branchCtx); err != nil {
			xc.log.Warn("detach of prepared branch into cache failed",
				zap.Uint64("session_id", sess.SessionID()), zap.Error(err))
		}
	}
	return nil
}

// CommitSelf implements XA COMMIT [ONE PHASE] of the session's own
// branch. It calls CommitByXID directly against each engine rather than
// going through finalizeForeign's MDL-backup-restore sequence: an own
// branch's locks are still attached to this session, never backed up
// for a foreign finalizer to reacquire. A PREPARED branch was, however,
// detached into the cache by Prepare, so it is just as reachable
// through CommitForeign as through here; lockOwnPreparedBranch takes
// the same per-branch XaLock finalizeForeign does and re-checks cache
// membership, so only one of the two paths ever reaches the engine
// commit below.
func (xc *XaCommands) CommitSelf(ctx context.Context, sess Session, x xid.XID, onePhase bool) (err error) {
	defer func() { metrics.CommandTotal.WithLabelValues("COMMIT", resultLabel(err)).Inc() }()
	st := sess.XidState()
	cur := st.XID()
	if cur == nil || !cur.Equal(x) {
		return xaerr.NotA(xid.SerializeLiteral(x))
	}

	from := st.State()
	if onePhase {
		if from != state.IDLE {
			return xaerr.RMFail("XA COMMIT ... ONE PHASE", from.String())
		}
	} else if from != state.PREPARED {
		return xaerr.RMFail("XA COMMIT", from.String())
	}

	unlock, err := xc.lockOwnPreparedBranch(x, from)
	if err != nil {
		return err
	}
	defer unlock()

	needClear, err := xc.gtid.CommitOwnedGtids(ctx, sess)
	if err != nil {
		return xaerr.RMErr("commit owned gtids: %v", err)
	}

	var commitErr error
	for _, e := range xc.engines {
		if err := e.CommitByXID(ctx, x, onePhase); err != nil && !xaerr.Is(err, xaerr.XAERNOTA) {
			commitErr = err
			break
		}
	}
	xc.gtid.CommitOrRollback(ctx, sess, needClear, commitErr == nil)
	if commitErr != nil {
		return xaerr.RMErr("engine commit of own branch: %v", commitErr)
	}

	if err := xc.binlog.Commit(ctx, sess, true); err != nil {
		xc.log.Warn("binlog group-commit for own XA branch failed",
			zap.Uint64("session_id", sess.SessionID()), zap.Error(err))
	}

	xc.finishOwnBranch(sess, x, from)
	return nil
}

// RollbackSelf implements XA ROLLBACK of the session's own branch, valid
// from ACTIVE (a forced rollback), IDLE, PREPARED, and ROLLBACK_ONLY.
func (xc *XaCommands) RollbackSelf(ctx context.Context, sess Session, x xid.XID) (err error) {
	defer func() { metrics.CommandTotal.WithLabelValues("ROLLBACK", resultLabel(err)).Inc() }()
	st := sess.XidState()
	cur := st.XID()
	if cur == nil || !cur.Equal(x) {
		return xaerr.NotA(xid.SerializeLiteral(x))
	}

	from := st.State()
	switch from {
	case state.ACTIVE, state.IDLE, state.PREPARED, state.ROLLBACKONLY:
	default:
		return xaerr.RMFail("XA ROLLBACK", from.String())
	}

	unlock, err := xc.lockOwnPreparedBranch(x, from)
	if err != nil {
		return err
	}
	defer unlock()

	for _, e := range xc.engines {
		if err := e.RollbackByXID(ctx, x); err != nil && !xaerr.Is(err, xaerr.XAERNOTA) {
			return xaerr.RMErr("engine rollback of own branch: %v", err)
		}
	}
	xc.gtid.CommitOrRollback(ctx, sess, false, false)

	// Clear rm_error rather than leave a stale error code visible on a
	// session that has already been returned to NOTR; log it so the
	// masking stays visible. See DESIGN.md decision 1.
	if st.RMError() != 0 {
		xc.log.Warn("clearing rm_error on rollback of own branch",
			zap.Uint64("session_id", sess.SessionID()), zap.Uint32("rm_error", st.RMError()))
		st.ClearRMError()
	}

	xc.finishOwnBranch(sess, x, from)
	return nil
}

// lockOwnPreparedBranch guards the own-branch commit/rollback path
// against a concurrent CommitForeign/RollbackForeign of the same XID.
// Prepare detaches every PREPARED branch into the cache, marking it
// InRecovery so a foreign finalizer can reach it too; from any other
// state the branch was never detached and only this session can see
// it, so no lock is needed and the returned unlock is a no-op. When
// from is PREPARED this takes the branch's XaLock and re-checks cache
// membership the same way finalizeForeign does, so the two commit
// paths can never both reach the engine below for the same XID.
func (xc *XaCommands) lockOwnPreparedBranch(x xid.XID, from state.State) (unlock func(), err error) {
	if from != state.PREPARED {
		return func() {}, nil
	}
	branchCtx, ok := xc.cache.Search(x)
	if !ok {
		return nil, xaerr.NotA(xid.SerializeLiteral(x))
	}
	branchCtx.State.XaLock.Lock()

	reCheck, ok := xc.cache.Search(x)
	if !ok || reCheck != branchCtx {
		branchCtx.State.XaLock.Unlock()
		return nil, xaerr.NotA(xid.SerializeLiteral(x))
	}
	return branchCtx.State.XaLock.Unlock, nil
}

func (xc *XaCommands) finishOwnBranch(sess Session, x xid.XID, from state.State) {
	st := sess.XidState()
	if branchCtx, ok := xc.cache.Search(x); ok {
		xc.cache.Delete(branchCtx)
		metrics.CachedBranches.Set(float64(xc.cache.Len()))
	}
	if x.IsExternal() {
		xc.registry.DelID(xid.SerializeLiteral(x))
	}
	_ = st.SetState(state.NOTR)
	xc.notify(sess, &x, from, state.NOTR)
	sess.ClearTransactionFlags()
}

// CommitForeign implements the foreign-XID commit sequence: finalizing a
// branch prepared by another session or recovered at startup.
func (xc *XaCommands) CommitForeign(ctx context.Context, sess Session, x xid.XID) (err error) {
	defer func() { metrics.CommandTotal.WithLabelValues("COMMIT_FOREIGN", resultLabel(err)).Inc() }()
	return xc.finalizeForeign(ctx, sess, x, true)
}

// RollbackForeign is CommitForeign's rollback counterpart.
func (xc *XaCommands) RollbackForeign(ctx context.Context, sess Session, x xid.XID) (err error) {
	defer func() { metrics.CommandTotal.WithLabelValues("ROLLBACK_FOREIGN", resultLabel(err)).Inc() }()
	return xc.finalizeForeign(ctx, sess, x, false)
}

func (xc *XaCommands) finalizeForeign(ctx context.Context, sess Session, x xid.XID, commit bool) error {
	branchCtx, ok := xc.cache.Search(x)
	if !ok {
		return xaerr.NotA(xid.SerializeLiteral(x))
	}
	if branchCtx.State.State() != state.PREPARED || !branchCtx.State.InRecovery() {
		return xaerr.NotA(xid.SerializeLiteral(x))
	}

	branchCtx.State.XaLock.Lock()
	defer branchCtx.State.XaLock.Unlock()

	// Re-check: the branch may have been finalized by another session
	// while we waited for xa_lock.
	reCheck, ok := xc.cache.Search(x)
	if !ok || reCheck != branchCtx {
		return xaerr.NotA(xid.SerializeLiteral(x))
	}

	lockWaitStart := time.Now()
	release, err := xc.mdl.AcquireCommitLock(ctx, xc.lockWaitTimeout)
	metrics.CommitLockWaitSeconds.Observe(time.Since(lockWaitStart).Seconds())
	if err != nil {
		return err
	}
	defer release()

	if tables, restoreErr := xc.backups.RestoreBackup(x); restoreErr == nil {
		_ = tables // reacquired by the MDL manager proper, not by this package
	} else if !xaerr.Is(restoreErr, xaerr.XAERNOTA) {
		return xaerr.RMErr("restore MDL backup for %v: %v", x, restoreErr)
	}

	for _, e := range xc.engines {
		var err error
		if commit {
			err = e.CommitByXID(ctx, x, false)
		} else {
			err = e.RollbackByXID(ctx, x)
		}
		if err != nil && !xaerr.Is(err, xaerr.XAERNOTA) {
			return xaerr.RMErr("engine finalize of foreign XID %v: %v", x, err)
		}
	}

	if err := xc.backups.DeleteBackup(x); err != nil && !xaerr.Is(err, xaerr.XAERNOTA) {
		xc.log.Warn("delete MDL backup failed", zap.Error(err))
	}

	from := branchCtx.State.State()
	_ = branchCtx.State.SetState(state.NOTR)
	xc.cache.Delete(branchCtx)
	metrics.CachedBranches.Set(float64(xc.cache.Len()))
	if x.IsExternal() {
		xc.registry.DelID(xid.SerializeLiteral(x))
	}
	xc.notify(sess, &x, from, state.NOTR)
	return nil
}

// Recover implements XA RECOVER [CONVERT XID]: every PREPARED branch
// currently visible to this server, across live sessions and recovered
// ones alike.
func (xc *XaCommands) Recover(ctx context.Context, convertXID bool) []RecoverRow {
	var rows []RecoverRow
	xc.cache.ForEach(func(branchCtx *cache.TransactionCtx) bool {
		if branchCtx.State.State() != state.PREPARED {
			return true
		}
		x := branchCtx.State.XID()
		if x == nil {
			return true
		}
		rows = append(rows, recoverRow(*x, convertXID))
		return true
	})
	return rows
}

func recoverRow(x xid.XID, convertXID bool) RecoverRow {
	data := append(append([]byte{}, x.Gtrid...), x.Bqual...)
	var rendered string
	if convertXID {
		rendered = "0x" + hex.EncodeToString(data)
	} else {
		rendered = string(data)
	}
	return RecoverRow{
		FormatID:    x.FormatID,
		GtridLength: x.GtridLength(),
		BqualLength: x.BqualLength(),
		Data:        rendered,
	}
}
