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

// Package recovery implements the RecoveryResolver: at startup, it
// reconciles each storage engine's prepared branches against the
// binlog's derived sets and decides, per branch, whether to commit,
// roll back, or retain it in the cache for an external transaction
// manager.
//
// The decision is modeled as an explicit Decision enum rather than
// nested goto-based control flow.
package recovery

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xadb/xa-coordinator/internal/xalog"
	"github.com/xadb/xa-coordinator/pkg/xa/cache"
	"github.com/xadb/xa-coordinator/pkg/xa/engine"
	"github.com/xadb/xa-coordinator/pkg/xa/metrics"
	"github.com/xadb/xa-coordinator/pkg/xa/registry"
	"github.com/xadb/xa-coordinator/pkg/xa/xaerr"
	"github.com/xadb/xa-coordinator/pkg/xa/xid"
)

// Decision is the outcome of classifying one recovered branch.
type Decision uint8

const (
	Commit Decision = iota
	Rollback
	Retain
)

func (d Decision) String() string {
	switch d {
	case Commit:
		return "commit"
	case Rollback:
		return "rollback"
	case Retain:
		return "retain"
	default:
		return "unknown"
	}
}

// Heuristic is the operator-configured tc_heuristic_recover setting used
// for internal branches with no log-based decision available.
type Heuristic uint8

const (
	HeuristicUnused Heuristic = iota
	HeuristicCommit
	HeuristicRollback
)

// Options configures one run of Resolve.
type Options struct {
	// DryRun disables acting on decisions: only found_foreign_xids and
	// found_my_xids are counted.
	DryRun bool
	// Heuristic is the configured tc_heuristic_recover value.
	Heuristic Heuristic
	// TotalEnginesWithTwoPC is the number of participating storage
	// engines that support 2PC. Combined with HasBinlog it forces the
	// heuristic to Rollback when there is at most one such engine: safe
	// with a single 2PC engine.
	TotalEnginesWithTwoPC int
	// HasBinlog reports whether the binlog itself participates in 2PC.
	HasBinlog bool
	// Logger receives recovery progress; defaults to xalog.Default().
	Logger *zap.Logger
}

func (o Options) effectiveHeuristic() Heuristic {
	limit := 1
	if o.HasBinlog {
		limit++
	}
	if o.TotalEnginesWithTwoPC <= limit {
		return HeuristicRollback
	}
	return o.Heuristic
}

// Result summarizes one Resolve run.
type Result struct {
	FoundForeignXids int
	FoundMyXids      int
	EngineCommitted  []xid.XID
	EngineRolledBack []xid.XID
	Retained         []xid.XID
}

// FatalError wraps a recovery-fatal condition — an engine hard error,
// OOM on MDL backup allocation, or, in dry-run mode, the discovery of
// internal XIDs at all — that means the server must fail to start.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string { return "xa recovery: fatal: " + e.Cause.Error() }
func (e *FatalError) Unwrap() error { return e.Cause }

// Resolver runs the startup recovery scan.
type Resolver struct {
	cache    *cache.Cache
	registry *registry.PreparedRegistry
	backups  engine.BackupManager
	engines  []engine.Engine
}

// New builds a Resolver over the given engines, wired to insert retained
// branches into c and r and reacquire MDL backups via bm.
func New(c *cache.Cache, r *registry.PreparedRegistry, bm engine.BackupManager, engines []engine.Engine) *Resolver {
	return &Resolver{cache: c, registry: r, backups: bm, engines: engines}
}

// Resolve runs the full recovery algorithm against sets observed from
// the binlog.
func (res *Resolver) Resolve(ctx context.Context, sets engine.BinlogSets, opts Options) (Result, error) {
	log := opts.Logger
	if log == nil {
		log = xalog.Named("recovery")
	}

	var result Result
	heuristic := opts.effectiveHeuristic()

	for _, e := range res.engines {
		branches, err := e.Recover(ctx)
		if err != nil {
			return result, &FatalError{Cause: fmt.Errorf("engine %s: recover: %w", e.Name(), err)}
		}

		for _, b := range branches {
			my := b.XID.MyXID()
			if my == 0 {
				result.FoundForeignXids++
			} else {
				result.FoundMyXids++
			}

			if opts.DryRun {
				continue
			}

			var decision Decision
			if my == 0 {
				decision = decideExternal(sets, b)
			} else {
				decision = decideInternal(sets, my, heuristic)
			}

			metrics.RecoveryDecisionTotal.WithLabelValues(decision.String()).Inc()
			switch decision {
			case Commit:
				if err := commitOrTolerateNotA(ctx, e, b.XID); err != nil {
					return result, &FatalError{Cause: fmt.Errorf("engine %s: commit %v: %w", e.Name(), b.XID, err)}
				}
				result.EngineCommitted = append(result.EngineCommitted, b.XID)
			case Rollback:
				if err := rollbackOrTolerateNotA(ctx, e, b.XID); err != nil {
					return result, &FatalError{Cause: fmt.Errorf("engine %s: rollback %v: %w", e.Name(), b.XID, err)}
				}
				result.EngineRolledBack = append(result.EngineRolledBack, b.XID)
			case Retain:
				if _, err := res.cache.InsertRecovery(b.XID); err != nil {
					return result, &FatalError{Cause: fmt.Errorf("insert recovery branch %v: %w", b.XID, err)}
				}
				res.registry.AddID(xid.SerializeLiteral(b.XID))
				if err := res.backups.CreateBackup(b.XID, b.ModifiedTables); err != nil {
					return result, &FatalError{Cause: fmt.Errorf("create MDL backup for %v: %w", b.XID, err)}
				}
				result.Retained = append(result.Retained, b.XID)
			}
		}
	}

	if opts.DryRun {
		if result.FoundMyXids > 0 {
			return result, &FatalError{Cause: fmt.Errorf(
				"%d internal XID(s) found prepared with binlog recovery disabled; see the transaction coordinator log", result.FoundMyXids)}
		}
		log.Info("dry-run recovery scan complete",
			zap.Int("found_foreign_xids", result.FoundForeignXids),
			zap.Int("found_my_xids", result.FoundMyXids))
		return result, nil
	}

	log.Info("recovery scan complete",
		zap.Int("committed", len(result.EngineCommitted)),
		zap.Int("rolled_back", len(result.EngineRolledBack)),
		zap.Int("retained", len(result.Retained)))
	return result, nil
}

// decideExternal implements the external-branch decision table as a
// pure function — no goto.
func decideExternal(sets engine.BinlogSets, b engine.RecoveredBranch) Decision {
	switch {
	case sets.IsOnePhaseCommitted(b.XID):
		return Commit
	case !sets.IsPrepared(b.XID):
		return Rollback
	case sets.IsCommitted(b.XID):
		return Commit
	case sets.IsAborted(b.XID):
		return Rollback
	case b.OnePhasePrepared:
		// Only possible for the first startup of a cloned instance;
		// a documented heuristic, not a proven invariant.
		return Rollback
	default:
		return Retain
	}
}

// decideInternal implements the internal-branch decision.
func decideInternal(sets engine.BinlogSets, my uint64, heuristic Heuristic) Decision {
	if sets.IsInternallyCommitted(my) {
		return Commit
	}
	if heuristic == HeuristicCommit {
		return Commit
	}
	return Rollback
}

func commitOrTolerateNotA(ctx context.Context, e engine.Engine, x xid.XID) error {
	// A recovered branch was always actually prepared (that's what made
	// it show up in XA RECOVER); finalizing it here is never ONE PHASE.
	return tolerateNotA(e.CommitByXID(ctx, x, false))
}

func rollbackOrTolerateNotA(ctx context.Context, e engine.Engine, x xid.XID) error {
	return tolerateNotA(e.RollbackByXID(ctx, x))
}

func tolerateNotA(err error) error {
	if err == nil || xaerr.Is(err, xaerr.XAERNOTA) {
		return nil
	}
	return err
}
