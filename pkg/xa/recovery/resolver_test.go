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

package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xadb/xa-coordinator/pkg/xa/cache"
	"github.com/xadb/xa-coordinator/pkg/xa/engine"
	"github.com/xadb/xa-coordinator/pkg/xa/registry"
	"github.com/xadb/xa-coordinator/pkg/xa/xaerr"
	"github.com/xadb/xa-coordinator/pkg/xa/xid"
)

func errNotA(x xid.XID) error { return xaerr.NotA(xid.SerializeLiteral(x)) }

type fakeEngine struct {
	name      string
	branches  []engine.RecoveredBranch
	committed []xid.XID
	rolledBk  []xid.XID
	notAOnly  bool
}

func (f *fakeEngine) Name() string { return f.name }
func (f *fakeEngine) Prepare(ctx context.Context, sess engine.Session) error { return nil }
func (f *fakeEngine) CommitByXID(ctx context.Context, x xid.XID, onePhase bool) error {
	if f.notAOnly {
		return errNotA(x)
	}
	f.committed = append(f.committed, x)
	return nil
}
func (f *fakeEngine) RollbackByXID(ctx context.Context, x xid.XID) error {
	if f.notAOnly {
		return errNotA(x)
	}
	f.rolledBk = append(f.rolledBk, x)
	return nil
}
func (f *fakeEngine) Recover(ctx context.Context) ([]engine.RecoveredBranch, error) {
	return f.branches, nil
}
func (f *fakeEngine) ReplaceNativeTransaction(ctx context.Context, sess engine.Session, newHandle any) (any, error) {
	return nil, nil
}

func mustXID(t *testing.T, gtrid string) xid.XID {
	x, err := xid.New(1, []byte(gtrid), nil)
	require.NoError(t, err)
	return x
}

func newHarness() (*cache.Cache, *registry.PreparedRegistry, *engine.InMemoryBackupManager) {
	return cache.New(), registry.New(4), engine.NewInMemoryBackupManager()
}

// Recovery rollback of an orphan engine branch.
func TestResolveRollsBackOrphan(t *testing.T) {
	x := mustXID(t, "orphan")
	fe := &fakeEngine{name: "e1", branches: []engine.RecoveredBranch{{XID: x}}}
	c, r, bm := newHarness()
	resolver := New(c, r, bm, []engine.Engine{fe})

	sets := engine.BinlogSets{
		XAPrepared:          map[string]struct{}{},
		XAOnePhaseCommitted: map[string]struct{}{},
		XACommitted:         map[string]struct{}{},
		XAAborted:           map[string]struct{}{},
		CommitList:          map[uint64]struct{}{},
	}
	result, err := resolver.Resolve(context.Background(), sets, Options{})
	require.NoError(t, err)
	require.Len(t, result.EngineRolledBack, 1)
	_, ok := c.Search(x)
	require.False(t, ok)
}

// Recovery retains a branch for the external TM.
func TestResolveRetainsForExternalTM(t *testing.T) {
	x := mustXID(t, "ext")
	fe := &fakeEngine{name: "e1", branches: []engine.RecoveredBranch{{XID: x}}}
	c, r, bm := newHarness()
	resolver := New(c, r, bm, []engine.Engine{fe})

	sets := engine.BinlogSets{
		XAPrepared:          map[string]struct{}{x.Key(): {}},
		XAOnePhaseCommitted: map[string]struct{}{},
		XACommitted:         map[string]struct{}{},
		XAAborted:           map[string]struct{}{},
		CommitList:          map[uint64]struct{}{},
	}
	result, err := resolver.Resolve(context.Background(), sets, Options{})
	require.NoError(t, err)
	require.Len(t, result.Retained, 1)
	ctx, ok := c.Search(x)
	require.True(t, ok)
	require.True(t, ctx.State.InRecovery())
	require.True(t, r.Has(xid.SerializeLiteral(x)))
}

// Each row of the decision table.
func TestDecideExternalTable(t *testing.T) {
	x := mustXID(t, "x")
	base := func() engine.BinlogSets {
		return engine.BinlogSets{
			XAPrepared:          map[string]struct{}{},
			XAOnePhaseCommitted: map[string]struct{}{},
			XACommitted:         map[string]struct{}{},
			XAAborted:           map[string]struct{}{},
		}
	}

	onePhase := base()
	onePhase.XAOnePhaseCommitted[x.Key()] = struct{}{}
	require.Equal(t, Commit, decideExternal(onePhase, engine.RecoveredBranch{XID: x}))

	notPrepared := base()
	require.Equal(t, Rollback, decideExternal(notPrepared, engine.RecoveredBranch{XID: x}))

	committed := base()
	committed.XAPrepared[x.Key()] = struct{}{}
	committed.XACommitted[x.Key()] = struct{}{}
	require.Equal(t, Commit, decideExternal(committed, engine.RecoveredBranch{XID: x}))

	aborted := base()
	aborted.XAPrepared[x.Key()] = struct{}{}
	aborted.XAAborted[x.Key()] = struct{}{}
	require.Equal(t, Rollback, decideExternal(aborted, engine.RecoveredBranch{XID: x}))

	cloned := base()
	cloned.XAPrepared[x.Key()] = struct{}{}
	require.Equal(t, Rollback, decideExternal(cloned, engine.RecoveredBranch{XID: x, OnePhasePrepared: true}))

	retain := base()
	retain.XAPrepared[x.Key()] = struct{}{}
	require.Equal(t, Retain, decideExternal(retain, engine.RecoveredBranch{XID: x}))
}

func TestDecideInternal(t *testing.T) {
	sets := engine.BinlogSets{CommitList: map[uint64]struct{}{7: {}}}
	require.Equal(t, Commit, decideInternal(sets, 7, HeuristicUnused))
	require.Equal(t, Rollback, decideInternal(sets, 8, HeuristicUnused))
	require.Equal(t, Commit, decideInternal(sets, 8, HeuristicCommit))
}

func TestEffectiveHeuristicForcesRollbackWithSingleEngine(t *testing.T) {
	opts := Options{Heuristic: HeuristicCommit, TotalEnginesWithTwoPC: 1, HasBinlog: true}
	require.Equal(t, HeuristicRollback, opts.effectiveHeuristic())

	opts2 := Options{Heuristic: HeuristicCommit, TotalEnginesWithTwoPC: 3, HasBinlog: true}
	require.Equal(t, HeuristicCommit, opts2.effectiveHeuristic())
}

// Dry-run purity.
func TestDryRunCountsOnly(t *testing.T) {
	x := mustXID(t, "foreign")
	internal := xid.NewInternal(1, 5)
	fe := &fakeEngine{name: "e1", branches: []engine.RecoveredBranch{{XID: x}}}
	c, r, bm := newHarness()
	resolver := New(c, r, bm, []engine.Engine{fe})

	sets := engine.BinlogSets{}
	result, err := resolver.Resolve(context.Background(), sets, Options{DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 1, result.FoundForeignXids)
	require.Equal(t, 0, result.FoundMyXids)
	require.Equal(t, 0, c.Len())

	fe2 := &fakeEngine{name: "e2", branches: []engine.RecoveredBranch{{XID: internal}}}
	resolver2 := New(c, r, bm, []engine.Engine{fe2})
	_, err = resolver2.Resolve(context.Background(), sets, Options{DryRun: true})
	require.Error(t, err)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
}

func TestToleratesNotAOnCommitFanOut(t *testing.T) {
	x := mustXID(t, "tolerant")
	fe := &fakeEngine{name: "e1", branches: []engine.RecoveredBranch{{XID: x}}, notAOnly: true}
	c, r, bm := newHarness()
	resolver := New(c, r, bm, []engine.Engine{fe})

	sets := engine.BinlogSets{
		XAPrepared:          map[string]struct{}{},
		XAOnePhaseCommitted: map[string]struct{}{x.Key(): {}},
		XACommitted:         map[string]struct{}{},
		XAAborted:           map[string]struct{}{},
	}
	result, err := resolver.Resolve(context.Background(), sets, Options{})
	require.NoError(t, err)
	require.Len(t, result.EngineCommitted, 1)
}
