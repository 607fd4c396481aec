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

package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xadb/xa-coordinator/pkg/xa/state"
	"github.com/xadb/xa-coordinator/pkg/xa/xaerr"
	"github.com/xadb/xa-coordinator/pkg/xa/xid"
)

func mustXID(t *testing.T, gtrid string) xid.XID {
	x, err := xid.New(1, []byte(gtrid), nil)
	require.NoError(t, err)
	return x
}

// Double XA START with a live XID fails.
func TestInsertLiveDuplicate(t *testing.T) {
	c := New()
	x := mustXID(t, "dup")
	ctx1 := newCtx(x)
	require.NoError(t, c.InsertLive(x, ctx1))

	ctx2 := newCtx(x)
	err := c.InsertLive(x, ctx2)
	require.Error(t, err)
	xerr, ok := err.(*xaerr.Error)
	require.True(t, ok)
	require.Equal(t, xaerr.XAERDUPID, xerr.Code())
}

func TestInsertRecoveryIdempotent(t *testing.T) {
	c := New()
	x := mustXID(t, "r1")

	ctx1, err := c.InsertRecovery(x)
	require.NoError(t, err)
	require.Equal(t, state.PREPARED, ctx1.State.State())
	require.True(t, ctx1.State.InRecovery())
	require.True(t, ctx1.State.IsBinlogged())

	ctx2, err := c.InsertRecovery(x)
	require.NoError(t, err)
	require.Same(t, ctx1, ctx2)
	require.Equal(t, 1, c.Len())
}

// Cache ABA safety.
func TestDeleteABASafety(t *testing.T) {
	c := New()
	x := mustXID(t, "aba")

	ctx1 := newCtx(x)
	require.NoError(t, c.InsertLive(x, ctx1))
	require.True(t, c.Delete(ctx1))

	ctx2 := newCtx(x)
	require.NoError(t, c.InsertLive(x, ctx2))

	// A delete using the stale ctx1 handle must not evict ctx2.
	require.False(t, c.Delete(ctx1))
	got, ok := c.Search(x)
	require.True(t, ok)
	require.Same(t, ctx2, got)
}

func TestDetachPreservesBinloggedAndMarksRecovery(t *testing.T) {
	c := New()
	x := mustXID(t, "detach")
	ctx := newCtx(x)
	require.NoError(t, ctx.State.StartNormalXA(x, state.External))
	ctx.State.SetBinlogged(true)
	require.NoError(t, c.InsertLive(x, ctx))

	detached, err := c.Detach(ctx)
	require.NoError(t, err)
	require.Same(t, ctx, detached)
	require.True(t, detached.State.InRecovery())
	require.True(t, detached.State.IsBinlogged())

	// Now the cache owns it: deleting it by the same handle still
	// works (ownership doesn't change Delete's identity check).
	require.True(t, c.Delete(ctx))
}

func TestForEachVisitsAll(t *testing.T) {
	c := New()
	for _, g := range []string{"a", "b", "c"} {
		x := mustXID(t, g)
		require.NoError(t, c.InsertLive(x, newCtx(x)))
	}
	seen := map[string]bool{}
	c.ForEach(func(ctx *TransactionCtx) bool {
		seen[string(ctx.XID.Gtrid)] = true
		return true
	})
	require.Len(t, seen, 3)
}

func TestSearchMiss(t *testing.T) {
	c := New()
	_, ok := c.Search(mustXID(t, "missing"))
	require.False(t, ok)
}

func TestShutdownClearsOnlyCacheOwnedEntries(t *testing.T) {
	c := New()

	live := mustXID(t, "live")
	require.NoError(t, c.InsertLive(live, newCtx(live)))

	recovered := mustXID(t, "recovered")
	_, err := c.InsertRecovery(recovered)
	require.NoError(t, err)

	require.Equal(t, 2, c.Len())
	c.Shutdown()
	require.Equal(t, 1, c.Len())

	_, ok := c.Search(live)
	require.True(t, ok)
	_, ok = c.Search(recovered)
	require.False(t, ok)
}
