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

// Package cache implements the process-wide TransactionCache: a
// concurrent mapping from XID to owned branch context, letting a session
// other than the one that prepared a branch (or the server after
// restart) commit or roll it back.
package cache

import (
	"sync"

	"github.com/xadb/xa-coordinator/pkg/xa/state"
	"github.com/xadb/xa-coordinator/pkg/xa/xaerr"
	"github.com/xadb/xa-coordinator/pkg/xa/xid"
)

// TableRef names a table whose metadata lock must be reacquired when a
// recovered branch is finalized.
type TableRef struct {
	Schema string
	Table  string
}

// TransactionCtx is the per-branch bundle the cache stores: the XID it
// represents, its XidState, opaque per-engine transaction handles, and
// the tables it modified.
type TransactionCtx struct {
	XID   xid.XID
	State *state.XidState

	// EngineHandles are opaque to the coordinator; each storage engine
	// plugin casts its own entry back to whatever handle type it
	// produced from Prepare.
	EngineHandles map[string]any

	// ModifiedTables is used to reacquire MDL locks after restart.
	ModifiedTables []TableRef
}

// newCtx allocates a TransactionCtx for x with a fresh XidState.
func newCtx(x xid.XID) *TransactionCtx {
	return &TransactionCtx{
		XID:           x,
		State:         &state.XidState{},
		EngineHandles: make(map[string]any),
	}
}

// entry wraps a TransactionCtx with whether the cache owns it (frees it
// on erase) or merely borrows it (a live session owns it).
type entry struct {
	ctx   *TransactionCtx
	owned bool
}

// Cache is the process-wide TransactionCache. A single mutex protects all
// mutations and lookups; it is held only for map-level operations and
// never across an engine or MDL call.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty Cache, to be paired with Shutdown when the server
// that owns it stops.
func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Shutdown releases every branch still held by the cache. Branches owned
// by a live session (never detached into the cache) are left to that
// session; only cache-owned (recovery/detached) entries are cleared.
// Call this once, from the same lifecycle owner that called New, when
// the server is stopping.
func (c *Cache) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if e.owned {
			delete(c.entries, key)
		}
	}
}

// Search returns the branch for x, or (nil, false) if none is cached.
// Non-blocking with respect to branch lifecycle: the returned pointer may
// be concurrently finalized by another caller.
func (c *Cache) Search(x xid.XID) (*TransactionCtx, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[x.Key()]
	if !ok {
		return nil, false
	}
	return e.ctx, true
}

// InsertLive atomically inserts ctx for x if absent. The cache does not
// take ownership: the owning session frees ctx itself (a borrowed
// entry). Returns XAER_DUPID on conflict.
func (c *Cache) InsertLive(x xid.XID, ctx *TransactionCtx) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := x.Key()
	if _, exists := c.entries[key]; exists {
		return xaerr.DupID(key)
	}
	c.entries[key] = &entry{ctx: ctx, owned: false}
	return nil
}

// InsertRecovery atomically inserts a newly allocated, cache-owned branch
// for x, initialized with state=PREPARED, in_recovery=true,
// is_binlogged=true. Idempotent: if x is already present, it returns the
// existing entry's context without modifying it.
func (c *Cache) InsertRecovery(x xid.XID) (*TransactionCtx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := x.Key()
	if e, exists := c.entries[key]; exists {
		return e.ctx, nil
	}
	ctx := newCtx(x)
	if err := ctx.State.StartNormalXA(x, state.External); err != nil {
		return nil, err
	}
	if err := ctx.State.SetState(state.IDLE); err != nil {
		return nil, err
	}
	if err := ctx.State.SetState(state.PREPARED); err != nil {
		return nil, err
	}
	ctx.State.SetInRecovery(true)
	ctx.State.SetBinlogged(true)
	c.entries[key] = &entry{ctx: ctx, owned: true}
	return ctx, nil
}

// Delete erases the entry for ctx.XID only if its current value is still
// ctx: a later branch with the same XID that replaced ctx is never
// evicted by a stale handle.
func (c *Cache) Delete(ctx *TransactionCtx) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := ctx.XID.Key()
	e, ok := c.entries[key]
	if !ok || e.ctx != ctx {
		return false
	}
	delete(c.entries, key)
	return true
}

// Detach atomically replaces a live-owned entry with an equivalent
// cache-owned (recovery) entry, preserving IsBinlogged, so the branch
// survives the owning session's teardown. Called by the coordinator's
// PREPARE for every branch that reaches PREPARED.
func (c *Cache) Detach(ctx *TransactionCtx) (*TransactionCtx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := ctx.XID.Key()
	e, ok := c.entries[key]
	if !ok || e.ctx != ctx {
		return nil, xaerr.NotA(key)
	}
	ctx.State.SetInRecovery(true)
	e.owned = true
	return ctx, nil
}

// ForEach iterates the cache under its mutex; visitor must be
// non-blocking. Used by XA RECOVER. Iteration stops early if visitor
// returns false.
func (c *Cache) ForEach(visitor func(ctx *TransactionCtx) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if !visitor(e.ctx) {
			return
		}
	}
}

// Len reports the number of cached branches. Intended for metrics/tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
