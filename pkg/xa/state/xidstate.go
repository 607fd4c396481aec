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

// Package state implements the per-session XA state machine: NOTR →
// ACTIVE → IDLE → PREPARED → {committed, rolled back}, plus the
// ROLLBACK_ONLY state for branches that hit a resource-manager error.
package state

import (
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/xadb/xa-coordinator/pkg/xa/xaerr"
	"github.com/xadb/xa-coordinator/pkg/xa/xid"
)

// State is one node of the XA session state machine.
type State uint8

const (
	NOTR State = iota
	ACTIVE
	IDLE
	PREPARED
	ROLLBACKONLY
)

func (s State) String() string {
	switch s {
	case NOTR:
		return "NOTR"
	case ACTIVE:
		return "ACTIVE"
	case IDLE:
		return "IDLE"
	case PREPARED:
		return "PREPARED"
	case ROLLBACKONLY:
		return "ROLLBACK_ONLY"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Type distinguishes internally-generated XIDs from client-driven ones.
type Type uint8

const (
	Internal Type = iota
	External
)

// RMErrorKind classifies a resource-manager error for translation into
// one of the XA_RB* mnemonics by XaTransRolledBack.
type RMErrorKind uint8

const (
	RMErrorNone RMErrorKind = iota
	RMErrorTimeout
	RMErrorDeadlock
	RMErrorOther
)

// edges is the set of state transitions SetState permits, independent of
// which command triggers them; command-specific preconditions such as
// "only on RESUME with the same XID" are enforced by the caller in
// pkg/xa/coordinator before calling SetState.
var edges = map[State]map[State]bool{
	NOTR:         {ACTIVE: true},
	ACTIVE:       {IDLE: true, NOTR: true},
	IDLE:         {ACTIVE: true, PREPARED: true, NOTR: true},
	PREPARED:     {NOTR: true},
	ROLLBACKONLY: {IDLE: true, NOTR: true},
}

// XidState is the per-session XA state machine and the branch bookkeeping
// it carries while the branch lives in this session.
type XidState struct {
	state       State
	xid         *xid.XID
	rmError     uint32
	rmErrorKind RMErrorKind
	isBinlogged bool
	inRecovery  bool
	xaType      Type

	// XaLock serializes competing COMMIT/ROLLBACK of the same foreign
	// XID once the branch has been looked up in the cache. It is
	// exported because the cache hands out *TransactionCtx values that
	// embed XidState across package boundaries.
	XaLock sync.Mutex
}

// State returns the current state.
func (s *XidState) State() State { return s.state }

// XID returns the branch's XID, or nil if none has been set (state ==
// NOTR).
func (s *XidState) XID() *xid.XID { return s.xid }

// IsBinlogged reports whether this branch's PREPARE has been written to
// the binlog.
func (s *XidState) IsBinlogged() bool { return s.isBinlogged }

// SetBinlogged records that the branch's PREPARE event has reached the
// binlog.
func (s *XidState) SetBinlogged(v bool) { s.isBinlogged = v }

// InRecovery reports whether this XidState is cache-owned (came from
// startup recovery or a detach) rather than borrowed from a live session.
func (s *XidState) InRecovery() bool { return s.inRecovery }

// SetInRecovery marks the XidState as cache-owned or live-borrowed.
func (s *XidState) SetInRecovery(v bool) { s.inRecovery = v }

// Type reports whether this is one of the coordinator's own internal
// branches or a client-driven external one.
func (s *XidState) Type() Type { return s.xaType }

// StartNormalXA transitions NOTR → ACTIVE and records xid. If state is
// not NOTR it returns XAER_RMFAIL and changes nothing; a caller that
// inserted the branch into the cache first removes it again on that
// error.
func (s *XidState) StartNormalXA(x xid.XID, t Type) error {
	if s.state != NOTR {
		return xaerr.RMFail("XA START", s.state.String())
	}
	s.state = ACTIVE
	s.xid = &x
	s.xaType = t
	s.rmError = 0
	s.rmErrorKind = RMErrorNone
	s.isBinlogged = false
	s.inRecovery = false
	return nil
}

// SetState performs a table-checked transition. Returns XAER_RMFAIL if
// the edge is not in the transition table.
func (s *XidState) SetState(next State) error {
	if !edges[s.state][next] {
		return xaerr.RMFail(fmt.Sprintf("transition to %s", next), s.state.String())
	}
	s.state = next
	if next == NOTR {
		s.xid = nil
	}
	return nil
}

// SetRMError records a resource-manager failure observed while servicing
// this branch. It does not itself change state; XaTransRolledBack applies
// the state change on next observation, keeping "recording the error"
// and "translating it" as separate steps.
func (s *XidState) SetRMError(code uint32, kind RMErrorKind) {
	s.rmError = code
	s.rmErrorKind = kind
}

// RMError returns the last recorded resource-manager error code, or 0.
func (s *XidState) RMError() uint32 { return s.rmError }

// ClearRMError resets the recorded resource-manager error without
// changing state. Used only by the internal-branch rollback path; see
// DESIGN.md decision 1 for why this masking is kept rather than fixed.
func (s *XidState) ClearRMError() {
	s.rmError = 0
	s.rmErrorKind = RMErrorNone
}

// XaTransRolledBack translates a recorded resource-manager error into one
// of the XA_RB* mnemonics, moves the branch to ROLLBACK_ONLY, and returns
// the mnemonic error. If no error is recorded, it reports whether the
// branch is already ROLLBACK_ONLY from a previous call.
func (s *XidState) XaTransRolledBack() (bool, *xaerr.Error) {
	if s.rmError != 0 {
		s.state = ROLLBACKONLY
		var e *xaerr.Error
		switch s.rmErrorKind {
		case RMErrorTimeout:
			e = xaerr.RBTimeout()
		case RMErrorDeadlock:
			e = xaerr.RBDeadlock()
		default:
			e = xaerr.RBRollback()
		}
		return true, e
	}
	return s.state == ROLLBACKONLY, nil
}

// CheckInXA reports XAER_RMFAIL if the session currently has any XA
// branch open (state != NOTR). Other SQL paths call this to reject
// operations that conflict with an in-progress XA branch.
func (s *XidState) CheckInXA() error {
	if s.state != NOTR {
		return xaerr.RMFail("non-XA statement", s.state.String())
	}
	return nil
}

// CheckXAIdleOrPrepared reports XAER_RMFAIL unless the branch is IDLE or
// PREPARED.
func (s *XidState) CheckXAIdleOrPrepared() error {
	if s.state != IDLE && s.state != PREPARED {
		return xaerr.RMFail("this operation", s.state.String())
	}
	return nil
}

// CheckHasUncommittedXA reports whether the session has a branch that has
// not yet reached NOTR.
func (s *XidState) CheckHasUncommittedXA() bool {
	return s.state != NOTR
}

// StoreXidInfo emits the four XA RECOVER result-set columns for this
// branch's XID: formatID, gtrid_length, bqual_length, data. When asHex is
// true, data is 0x-prefixed hex (the CONVERT XID form); otherwise it is
// raw gtrid||bqual bytes.
func (s *XidState) StoreXidInfo(w io.Writer, asHex bool) error {
	if s.xid == nil {
		return fmt.Errorf("state: StoreXidInfo called with no XID set")
	}
	data := append(append([]byte{}, s.xid.Gtrid...), s.xid.Bqual...)
	var rendered string
	if asHex {
		rendered = "0x" + hex.EncodeToString(data)
	} else {
		rendered = string(data)
	}
	_, err := fmt.Fprintf(w, "%d\t%d\t%d\t%s\n",
		s.xid.FormatID, s.xid.GtridLength(), s.xid.BqualLength(), rendered)
	return err
}
