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

// Package xaerr defines the XA/ER_* error taxonomy surfaced to clients
// by the coordinator: a (code, message, constructor) shape scoped to the
// mnemonics this coordinator needs, without a wire-transport payload
// since these errors never leave the process.
package xaerr

import "fmt"

// Code is one of the XA mnemonic error codes.
type Code uint16

const (
	// OK is the zero value: no error.
	OK Code = iota

	// XAER_NOTA: the XID named by the command is not known to the cache
	// or to the resource manager.
	XAERNOTA
	// XAER_DUPID: XA START named an XID already present in the cache.
	XAERDUPID
	// XAER_INVAL: the command used an invalid option or an XID
	// containing the reserved delimiter byte.
	XAERINVAL
	// XAER_RMFAIL: the command was issued while the session's XidState
	// was in a state the command does not support.
	XAERRMFAIL
	// XAER_RMERR: a resource manager (storage engine or MDL) returned a
	// hard error while servicing the command.
	XAERRMERR
	// XAER_OUTSIDE: XA START was issued while the session already had a
	// non-XA transaction open.
	XAEROUTSIDE
	// XA_RBROLLBACK: the branch was unilaterally rolled back by the
	// resource manager for an unspecified reason.
	XARBROLLBACK
	// XA_RBTIMEOUT: the branch was unilaterally rolled back after the
	// resource manager's own timeout.
	XARBTIMEOUT
	// XA_RBDEADLOCK: the branch was unilaterally rolled back after the
	// resource manager detected a deadlock.
	XARBDEADLOCK
	// ERXARETRY: the commit metadata lock could not be acquired within
	// lock_wait_timeout; the branch is unchanged and the caller should
	// retry.
	ERXARETRY
	// ERXAReplicationFilters: PREPARE of an XA branch with no
	// engine-visible work was attempted on a replication applier
	// session.
	ERXAReplicationFilters
)

var mnemonics = map[Code]string{
	OK:                     "OK",
	XAERNOTA:               "XAER_NOTA",
	XAERDUPID:              "XAER_DUPID",
	XAERINVAL:              "XAER_INVAL",
	XAERRMFAIL:             "XAER_RMFAIL",
	XAERRMERR:              "XAER_RMERR",
	XAEROUTSIDE:            "XAER_OUTSIDE",
	XARBROLLBACK:           "XA_RBROLLBACK",
	XARBTIMEOUT:            "XA_RBTIMEOUT",
	XARBDEADLOCK:           "XA_RBDEADLOCK",
	ERXARETRY:              "ER_XA_RETRY",
	ERXAReplicationFilters: "ER_XA_REPLICATION_FILTERS",
}

// Error is a coordinator error carrying one of the XA mnemonic codes.
type Error struct {
	code    Code
	message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.message == "" {
		return e.code.String()
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Code returns the mnemonic error code.
func (e *Error) Code() Code { return e.code }

// String renders a Code's mnemonic name.
func (c Code) String() string {
	if s, ok := mnemonics[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", uint16(c))
}

// New builds an *Error for code with an optional formatted message.
func New(code Code, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{code: code, message: msg}
}

// Is reports whether err is an *Error carrying code.
func Is(err error, code Code) bool {
	if err == nil {
		return code == OK
	}
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.code == code
}

// NotA, DupID, ... are thin constructors used throughout the coordinator.

func NotA(xidText string) *Error {
	return New(XAERNOTA, "unknown XID %s", xidText)
}

func DupID(xidText string) *Error {
	return New(XAERDUPID, "XID %s is already known", xidText)
}

func Inval(format string, args ...any) *Error {
	return New(XAERINVAL, format, args...)
}

func RMFail(command, state string) *Error {
	return New(XAERRMFAIL, "%s is not permitted in state %s", command, state)
}

func RMErr(format string, args ...any) *Error {
	return New(XAERRMERR, format, args...)
}

func Outside() *Error {
	return New(XAEROUTSIDE, "XA START issued inside another transaction")
}

func RBRollback() *Error {
	return New(XARBROLLBACK, "branch was rolled back by the resource manager")
}

func RBTimeout() *Error {
	return New(XARBTIMEOUT, "branch was rolled back after a resource manager timeout")
}

func RBDeadlock() *Error {
	return New(XARBDEADLOCK, "branch was rolled back after deadlock detection")
}

func Retry(waited string) *Error {
	return New(ERXARETRY, "commit lock wait timed out after %s, retry", waited)
}

func ReplicationFilters() *Error {
	return New(ERXAReplicationFilters, "XA branch has no engine-visible work on a replication applier")
}
