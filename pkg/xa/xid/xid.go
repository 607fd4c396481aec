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

// Package xid implements the X/Open transaction identifier: the
// (format_id, gtrid, bqual) triple that names one branch of a distributed
// transaction, plus the server's internal encoding used for single-engine
// two-phase commit with the binlog.
package xid

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	// MaxGtridLength is the largest permitted gtrid, in bytes.
	MaxGtridLength = 64
	// MaxBqualLength is the largest permitted bqual, in bytes.
	MaxBqualLength = 64
	// MaxDataLength is the largest permitted gtrid+bqual combined.
	MaxDataLength = 128
	// ReservedByte cannot appear in the data of an externally-classified
	// XID: the binlog serialization of PreparedRegistry uses it as a
	// field delimiter.
	ReservedByte = '|'
)

var (
	// ErrGtridLength is returned when gtrid is empty or too long.
	ErrGtridLength = errors.New("xid: gtrid must be 1..64 bytes")
	// ErrBqualLength is returned when bqual is too long.
	ErrBqualLength = errors.New("xid: bqual must be 0..64 bytes")
	// ErrDataLength is returned when gtrid+bqual exceeds MaxDataLength.
	ErrDataLength = errors.New("xid: gtrid+bqual exceeds 128 bytes")
)

// InternalPrefix marks a gtrid as encoding one of this coordinator's own
// internal (single-engine + binlog) two-phase-commit branches.
var InternalPrefix = []byte("xadb-2pc")

// internalGtridLength is len(InternalPrefix) + 4 (server id) + 8 (trx id).
var internalGtridLength = len(InternalPrefix) + 4 + 8

// SystemXID is the sentinel returned by Classify for pre-connection
// internal sessions that have no XID of their own yet. It is never
// produced by ordinary classification of a real XID — see DESIGN.md
// decision 3.
const SystemXID = ^uint64(0)

// XID is an X/Open transaction identifier. Two XIDs are equal iff all
// three fields match byte-exactly.
type XID struct {
	FormatID int32
	Gtrid    []byte
	Bqual    []byte
}

// New validates field lengths and returns an XID.
func New(formatID int32, gtrid, bqual []byte) (XID, error) {
	if len(gtrid) == 0 || len(gtrid) > MaxGtridLength {
		return XID{}, ErrGtridLength
	}
	if len(gtrid)+len(bqual) > MaxDataLength {
		return XID{}, ErrDataLength
	}
	if len(bqual) > MaxBqualLength {
		return XID{}, ErrBqualLength
	}
	return XID{FormatID: formatID, Gtrid: gtrid, Bqual: bqual}, nil
}

// NewInternal builds the XID for one of this coordinator's own internal
// two-phase-commit branches: prefix || serverID || trxID, with an empty
// bqual.
func NewInternal(serverID uint32, trxID uint64) XID {
	gtrid := make([]byte, internalGtridLength)
	n := copy(gtrid, InternalPrefix)
	binary.BigEndian.PutUint32(gtrid[n:], serverID)
	binary.BigEndian.PutUint64(gtrid[n+4:], trxID)
	return XID{FormatID: 1, Gtrid: gtrid, Bqual: nil}
}

// Equal reports whether x and other name the same branch.
func (x XID) Equal(other XID) bool {
	return x.FormatID == other.FormatID &&
		bytes.Equal(x.Gtrid, other.Gtrid) &&
		bytes.Equal(x.Bqual, other.Bqual)
}

// Key returns a byte-exact cache key: equal XIDs produce equal keys, and
// the length prefixes prevent two different (gtrid, bqual) splits of the
// same concatenated bytes from colliding.
func (x XID) Key() string {
	buf := make([]byte, 0, 4+4+len(x.Gtrid)+4+len(x.Bqual))
	buf = binary.BigEndian.AppendUint32(buf, uint32(x.FormatID))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(x.Gtrid)))
	buf = append(buf, x.Gtrid...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(x.Bqual)))
	buf = append(buf, x.Bqual...)
	return string(buf)
}

// MyXID returns the embedded transaction id if x was produced by
// NewInternal with a matching prefix and length, else 0. This is the
// server's own classification function: my == 0 means "external", my !=
// 0 means "internal branch id my".
func (x XID) MyXID() uint64 {
	if len(x.Bqual) != 0 {
		return 0
	}
	if len(x.Gtrid) != internalGtridLength {
		return 0
	}
	if !bytes.Equal(x.Gtrid[:len(InternalPrefix)], InternalPrefix) {
		return 0
	}
	return binary.BigEndian.Uint64(x.Gtrid[len(InternalPrefix)+4:])
}

// ServerID returns the server id embedded in an internal XID's gtrid. The
// caller must have already established (via MyXID) that x is internal.
func (x XID) ServerID() uint32 {
	return binary.BigEndian.Uint32(x.Gtrid[len(InternalPrefix) : len(InternalPrefix)+4])
}

// ClassifyOptions controls Classify's handling of the pre-connection
// system-session workaround (see DESIGN.md decision 3).
type ClassifyOptions struct {
	// SystemSession marks a query running before any real session XID
	// has been established (e.g. a background, pre-connection internal
	// query). Classify returns SystemXID for such callers regardless of
	// x's contents.
	SystemSession bool
}

// Classify is my_xid() generalized with the system-session workaround.
// Ordinary callers should pass the zero ClassifyOptions.
func (x XID) Classify(opts ClassifyOptions) uint64 {
	if opts.SystemSession {
		return SystemXID
	}
	return x.MyXID()
}

// IsExternal reports whether x names a client-driven XA branch rather
// than one of the coordinator's own internal branches.
func (x XID) IsExternal() bool {
	return x.MyXID() == 0
}

// HasReservedByte reports whether x's data contains the PreparedRegistry
// delimiter byte. XA START must reject such XIDs for externally-driven
// branches.
func (x XID) HasReservedByte() bool {
	return bytes.IndexByte(x.Gtrid, ReservedByte) >= 0 ||
		bytes.IndexByte(x.Bqual, ReservedByte) >= 0
}

// GtridLength and BqualLength back the four XA RECOVER result columns.
func (x XID) GtridLength() int { return len(x.Gtrid) }
func (x XID) BqualLength() int { return len(x.Bqual) }
