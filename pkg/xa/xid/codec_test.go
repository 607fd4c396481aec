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

package xid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// parse(serialize(x)) == x for literal form, over a variety of XIDs.
func TestLiteralRoundTrip(t *testing.T) {
	cases := []XID{
		{FormatID: 1, Gtrid: []byte("t1"), Bqual: nil},
		{FormatID: 42, Gtrid: []byte("gtrid-bytes"), Bqual: []byte("bqual-bytes")},
		{FormatID: -1, Gtrid: []byte{0x00, 0xff, 0x10}, Bqual: []byte{}},
		NewInternal(3, 1 << 20),
	}
	for _, x := range cases {
		s := SerializeLiteral(x)
		got, ok := ParseLiteral(s)
		require.True(t, ok, "serialized form: %s", s)
		require.True(t, x.Equal(got), "serialized form: %s", s)
	}
}

func TestParseLiteralLowercaseHex(t *testing.T) {
	got, ok := ParseLiteral("x'74310a',X'',5")
	require.True(t, ok)
	require.Equal(t, []byte{0x74, 0x31, 0x0a}, got.Gtrid)
	require.Equal(t, []byte{}, got.Bqual)
	require.Equal(t, int32(5), got.FormatID)
}

func TestParseLiteralRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"X'74",          // missing closing quote
		"X'74',X'31'",   // missing formatID section
		"X'7',X'31',1",  // odd-length hex
		"X'74',X'31',?", // formatID not numeric
		"74',X'31',1",   // missing X prefix
	}
	for _, s := range cases {
		_, ok := ParseLiteral(s)
		require.False(t, ok, "expected rejection for %q", s)
	}
}

func TestQuotedRoundTrip(t *testing.T) {
	cases := []XID{
		{FormatID: 1, Gtrid: []byte("simple")},
		{FormatID: 9, Gtrid: []byte("has'quote")},
		{FormatID: 1, Gtrid: []byte{}},
	}
	for _, x := range cases {
		s := SerializeQuoted(x)
		got, ok := ParseQuoted(s)
		require.True(t, ok, "serialized form: %s", s)
		require.True(t, x.Equal(got), "serialized form: %s", s)
		require.Equal(t, 0, got.BqualLength())
	}
}

func TestParseQuotedDefaultsFormatID(t *testing.T) {
	got, ok := ParseQuoted("'abc'")
	require.True(t, ok)
	require.Equal(t, int32(1), got.FormatID)
}

func TestParseQuotedRejectsMalformed(t *testing.T) {
	cases := []string{"", "abc'", "'abc"}
	for _, s := range cases {
		_, ok := ParseQuoted(s)
		require.False(t, ok, "expected rejection for %q", s)
	}
}
