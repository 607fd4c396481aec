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
	"encoding/hex"
	"strconv"
	"strings"
)

// ParseLiteral parses the literal XID form:
//
//	X'<hex-gtrid>',X'<hex-bqual>',<formatID>
//
// Both hex sections may be empty (but gtrid must then be rejected by New's
// length check, not here — ParseLiteral only validates syntax). Hex is
// accepted in lowercase or uppercase. Returns ok=false on any malformed
// input instead of an error.
func ParseLiteral(s string) (XID, bool) {
	rest := s
	gtrid, rest, ok := takeQuotedHex(rest)
	if !ok {
		return XID{}, false
	}
	rest, ok = takeByte(rest, ',')
	if !ok {
		return XID{}, false
	}
	bqual, rest, ok := takeQuotedHex(rest)
	if !ok {
		return XID{}, false
	}
	rest, ok = takeByte(rest, ',')
	if !ok {
		return XID{}, false
	}
	formatID, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 32)
	if err != nil {
		return XID{}, false
	}
	return XID{FormatID: int32(formatID), Gtrid: gtrid, Bqual: bqual}, true
}

// SerializeLiteral is the inverse of ParseLiteral.
func SerializeLiteral(x XID) string {
	var b strings.Builder
	b.WriteString("X'")
	b.WriteString(hex.EncodeToString(x.Gtrid))
	b.WriteString("',X'")
	b.WriteString(hex.EncodeToString(x.Bqual))
	b.WriteString("',")
	b.WriteString(strconv.FormatInt(int64(x.FormatID), 10))
	return b.String()
}

// ParseQuoted parses the ddc_mode quoted XID form: a single-quoted raw
// byte string naming the gtrid (''-escaped embedded quotes), optionally
// followed by ",<formatID>" (format id 1 if omitted). bqual is always
// empty in this form.
func ParseQuoted(s string) (XID, bool) {
	rest := strings.TrimSpace(s)
	if len(rest) == 0 || rest[0] != '\'' {
		return XID{}, false
	}
	rest = rest[1:]

	var gtrid []byte
	for {
		i := strings.IndexByte(rest, '\'')
		if i < 0 {
			return XID{}, false
		}
		gtrid = append(gtrid, rest[:i]...)
		rest = rest[i+1:]
		if strings.HasPrefix(rest, "'") {
			// Escaped quote: consume it and keep scanning the literal.
			gtrid = append(gtrid, '\'')
			rest = rest[1:]
			continue
		}
		break
	}

	rest = strings.TrimSpace(rest)
	formatID := int64(1)
	if len(rest) > 0 {
		if rest[0] != ',' {
			return XID{}, false
		}
		var err error
		formatID, err = strconv.ParseInt(strings.TrimSpace(rest[1:]), 10, 32)
		if err != nil {
			return XID{}, false
		}
	}
	return XID{FormatID: int32(formatID), Gtrid: gtrid, Bqual: nil}, true
}

// SerializeQuoted is the inverse of ParseQuoted. The caller must ensure
// x.Bqual is empty; SerializeQuoted ignores it otherwise, matching the
// form's bqual_length=0 contract.
func SerializeQuoted(x XID) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, c := range x.Gtrid {
		if c == '\'' {
			b.WriteString("''")
			continue
		}
		b.WriteByte(c)
	}
	b.WriteByte('\'')
	if x.FormatID != 1 {
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(int64(x.FormatID), 10))
	}
	return b.String()
}

// takeQuotedHex consumes a leading X'<hex>' (case-insensitive X) from s
// and returns the decoded bytes, the remainder of s, and whether parsing
// succeeded.
func takeQuotedHex(s string) ([]byte, string, bool) {
	if len(s) < 2 || (s[0] != 'X' && s[0] != 'x') || s[1] != '\'' {
		return nil, s, false
	}
	rest := s[2:]
	i := strings.IndexByte(rest, '\'')
	if i < 0 {
		return nil, s, false
	}
	hexPart, rest := rest[:i], rest[i+1:]
	if hexPart == "" {
		return []byte{}, rest, true
	}
	decoded, err := hex.DecodeString(hexPart)
	if err != nil {
		return nil, s, false
	}
	return decoded, rest, true
}

// takeByte consumes a single expected byte (ignoring surrounding
// whitespace) from the front of s.
func takeByte(s string, b byte) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || s[0] != b {
		return s, false
	}
	return s[1:], true
}
