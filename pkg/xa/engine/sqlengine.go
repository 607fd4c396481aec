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

package engine

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/xadb/xa-coordinator/pkg/xa/xaerr"
	"github.com/xadb/xa-coordinator/pkg/xa/xid"
)

// SQLEngine is a concrete Engine adapter over database/sql using
// github.com/go-sql-driver/mysql: it drives phase one and phase two of
// 2PC on a real MySQL-protocol-speaking participant, rather than only an
// in-memory mock. Each session's branch must run on a single pinned
// connection, since XA START/END/PREPARE are connection-scoped — Bind
// pins one before the branch starts, and Unbind releases it.
type SQLEngine struct {
	name string
	db   *sql.DB

	mu    sync.Mutex
	conns map[uint64]*sql.Conn
}

// NewSQLEngine opens a pooled connection to dsn (a go-sql-driver/mysql
// data source name) and returns an Engine backed by it.
func NewSQLEngine(name, dsn string) (*SQLEngine, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("engine %s: open: %w", name, err)
	}
	return &SQLEngine{name: name, db: db, conns: make(map[uint64]*sql.Conn)}, nil
}

func (e *SQLEngine) Name() string { return e.name }

// Bind pins a connection from the pool to sess for the lifetime of its
// XA branch. Must be called before Prepare.
func (e *SQLEngine) Bind(ctx context.Context, sess Session) error {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return xaerr.RMErr("engine %s: acquire connection: %v", e.name, err)
	}
	e.mu.Lock()
	e.conns[sess.SessionID()] = conn
	e.mu.Unlock()
	return nil
}

// Unbind releases sess's pinned connection back to the pool.
func (e *SQLEngine) Unbind(sess Session) {
	e.mu.Lock()
	conn := e.conns[sess.SessionID()]
	delete(e.conns, sess.SessionID())
	e.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (e *SQLEngine) conn(sess Session) (*sql.Conn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	conn, ok := e.conns[sess.SessionID()]
	if !ok {
		return nil, xaerr.RMErr("engine %s: no connection bound for session %d", e.name, sess.SessionID())
	}
	return conn, nil
}

func (e *SQLEngine) Prepare(ctx context.Context, sess Session) error {
	conn, err := e.conn(sess)
	if err != nil {
		return err
	}
	lit := xid.SerializeLiteral(e.sessionXID(sess))
	if _, err := conn.ExecContext(ctx, "XA END "+lit); err != nil {
		return xaerr.RMErr("engine %s: XA END: %v", e.name, err)
	}
	if _, err := conn.ExecContext(ctx, "XA PREPARE "+lit); err != nil {
		return xaerr.RMErr("engine %s: XA PREPARE: %v", e.name, err)
	}
	return nil
}

// sessionXID returns sess.BranchXID() when sess has such a method, and
// the zero XID otherwise. This adapter package does not import the
// coordinator's session type, so the branch XID is reached only through
// that optional method.
func (e *SQLEngine) sessionXID(sess Session) xid.XID {
	if x, ok := sess.(interface{ BranchXID() xid.XID }); ok {
		return x.BranchXID()
	}
	return xid.XID{}
}

func (e *SQLEngine) CommitByXID(ctx context.Context, x xid.XID, onePhase bool) error {
	if onePhase {
		return e.byXID(ctx, "XA COMMIT ", x, " ONE PHASE")
	}
	return e.byXID(ctx, "XA COMMIT ", x, "")
}

func (e *SQLEngine) RollbackByXID(ctx context.Context, x xid.XID) error {
	return e.byXID(ctx, "XA ROLLBACK ", x, "")
}

func (e *SQLEngine) byXID(ctx context.Context, stmt string, x xid.XID, suffix string) error {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return xaerr.RMErr("engine %s: acquire connection: %v", e.name, err)
	}
	defer conn.Close()
	_, err = conn.ExecContext(ctx, stmt+xid.SerializeLiteral(x)+suffix)
	if err == nil {
		return nil
	}
	if isUnknownXIDError(err) {
		return xaerr.NotA(xid.SerializeLiteral(x))
	}
	return xaerr.RMErr("engine %s: %s: %v", e.name, stmt, err)
}

func (e *SQLEngine) Recover(ctx context.Context) ([]RecoveredBranch, error) {
	rows, err := e.db.QueryContext(ctx, "XA RECOVER CONVERT XID")
	if err != nil {
		return nil, xaerr.RMErr("engine %s: XA RECOVER: %v", e.name, err)
	}
	defer rows.Close()

	var out []RecoveredBranch
	for rows.Next() {
		var formatID int32
		var gtridLen, bqualLen int
		var data string
		if err := rows.Scan(&formatID, &gtridLen, &bqualLen, &data); err != nil {
			return nil, xaerr.RMErr("engine %s: scan XA RECOVER row: %v", e.name, err)
		}
		// CONVERT XID renders data as 0x-prefixed hex.
		raw := []byte(data)
		if strings.HasPrefix(data, "0x") {
			decoded, err := hex.DecodeString(data[2:])
			if err != nil {
				continue
			}
			raw = decoded
		}
		if len(raw) < gtridLen+bqualLen {
			continue
		}
		x, err := xid.New(formatID, raw[:gtridLen], raw[gtridLen:gtridLen+bqualLen])
		if err != nil {
			continue
		}
		out = append(out, RecoveredBranch{XID: x})
	}
	return out, rows.Err()
}

func (e *SQLEngine) ReplaceNativeTransaction(ctx context.Context, sess Session, newHandle any) (any, error) {
	// SQLEngine's branches are identified purely by XID once prepared;
	// there is no in-process handle to swap, so detach is a no-op.
	return nil, nil
}

// isUnknownXIDError reports whether err corresponds to the engine's own
// XAE04 / ER_XAER_NOTA response. go-sql-driver/mysql surfaces this as a
// *mysql.MySQLError with Number 1397.
func isUnknownXIDError(err error) bool {
	me, ok := err.(*mysqldriver.MySQLError)
	return ok && me.Number == 1397
}
