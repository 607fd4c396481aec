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

import "context"

// GTIDTracker is the coordinator's narrow view of the GTID tracker:
// committing the GTIDs owned by a session's transaction, and clearing
// them on the terminal transition.
type GTIDTracker interface {
	CommitOwnedGtids(ctx context.Context, sess Session) (needClear bool, err error)
	CommitOrRollback(ctx context.Context, sess Session, needClear bool, success bool)
}

// NoopGTIDTracker is used when GTID tracking is disabled (gtid_mode off,
// or in tests).
type NoopGTIDTracker struct{}

func (NoopGTIDTracker) CommitOwnedGtids(ctx context.Context, sess Session) (bool, error) {
	return false, nil
}

func (NoopGTIDTracker) CommitOrRollback(ctx context.Context, sess Session, needClear, success bool) {
}
