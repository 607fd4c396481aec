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

package registry

import (
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddDelHas(t *testing.T) {
	r := New(4)
	require.False(t, r.Has("t1"))
	r.AddID("t1")
	require.True(t, r.Has("t1"))
	r.DelID("t1")
	require.False(t, r.Has("t1"))
}

func TestSerializeDelimitsWithPipe(t *testing.T) {
	r := New(4)
	r.AddID("aaa")
	r.AddID("bbb")
	var buf strings.Builder
	require.NoError(t, r.Serialize(&buf))
	parts := strings.Split(buf.String(), "|")
	require.ElementsMatch(t, []string{"aaa", "bbb"}, parts)
}

func TestSerializeEmpty(t *testing.T) {
	r := New(4)
	var buf strings.Builder
	require.NoError(t, r.Serialize(&buf))
	require.Empty(t, buf.String())
}

func TestConcurrentAddDel(t *testing.T) {
	r := New(DefaultShardCount)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := strconv.Itoa(i)
			r.AddID(id)
			if i%2 == 0 {
				r.DelID(id)
			}
		}(i)
	}
	wg.Wait()
	for i := 0; i < 100; i++ {
		id := strconv.Itoa(i)
		if i%2 == 0 {
			require.False(t, r.Has(id))
		} else {
			require.True(t, r.Has(id))
		}
	}
}
