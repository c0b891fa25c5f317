/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package asyncd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatsIncrSetGetSnapshot(t *testing.T) {
	s := NewStats()

	s.Incr("custom.counter", 3)
	s.Incr("custom.counter", 2)
	s.Set("custom.gauge", 42)

	require.Equal(t, int64(5), s.Get("custom.counter"))
	require.Equal(t, int64(42), s.Get("custom.gauge"))
	require.Equal(t, int64(0), s.Get("never.set"))

	snap := s.Snapshot()
	require.Equal(t, int64(5), snap["custom.counter"])

	// Snapshot is a copy: mutating it must not affect the live stats.
	snap["custom.counter"] = 999
	require.Equal(t, int64(5), s.Get("custom.counter"))
}

func TestStatsWellKnownKeysTrackConnLifecycle(t *testing.T) {
	s := NewStats()

	s.connAccepted()
	s.connAccepted()
	require.Equal(t, int64(2), s.Get(StatConnsAccepted))

	s.connClosed("eof")
	s.keepaliveReuse()
	require.Equal(t, int64(1), s.Get(StatKeepaliveReused))

	s.addBytesIn(10)
	s.addBytesOut(20)
	require.Equal(t, int64(10), s.Get(StatBytesIn))
	require.Equal(t, int64(20), s.Get(StatBytesOut))
}
