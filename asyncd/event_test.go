/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package asyncd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventHasIsBitwise(t *testing.T) {
	ev := EventRead | EventTimeout
	require.True(t, ev.Has(EventRead))
	require.True(t, ev.Has(EventTimeout))
	require.True(t, ev.Has(EventRead|EventTimeout))
	require.False(t, ev.Has(EventClose))
}

func TestEventString(t *testing.T) {
	require.Equal(t, "NONE", Event(0).String())
	require.Equal(t, "INIT", EventInit.String())
	require.Equal(t, "READ|CLOSE", (EventRead | EventClose).String())
}

func TestStatusPrecedenceLadder(t *testing.T) {
	require.Equal(t, StatusTakeover, precedence(StatusOK, StatusTakeover))
	require.Equal(t, StatusDone, precedence(StatusTakeover, StatusDone))
	require.Equal(t, StatusClose, precedence(StatusDone, StatusClose))
	// Lower-precedence statuses observed later never demote the connection.
	require.Equal(t, StatusDone, precedence(StatusDone, StatusOK))
	require.Equal(t, StatusClose, precedence(StatusClose, StatusTakeover))
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "AD_OK", StatusOK.String())
	require.Equal(t, "AD_CLOSE", StatusClose.String())
}
