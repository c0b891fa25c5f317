/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package asyncd

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T) *Conn {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()
	return NewConn(New(), server)
}

func TestHookChainShortCircuitsOnFirstNonOK(t *testing.T) {
	var chain hookChain
	var ran []string

	chain.register(Hook{Name: "a", Func: func(*Conn, Event) Status {
		ran = append(ran, "a")
		return StatusOK
	}})
	chain.register(Hook{Name: "b", Func: func(*Conn, Event) Status {
		ran = append(ran, "b")
		return StatusDone
	}})
	chain.register(Hook{Name: "c", Func: func(*Conn, Event) Status {
		ran = append(ran, "c")
		return StatusOK
	}})

	conn := newTestConn(t)
	status := chain.dispatch(conn, EventRead)

	require.Equal(t, StatusDone, status)
	require.Equal(t, []string{"a", "b"}, ran)
}

func TestHookChainSkipsMethodFilteredHooks(t *testing.T) {
	var chain hookChain
	var ran []string

	chain.register(Hook{Name: "get-only", Method: "GET", Func: func(*Conn, Event) Status {
		ran = append(ran, "get-only")
		return StatusOK
	}})
	chain.register(Hook{Name: "all", Func: func(*Conn, Event) Status {
		ran = append(ran, "all")
		return StatusOK
	}})

	conn := newTestConn(t)
	conn.SetMethod("POST")

	status := chain.dispatch(conn, EventRead)

	require.Equal(t, StatusOK, status)
	require.Equal(t, []string{"all"}, ran)
}

func TestConnAdoptStatusNeverDemotes(t *testing.T) {
	conn := newTestConn(t)

	require.Equal(t, StatusTakeover, conn.adoptStatus(StatusTakeover))
	require.Equal(t, StatusTakeover, conn.adoptStatus(StatusOK))
	require.Equal(t, StatusClose, conn.adoptStatus(StatusClose))
	require.Equal(t, StatusClose, conn.adoptStatus(StatusDone))
}

func TestConnUserDataReleaseFiresExactlyOnceOnOverwrite(t *testing.T) {
	conn := newTestConn(t)
	released := 0

	conn.SetUserData(SlotApp, "first", func(any) { released++ })
	conn.SetUserData(SlotApp, "second", func(any) { released++ })

	require.Equal(t, 1, released)
	require.Equal(t, "second", conn.UserData(SlotApp))
}

func TestConnResetClearsStatusMethodAndSlots(t *testing.T) {
	conn := newTestConn(t)
	released := 0

	conn.SetMethod("GET")
	conn.adoptStatus(StatusDone)
	conn.SetUserData(SlotProtocol, "req", func(any) { released++ })

	conn.reset()

	require.Equal(t, "", conn.Method())
	require.Equal(t, StatusOK, conn.Status())
	require.Nil(t, conn.UserData(SlotProtocol))
	require.Equal(t, 1, released)
}
