/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package asyncd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsFillsOnlyUnsetKeys(t *testing.T) {
	s := New()
	s.SetOption(OptPort, "9999")

	s.applyDefaults()

	require.Equal(t, "9999", s.GetOption(OptPort))
	require.Equal(t, "0.0.0.0", s.GetOption(OptAddr))
	require.Equal(t, "128", s.GetOption(OptBacklog))
	require.Equal(t, "1", s.GetOption(OptRequestPipelining))
}

func TestGetOptionIntParsesOrErrors(t *testing.T) {
	s := New()
	s.applyDefaults()

	port, err := s.GetOptionInt(OptPort)
	require.NoError(t, err)
	require.Equal(t, 8888, port)

	_, err = s.GetOptionInt(OptSSLCert)
	require.Error(t, err)
}

func TestResolveAddrUnixSocket(t *testing.T) {
	s := New()
	s.applyDefaults()
	s.SetOption(OptAddr, "/tmp/asyncd.sock")

	addr, err := s.resolveAddr()
	require.NoError(t, err)
	require.Equal(t, "/tmp/asyncd.sock", addr)
}

func TestResolveAddrHostPort(t *testing.T) {
	s := New()
	s.applyDefaults()

	addr, err := s.resolveAddr()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8888", addr)
}

func TestResolveAddrBracketsIPv6Literal(t *testing.T) {
	s := New()
	s.applyDefaults()
	s.SetOption(OptAddr, "::1")

	addr, err := s.resolveAddr()
	require.NoError(t, err)
	require.Equal(t, "[::1]:8888", addr)
}
