/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpd

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wolkykim/libasyncd/asyncd"
)

func newTestConn(t *testing.T) *asyncd.Conn {
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
	return asyncd.NewConn(asyncd.New(), server)
}

func TestParserRequestLineSplitAcrossReads(t *testing.T) {
	conn := newTestConn(t)
	hook := NewParserHook()

	require.Equal(t, asyncd.StatusOK, hook(conn, asyncd.EventInit))

	conn.Feed([]byte("GET /foo"))
	require.Equal(t, asyncd.StatusTakeover, hook(conn, asyncd.EventRead))

	conn.Feed([]byte(" HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.Equal(t, asyncd.StatusOK, hook(conn, asyncd.EventRead))

	req := Current(conn)
	require.True(t, req.Done())
	require.Equal(t, GET, req.Method)
	require.Equal(t, "/foo", req.Path)
	require.Equal(t, "x", req.Header.Get("Host"))
}

func TestParserContentLengthBody(t *testing.T) {
	conn := newTestConn(t)
	hook := NewParserHook()
	hook(conn, asyncd.EventInit)

	conn.Feed([]byte("POST /submit HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhe"))
	require.Equal(t, asyncd.StatusTakeover, hook(conn, asyncd.EventRead))

	conn.Feed([]byte("llo"))
	require.Equal(t, asyncd.StatusOK, hook(conn, asyncd.EventRead))

	req := Current(conn)
	require.True(t, req.Done())
	require.Equal(t, "hello", string(req.Body))
	require.Equal(t, int64(5), req.ContentLength)
	require.Equal(t, POST, conn.Method())
}

func TestParserZeroLengthBodyCompletesImmediately(t *testing.T) {
	conn := newTestConn(t)
	hook := NewParserHook()
	hook(conn, asyncd.EventInit)

	conn.Feed([]byte("POST /ping HTTP/1.1\r\nHost: x\r\nContent-Length: 0\r\n\r\n"))
	require.Equal(t, asyncd.StatusOK, hook(conn, asyncd.EventRead))
	require.True(t, Current(conn).Done())
}

func TestParserChunkedBodyDoesNotConsumeIncompleteChunk(t *testing.T) {
	conn := newTestConn(t)
	hook := NewParserHook()
	hook(conn, asyncd.EventInit)

	conn.Feed([]byte("POST /up HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhel"))
	require.Equal(t, asyncd.StatusTakeover, hook(conn, asyncd.EventRead))
	require.False(t, Current(conn).Done())

	conn.Feed([]byte("lo\r\n0\r\n\r\n"))
	require.Equal(t, asyncd.StatusOK, hook(conn, asyncd.EventRead))

	req := Current(conn)
	require.True(t, req.Done())
	require.Equal(t, "hello", string(req.Body))
}

func TestParserMalformedRequestLineClosesConnection(t *testing.T) {
	conn := newTestConn(t)
	hook := NewParserHook()
	hook(conn, asyncd.EventInit)

	conn.Feed([]byte("GARBAGE\r\n\r\n"))
	require.Equal(t, asyncd.StatusClose, hook(conn, asyncd.EventRead))
}

func TestParserDuplicateHeaderValuesReplaceRatherThanAccumulate(t *testing.T) {
	conn := newTestConn(t)
	hook := NewParserHook()
	hook(conn, asyncd.EventInit)

	conn.Feed([]byte("GET / HTTP/1.1\r\nX-Forwarded-For: a\r\nX-Forwarded-For: b\r\n\r\n"))
	hook(conn, asyncd.EventRead)

	require.Equal(t, []string{"b"}, Current(conn).Header.Values("X-Forwarded-For"))
}

func TestParserUppercasesLowercaseMethodAndVersion(t *testing.T) {
	conn := newTestConn(t)
	hook := NewParserHook()
	hook(conn, asyncd.EventInit)

	conn.Feed([]byte("get / http/1.1\r\nHost: x\r\n\r\n"))
	require.Equal(t, asyncd.StatusOK, hook(conn, asyncd.EventRead))

	req := Current(conn)
	require.Equal(t, GET, req.Method)
	require.Equal(t, HTTP1_1, req.Proto)
}

func TestParserSplitsAbsoluteURIIntoHostHeaderAndPath(t *testing.T) {
	conn := newTestConn(t)
	hook := NewParserHook()
	hook(conn, asyncd.EventInit)

	conn.Feed([]byte("GET http://example.com:8080/a/b HTTP/1.1\r\n\r\n"))
	require.Equal(t, asyncd.StatusOK, hook(conn, asyncd.EventRead))

	req := Current(conn)
	require.Equal(t, "example.com:8080", req.Header.Get("Host"))
	require.Equal(t, "/a/b", req.Path)
}

func TestParserAbsoluteURIWithNoPathDefaultsToSlash(t *testing.T) {
	conn := newTestConn(t)
	hook := NewParserHook()
	hook(conn, asyncd.EventInit)

	conn.Feed([]byte("GET http://example.com HTTP/1.1\r\n\r\n"))
	require.Equal(t, asyncd.StatusOK, hook(conn, asyncd.EventRead))

	req := Current(conn)
	require.Equal(t, "example.com", req.Header.Get("Host"))
	require.Equal(t, "/", req.Path)
}

func TestParserRejectsURIThatIsNeitherPathNorAbsoluteURI(t *testing.T) {
	conn := newTestConn(t)
	hook := NewParserHook()
	hook(conn, asyncd.EventInit)

	conn.Feed([]byte("GET foo HTTP/1.1\r\n\r\n"))
	require.Equal(t, asyncd.StatusClose, hook(conn, asyncd.EventRead))
}

func TestParserNormalizesPathSlashesAndTrailingSlash(t *testing.T) {
	conn := newTestConn(t)
	hook := NewParserHook()
	hook(conn, asyncd.EventInit)

	conn.Feed([]byte("GET ///a//b/// HTTP/1.1\r\n\r\n"))
	require.Equal(t, asyncd.StatusOK, hook(conn, asyncd.EventRead))

	require.Equal(t, "/a/b", Current(conn).Path)
}

func TestParserRejectsPathWithForbiddenCharacters(t *testing.T) {
	conn := newTestConn(t)
	hook := NewParserHook()
	hook(conn, asyncd.EventInit)

	conn.Feed([]byte("GET /a<b HTTP/1.1\r\n\r\n"))
	require.Equal(t, asyncd.StatusClose, hook(conn, asyncd.EventRead))
}

func TestDecodeURLPathLenientlyPassesThroughBadEscapes(t *testing.T) {
	require.Equal(t, "/a b", decodeURLPath("/a+b"))
	require.Equal(t, "/50% off", decodeURLPath("/50% off"))
	require.Equal(t, "/h%2", decodeURLPath("/h%2"))
	require.Equal(t, "/hi", decodeURLPath("/hi"))
}

func TestRequestIsKeepAliveDefaultsByProtoVersion(t *testing.T) {
	r := newRequest()
	r.Proto = HTTP1_1
	require.True(t, r.IsKeepAlive())

	r.Proto = HTTP1_0
	require.False(t, r.IsKeepAlive())

	r.Header.Set("Connection", "close")
	r.Proto = HTTP1_1
	require.False(t, r.IsKeepAlive())
}
