/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpd_test

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolkykim/libasyncd/asyncd"
	"github.com/wolkykim/libasyncd/httpd"
)

func startTestServer(t *testing.T, hooks ...asyncd.Hook) *asyncd.Server {
	t.Helper()
	s := asyncd.New()
	s.SetOption(asyncd.OptAddr, "127.0.0.1")
	s.SetOption(asyncd.OptPort, "0")
	s.SetOption(asyncd.OptThread, "1")

	s.RegisterHook("parser", httpd.NewParserHook())
	for _, h := range hooks {
		if h.Method == "" {
			s.RegisterHook(h.Name, h.Func)
		} else {
			s.RegisterHookOnMethod(h.Name, h.Method, h.Func)
		}
	}

	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() })

	deadline := time.Now().Add(time.Second)
	for s.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.NotNil(t, s.Addr())
	return s
}

func helloWorldHook() asyncd.Hook {
	return asyncd.Hook{
		Name: "hello",
		Func: func(conn *asyncd.Conn, event asyncd.Event) asyncd.Status {
			if !event.Has(asyncd.EventRead) {
				return asyncd.StatusOK
			}
			req := httpd.Current(conn)
			if req == nil || !req.Done() {
				return asyncd.StatusOK
			}
			keepAlive := req.IsKeepAlive()
			resp := httpd.NewResponse(conn)
			if err := resp.SendData(req.Proto, keepAlive, []byte("hello, world")); err != nil {
				return asyncd.StatusClose
			}
			conn.Flush()
			// The engine's own pipelining reset only looks at
			// server.request_pipelining, not at this request's own
			// Connection header — it's this hook's job to turn the
			// negotiated keep-alive decision into CLOSE vs DONE.
			if !keepAlive {
				return asyncd.StatusClose
			}
			return asyncd.StatusDone
		},
	}
}

func TestGetHelloWorld(t *testing.T) {
	s := startTestServer(t, helloWorldHook())

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /hi HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, statusLine, "200")

	body := readAllLines(t, reader)
	require.Contains(t, body, "hello, world")
}

func TestInvalidRequestLineGetsBadRequest(t *testing.T) {
	s := startTestServer(t, helloWorldHook())

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("NOT A REQUEST LINE AT ALL\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, statusLine, "400")
}

func TestPipelinedRequestsReuseConnection(t *testing.T) {
	s := startTestServer(t, helloWorldHook())

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(
		"GET /a HTTP/1.1\r\nHost: example.com\r\n\r\n" +
			"GET /b HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	first, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, first, "200")

	bodyLen := -1
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
		if n, scanErr := fmt.Sscanf(line, "Content-Length: %d", &bodyLen); scanErr == nil && n == 1 {
			continue
		}
	}
	require.Equal(t, len("hello, world"), bodyLen)
	_, err = io.ReadFull(reader, make([]byte, bodyLen))
	require.NoError(t, err)

	second, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, second, "200")
}

func TestChunkedRequestBodyIsReassembled(t *testing.T) {
	var gotBody []byte
	echo := asyncd.Hook{
		Name:   "echo",
		Method: httpd.POST,
		Func: func(conn *asyncd.Conn, event asyncd.Event) asyncd.Status {
			if !event.Has(asyncd.EventRead) {
				return asyncd.StatusOK
			}
			req := httpd.Current(conn)
			if req == nil || !req.Done() {
				return asyncd.StatusOK
			}
			gotBody = append([]byte(nil), req.Body...)
			resp := httpd.NewResponse(conn)
			resp.SendData(req.Proto, false, []byte("ok"))
			conn.Flush()
			return asyncd.StatusClose
		},
	}
	s := startTestServer(t, echo)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	req := "POST /upload HTTP/1.1\r\nHost: example.com\r\nTransfer-Encoding: chunked\r\nConnection: close\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	_, err = conn.Write([]byte(req))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, statusLine, "200")

	deadline := time.Now().Add(time.Second)
	for len(gotBody) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, "hello world", string(gotBody))
}

func readAllLines(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var out []byte
	for {
		line, err := r.ReadString('\n')
		out = append(out, line...)
		if err != nil {
			break
		}
	}
	return string(out)
}
