/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpd

import (
	"bytes"
	"fmt"

	"github.com/wolkykim/libasyncd/asyncd"
)

// NewParserHook returns the HTTP/1.x request parser as a plain
// asyncd.HookFunc (Component E). It owns SlotProtocol: INIT allocates a
// fresh *Request there, and every READ advances it as far as the bytes
// already buffered on the Conn allow — never touching the network
// itself, per Conn's own contract. A request line or header line longer
// than its line limit, a malformed request line, or a bad header closes
// the connection with a 4xx response. The method is stamped with
// conn.SetMethod as soon as the request line is parsed; the hook returns
// StatusTakeover until the request (headers and any body) is complete,
// then returns StatusOK so hooks further down the chain run on the same
// dispatch and see a finished Request. The slot's release callback hands
// the Request's header storage back to hdr's pool.
func NewParserHook() asyncd.HookFunc {
	release := func(v any) {
		if r, ok := v.(*Request); ok {
			r.Header.Reset()
		}
	}
	return func(conn *asyncd.Conn, event asyncd.Event) asyncd.Status {
		if event.Has(asyncd.EventInit) {
			conn.SetUserData(asyncd.SlotProtocol, newRequest(), release)
			return asyncd.StatusOK
		}
		if !event.Has(asyncd.EventRead) {
			return asyncd.StatusOK
		}

		req, _ := conn.UserData(asyncd.SlotProtocol).(*Request)
		if req == nil {
			req = newRequest()
			conn.SetUserData(asyncd.SlotProtocol, req, release)
		}
		return req.advance(conn)
	}
}

// Current returns the in-progress or completed Request for conn, or nil
// if the parser hook hasn't run yet (or isn't installed at all).
//
// A hook registered after the parser should only trust Current(conn) and
// check Done() while handling an EventRead — the parser hook also runs
// (and leaves the same Request in place) on EventInit and EventClose,
// where the prior request is either not yet started or already finished
// and awaiting teardown; reacting to it there would fire the same
// business logic twice.
func Current(conn *asyncd.Conn) *Request {
	req, _ := conn.UserData(asyncd.SlotProtocol).(*Request)
	return req
}

// advance runs the state machine as far as the currently buffered bytes
// permit, looping through states that don't need more input (e.g. a
// parsed request line falling straight through into header parsing)
// without returning control to the loop.
func (r *Request) advance(conn *asyncd.Conn) asyncd.Status {
	for {
		switch r.state {
		case stateRequestLine:
			line, ok, tooLong := readLine(conn, maxRequestLineLength)
			if tooLong {
				writeError(conn, StatusRequestHeaderFieldsTooLarge)
				return asyncd.StatusClose
			}
			if !ok {
				return asyncd.StatusTakeover
			}
			if err := r.parseRequestLine(line); err != nil {
				writeError(conn, StatusBadRequest)
				return asyncd.StatusClose
			}
			conn.SetMethod(r.Method)

		case stateHeaders:
			line, ok, tooLong := readLine(conn, maxHeaderLineLength)
			if tooLong {
				writeError(conn, StatusRequestHeaderFieldsTooLarge)
				return asyncd.StatusClose
			}
			if !ok {
				return asyncd.StatusTakeover
			}
			r.headerBytes += len(line)
			if r.headerBytes > maxHeaderBytes {
				writeError(conn, StatusRequestHeaderFieldsTooLarge)
				return asyncd.StatusClose
			}
			if trimmed := trimCRLF(line); len(trimmed) == 0 {
				if err := r.finishHeaders(); err != nil {
					if err == errTooLarge {
						writeError(conn, StatusRequestEntityTooLarge)
					} else {
						writeError(conn, StatusBadRequest)
					}
					return asyncd.StatusClose
				}
			} else if err := r.addHeaderLine(trimmed); err != nil {
				writeError(conn, StatusBadRequest)
				return asyncd.StatusClose
			}

		case stateBody:
			done, takeover, err := r.consumeBody(conn)
			if err != nil {
				writeError(conn, StatusRequestEntityTooLarge)
				return asyncd.StatusClose
			}
			if takeover {
				return asyncd.StatusTakeover
			}
			if done {
				r.state = stateDone
			}

		case stateChunkSize:
			line, ok, tooLong := readLine(conn, maxHeaderLineLength)
			if tooLong {
				writeError(conn, StatusBadRequest)
				return asyncd.StatusClose
			}
			if !ok {
				return asyncd.StatusTakeover
			}
			size, err := parseChunkSizeLine(trimCRLF(line))
			if err != nil {
				writeError(conn, StatusBadRequest)
				return asyncd.StatusClose
			}
			if size == 0 {
				r.state = stateChunkTrailer
				continue
			}
			r.remaining = int64(size)
			r.state = stateChunkData

		case stateChunkData:
			// A chunk is taken only once all of its bytes are buffered;
			// until then none of them are consumed.
			if int64(len(r.Body))+r.remaining <= maxBodyBytes {
				if _, ok := conn.Peek(int(r.remaining)); !ok {
					return asyncd.StatusTakeover
				}
			}
			done, takeover, err := r.consumeBody(conn)
			if err != nil {
				writeError(conn, StatusRequestEntityTooLarge)
				return asyncd.StatusClose
			}
			if takeover {
				return asyncd.StatusTakeover
			}
			if done {
				r.state = stateChunkCRLF
			}

		case stateChunkCRLF:
			line, ok, tooLong := readLine(conn, 8)
			if tooLong {
				writeError(conn, StatusBadRequest)
				return asyncd.StatusClose
			}
			if !ok {
				return asyncd.StatusTakeover
			}
			_ = line
			r.state = stateChunkSize

		case stateChunkTrailer:
			line, ok, tooLong := readLine(conn, maxHeaderLineLength)
			if tooLong {
				writeError(conn, StatusBadRequest)
				return asyncd.StatusClose
			}
			if !ok {
				return asyncd.StatusTakeover
			}
			if len(trimCRLF(line)) == 0 {
				r.ContentLength = int64(len(r.Body))
				r.state = stateDone
			}
			// Non-empty trailer lines are consumed and discarded: trailer
			// headers arriving after chunked data aren't exposed to hooks.

		case stateDone:
			// Per spec, the parser itself returns OK (not DONE) here so
			// the hooks registered after it still run on this same
			// dispatch and see a completed Request via Current/Done. DONE
			// is the status an application hook returns once it has
			// actually finished handling the request (e.g. sent a
			// response) — that's what drives the pipelining reset.
			return asyncd.StatusOK
		}
	}
}

// consumeBody pulls whatever is currently buffered, up to r.remaining
// bytes, into r.Body. done reports whether r.remaining reached zero;
// takeover reports that nothing is buffered yet and the caller should
// return StatusTakeover. err is set (and nothing consumed) if accepting
// the current chunk would push the accumulated body past maxBodyBytes —
// this is the only place a chunked request's total size gets checked,
// since it has no declared Content-Length to reject up front.
func (r *Request) consumeBody(conn *asyncd.Conn) (done, takeover bool, err error) {
	if r.remaining == 0 {
		return true, false, nil
	}
	if int64(len(r.Body))+r.remaining > maxBodyBytes {
		return false, false, errTooLarge
	}
	want := r.remaining
	buf, ok := conn.Peek(int(want))
	if !ok {
		avail := conn.Buffered()
		if avail == 0 {
			return false, true, nil
		}
		buf, _ = conn.Peek(avail)
	}
	n := len(buf)
	r.Body = append(r.Body, buf...)
	conn.Discard(n)
	r.remaining -= int64(n)
	return r.remaining == 0, false, nil
}

// readLine scans the bytes already buffered on conn for a '\n', without
// ever asking the network for more: if none is found yet, ok is false and
// the caller should return StatusTakeover and retry on the next READ.
// tooLong is set once the buffered-but-unterminated prefix alone reaches
// maxLen, so a client can't hold a connection open forever by trickling
// an arbitrarily long line one byte at a time.
func readLine(conn *asyncd.Conn, maxLen int) (line []byte, ok bool, tooLong bool) {
	avail := conn.Buffered()
	if avail == 0 {
		return nil, false, false
	}
	peeked, _ := conn.Peek(avail)
	idx := bytes.IndexByte(peeked, '\n')
	if idx == -1 {
		return nil, false, avail >= maxLen
	}
	if idx+1 > maxLen {
		return nil, false, true
	}
	line = append([]byte(nil), peeked[:idx+1]...)
	conn.Discard(idx + 1)
	return line, true, false
}

// writeError writes a minimal, connection-closing error response
// directly, bypassing the Response builder: the parser hasn't finished
// parsing a Request yet, so there is no Proto/keep-alive decision to
// make — the connection is always closing after this. Every call site is
// a parser rejection, so it also bumps the asyncd_parser_errors_total
// counter via conn.ReportParserError.
func writeError(conn *asyncd.Conn, status int) {
	conn.ReportParserError()
	body := StatusReason(status)
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, StatusReason(status), len(body), body)
	conn.Flush()
}
