/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpd

import (
	"fmt"
	"strconv"

	"github.com/wolkykim/libasyncd/asyncd"
	"github.com/wolkykim/libasyncd/hdr"
)

// Response builds an HTTP/1.x response directly onto a Conn (Component
// F). The first call to SendHeader, SendData, or SendChunk freezes the
// status line and headers onto the wire; Header itself stays mutable
// right up to that point, the same one-shot discipline chunk_writer.go's
// writeHeader enforces for net/http's ResponseWriter.
type Response struct {
	conn   *asyncd.Conn
	Header hdr.Header
	Status int

	wrote   bool
	chunked bool
	closed  bool

	// declaredLength is the Content-Length frozen at SendHeader time, or
	// -1 in chunked mode (no such bound). bodySent tracks how much of it
	// SendData has actually written, enforcing spec §4.6's framing rule.
	declaredLength int64
	bodySent       int64
}

// NewResponse returns an empty 200 OK response bound to conn.
func NewResponse(conn *asyncd.Conn) *Response {
	return &Response{conn: conn, Header: hdr.New(), Status: StatusOK}
}

// HeaderWritten reports whether the status line and headers have already
// been flushed to the wire.
func (r *Response) HeaderWritten() bool { return r.wrote }

// SendHeader freezes and writes the status line and headers. contentLength
// is the declared entity length, or -1 to use chunked framing instead;
// proto must be the request's own HTTP version, since a response always
// echoes it. Calling it twice returns asyncd.ErrHeaderWritten.
func (r *Response) SendHeader(proto string, contentLength int64, keepAlive bool) error {
	if r.wrote {
		return asyncd.ErrHeaderWritten
	}
	r.wrote = true
	r.declaredLength = contentLength

	if bodyAllowedForStatus(r.Status) {
		if contentLength < 0 {
			r.chunked = true
			r.Header.Set("Transfer-Encoding", DoChunked)
		} else {
			r.Header.Set("Content-Length", strconv.FormatInt(contentLength, 10))
		}
	}
	// Written casing matches ad_http_handler.c's response() exactly:
	// "Keep-Alive" capitalized, "close" lowercase. DoKeepAlive stays
	// lowercase for case-insensitive comparison against a request's own
	// Connection header in IsKeepAlive.
	if !r.Header.Has("Connection") {
		if keepAlive {
			r.Header.Set("Connection", KeepAlive)
		} else {
			r.Header.Set("Connection", DoClose)
		}
	}

	if _, err := fmt.Fprintf(r.conn, "%s %d %s\r\n", proto, r.Status, StatusReason(r.Status)); err != nil {
		return err
	}
	if err := r.Header.Write(r.conn); err != nil {
		return err
	}
	_, err := r.conn.Write(CrLf)
	return err
}

// SendData writes a complete, fixed-length response body in one call,
// freezing the header (with an exact Content-Length) first if it hasn't
// been sent yet. Per spec §4.6's framing rule, calling it once the
// header has been frozen in chunked mode is a contract violation
// (ErrWrongFramingMode); in Content-Length mode, a call that would push
// bodySent past the declared length is rejected outright and nothing is
// written (ErrContentLengthExceeded) — both are logged as warnings, per
// spec §7, without touching the connection.
func (r *Response) SendData(proto string, keepAlive bool, data []byte) error {
	if !r.wrote {
		if err := r.SendHeader(proto, int64(len(data)), keepAlive); err != nil {
			return err
		}
	}
	if r.chunked {
		return asyncd.ContractViolation(r.conn, "SendData", asyncd.ErrWrongFramingMode)
	}
	if !bodyAllowedForStatus(r.Status) {
		return nil
	}
	if r.declaredLength >= 0 && r.bodySent+int64(len(data)) > r.declaredLength {
		return asyncd.ContractViolation(r.conn, "SendData", asyncd.ErrContentLengthExceeded)
	}
	n, err := r.conn.Write(data)
	r.bodySent += int64(n)
	return err
}

// SendChunk writes one chunk of a Transfer-Encoding: chunked body,
// freezing the header with chunked framing first if it hasn't been sent
// yet. Calling it once the header has been frozen in Content-Length mode
// is a contract violation (ErrWrongFramingMode), per spec §4.6. An empty
// data slice emits the terminator chunk ("0\r\n\r\n") — matching
// send_chunk(empty)'s meaning in the original — not a fixed-length chunk
// write; Finish is the idempotent convenience wrapper around the same
// terminator for callers that never see an empty final chunk naturally.
func (r *Response) SendChunk(proto string, keepAlive bool, data []byte) error {
	if !r.wrote {
		if err := r.SendHeader(proto, -1, keepAlive); err != nil {
			return err
		}
	}
	if !r.chunked {
		return asyncd.ContractViolation(r.conn, "SendChunk", asyncd.ErrWrongFramingMode)
	}
	if len(data) == 0 {
		return r.writeTerminator()
	}
	if _, err := fmt.Fprintf(r.conn, "%x\r\n", len(data)); err != nil {
		return err
	}
	if _, err := r.conn.Write(data); err != nil {
		return err
	}
	_, err := r.conn.Write(CrLf)
	return err
}

// Finish writes the chunked-encoding terminator ("0\r\n\r\n"). A no-op
// for a non-chunked response, or if already called — equivalent to
// calling SendChunk with an empty slice, for callers whose body just
// ends rather than naturally producing an empty final chunk.
func (r *Response) Finish() error {
	if !r.chunked {
		return nil
	}
	return r.writeTerminator()
}

func (r *Response) writeTerminator() error {
	if r.closed {
		return nil
	}
	r.closed = true
	_, err := r.conn.Write([]byte("0\r\n\r\n"))
	return err
}
