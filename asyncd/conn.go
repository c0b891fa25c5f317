/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package asyncd

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Two user-data slots per connection, per ad_server.h's AD_USER_DATA /
// AD_CONN_HTTP_CONTEXT. Slot 0 is free for the embedding application; slot
// 1 is reserved for whichever protocol hook owns the connection (the httpd
// parser stores its in-progress Request there).
const (
	SlotApp = iota
	SlotProtocol

	numSlots
)

// connState names the lifecycle states of spec §4.4: NEW, ACTIVE,
// DRAINING, CLOSED. The engine only ever sets connNew (at creation and on
// a pipelining reset) and connClosed (in close); connActive and
// connDraining are declared but never entered, and close flushes buffered
// writes synchronously rather than waiting in a draining state.
type connState int32

const (
	connNew connState = iota
	connActive
	connDraining
	connClosed
)

type userSlot struct {
	value   any
	release func(any)
}

// Conn is the per-connection handle passed to every HookFunc. It wraps the
// raw network connection (Component A) and carries the lifecycle state
// (Component D): current Status, current Method, and the two user-data
// slots.
type Conn struct {
	ID string // stable uuid, stamped at accept; carried through every log line and stat key

	server *Server
	log    *logrus.Entry

	raw      net.Conn
	tlsState *tls.ConnectionState

	reader    *connReader
	bufWriter *bufio.Writer
	wErr      error

	inMu sync.Mutex
	in   bytes.Buffer // bytes read from raw but not yet consumed by a hook

	mu              sync.Mutex
	state           connState
	status          Status
	method          string
	slots           [numSlots]userSlot
	keepaliveReuses int
}

// NewConn wraps raw as a Conn bound to server without going through
// Server.Start's accept loop. Exported for tests and for embedders who
// already have a net.Conn from elsewhere (e.g. a net.Pipe in a hook's own
// unit test) and want the same lifecycle/Status/user-data machinery
// Start's accept path gives every connection.
func NewConn(server *Server, raw net.Conn) *Conn {
	id := uuid.NewString()
	c := &Conn{
		ID:     id,
		server: server,
		log:    server.logger.WithField("conn", id),
		raw:    raw,
		state:  connNew,
		status: StatusOK,
	}
	c.reader = &connReader{conn: c}
	c.bufWriter = bufio.NewWriter(checkedWriter{c})
	return c
}

// Method returns the request method the protocol hook has stamped via
// SetMethod, or "" if none has (e.g. the connection is still in EventInit,
// or no protocol hook is registered at all).
func (c *Conn) Method() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.method
}

// SetMethod stamps the method used for Hook.Method filtering. Only a
// protocol hook (conventionally the one holding SlotProtocol) should call
// this.
func (c *Conn) SetMethod(method string) {
	c.mu.Lock()
	c.method = method
	c.mu.Unlock()
}

// Status returns the highest-precedence Status observed for this
// connection since it was created or last reset by a pipelining reset.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// adoptStatus folds s into the connection's running status using the
// OK < TAKEOVER < DONE < CLOSE precedence ladder and returns the result.
func (c *Conn) adoptStatus(s Status) Status {
	c.mu.Lock()
	c.status = precedence(c.status, s)
	result := c.status
	c.mu.Unlock()
	return result
}

// SetUserData stores value in the given slot (SlotApp or SlotProtocol).
// release, if non-nil, is invoked with value exactly once — either when
// the slot is later overwritten, or when the connection resets or closes
// — never both. Overwriting a slot fires the release callback stored with
// the value it replaces.
func (c *Conn) SetUserData(slot int, value any, release func(any)) {
	c.mu.Lock()
	old := c.slots[slot]
	c.slots[slot] = userSlot{value: value, release: release}
	c.mu.Unlock()
	if old.release != nil {
		old.release(old.value)
	}
}

// UserData returns the value currently stored in slot, or nil.
func (c *Conn) UserData(slot int) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[slot].value
}

func (c *Conn) releaseSlotsLocked() {
	for i := range c.slots {
		s := c.slots[i]
		c.slots[i] = userSlot{}
		if s.release != nil {
			s.release(s.value)
		}
	}
}

// reset implements spec §4.4.5's pipelining reset: clear status, method
// and both user-data slots (firing release callbacks), leaving the raw
// connection and its buffers untouched so the next request can be parsed
// from whatever is already buffered.
func (c *Conn) reset() {
	c.mu.Lock()
	c.releaseSlotsLocked()
	c.status = StatusOK
	c.method = ""
	c.state = connNew
	c.keepaliveReuses++
	reuses := c.keepaliveReuses
	c.mu.Unlock()
	c.server.stats.keepaliveReuse()
	c.log.WithField("reuses", reuses).Debug("connection reset for pipelined request")
}

// appendInput is called only by this connection's background reader
// goroutine, handing freshly-read bytes to the loop goroutine. It never
// blocks and never touches the network.
func (c *Conn) appendInput(p []byte) {
	c.inMu.Lock()
	c.in.Write(p)
	c.inMu.Unlock()
	c.server.stats.addBytesIn(len(p))
}

// Feed appends p to the connection's input buffer directly, bypassing
// the background reader entirely. It exists for tests and offline
// replay (a hook wants to exercise its parser against a captured byte
// stream, or a unit test wants to drive a Conn without a real socket on
// the other end) — production code driven through Server.Start never
// needs it, since the background reader calls appendInput itself.
func (c *Conn) Feed(p []byte) { c.appendInput(p) }

// Buffered returns the number of input bytes available without touching
// the network — hooks only ever see bytes already delivered by the
// background reader, so a hook can never block the loop waiting on I/O.
func (c *Conn) Buffered() int {
	c.inMu.Lock()
	defer c.inMu.Unlock()
	return c.in.Len()
}

// Peek returns up to n buffered bytes without consuming them. The second
// return value is false if fewer than n bytes are currently available —
// the caller (typically the HTTP parser hook) should return StatusTakeover
// in that case and try again on the next EventRead.
func (c *Conn) Peek(n int) ([]byte, bool) {
	c.inMu.Lock()
	defer c.inMu.Unlock()
	b := c.in.Bytes()
	if len(b) < n {
		return b, false
	}
	return b[:n], true
}

// Discard consumes n already-peeked bytes.
func (c *Conn) Discard(n int) {
	c.inMu.Lock()
	c.in.Next(n)
	c.inMu.Unlock()
}

// Read consumes up to len(p) buffered bytes, copying into p. It never
// touches the network: an empty buffer yields (0, io.EOF) the same way
// bytes.Buffer always does, which callers here must read as "nothing more
// buffered right now", not "the connection is closed" — connection close
// is only ever signaled through an EventClose dispatch.
func (c *Conn) Read(p []byte) (int, error) {
	c.inMu.Lock()
	defer c.inMu.Unlock()
	return c.in.Read(p)
}

// Write buffers p for the connection; callers (the response builder) must
// call Flush to push it to the wire.
func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.bufWriter.Write(p)
	if err == nil {
		c.server.stats.addBytesOut(n)
	}
	return n, err
}

// Flush pushes any buffered writes to the underlying socket.
func (c *Conn) Flush() error { return c.bufWriter.Flush() }

// RemoteAddr returns the connection's remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// TLS returns the TLS connection state, or nil if this connection isn't
// wrapped in TLS.
func (c *Conn) TLS() *tls.ConnectionState { return c.tlsState }

// Logger returns the connection's structured logger, stamped with its ID.
// Protocol hooks use it to log the contract-violation warnings spec §7
// calls for (writing past Content-Length, mixing chunked and fixed
// framing, mutating headers after freeze) without killing the connection.
func (c *Conn) Logger() *logrus.Entry { return c.log }

// ReportParserError increments the asyncd_parser_errors_total counter. A
// protocol hook calls this once per request it rejects (invalid request
// line, bad URI, malformed chunked frame, and so on) before returning
// StatusClose.
func (c *Conn) ReportParserError() { c.server.stats.parserError() }

// close tears the connection down: it releases both user-data slots,
// flushes buffered writes, logs a TLS warning via drainTLSErrors if one
// applies, and closes the raw socket. Safe to call more than once.
func (c *Conn) close(reason string) error {
	c.mu.Lock()
	if c.state == connClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = connClosed
	c.releaseSlotsLocked()
	c.mu.Unlock()

	c.reader.abortPendingRead()
	c.bufWriter.Flush()
	c.drainTLSErrors()
	err := c.raw.Close()
	c.server.stats.connClosed(reason)
	c.log.WithField("reason", reason).Debug("connection closed")
	return err
}

// drainTLSErrors logs a warning if the TLS connection is being closed
// before completing its handshake. ad_server.c's close_connection loops
// ERR_get_error until OpenSSL's thread-local error queue is empty;
// crypto/tls has no equivalent queue (one error surfaces per operation),
// so this degenerates to the one check Go's API actually exposes.
func (c *Conn) drainTLSErrors() {
	if c.tlsState == nil {
		return
	}
	tlsConn, ok := c.raw.(*tls.Conn)
	if !ok {
		return
	}
	if state := tlsConn.ConnectionState(); !state.HandshakeComplete {
		c.log.Warn("tls connection closed before handshake completed")
	}
}
