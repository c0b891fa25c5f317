/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package asyncd

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"time"
)

// acceptLoop is a per-connection-reader-goroutine producer: it blocks on
// Accept and, for each new connection, spawns exactly the bookkeeping
// needed to get the connection's first INIT event onto the dispatch
// channel. It never runs a hook itself.
func (s *Server) acceptLoop(ctx context.Context) error {
	if backlog := s.GetOption(OptBacklog); backlog != "" {
		if _, err := strconv.Atoi(backlog); err != nil {
			s.logger.WithField("value", backlog).Warn("server.backlog is not numeric, ignoring")
		}
		// net.Listen has no portable backlog knob; the OS default applies.
		// The option is still validated and surfaced so callers relying on
		// server.backlog being honored on a given platform notice early.
	}

	for {
		raw, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ErrServerClosed
			default:
			}
			s.logger.WithError(acceptError(err)).Warn("accept error")
			continue
		}
		go s.onAccept(ctx, raw)
	}
}

// onAccept runs the (potentially blocking) TLS handshake off the loop
// goroutine, then hands the new Conn to the dispatch loop as an INIT
// event and starts its background reader.
func (s *Server) onAccept(ctx context.Context, raw net.Conn) {
	var tlsState *tls.ConnectionState
	if s.tlsConfig != nil {
		tlsConn := tls.Server(raw, s.tlsConfig)
		if err := tlsConn.Handshake(); err != nil {
			s.logger.WithError(err).Warn("tls handshake failed")
			raw.Close()
			return
		}
		state := tlsConn.ConnectionState()
		tlsState = &state
		raw = tlsConn
	}

	c := NewConn(s, raw)
	c.tlsState = tlsState
	s.trackConn(c)
	s.stats.connAccepted()

	// Per spec §4.4.1, an SSL-enabled server dispatches INIT|WRITE (not
	// bare INIT) once the handshake has completed, so handlers can
	// pre-queue data knowing the connection is write-ready.
	event := EventInit
	if tlsState != nil {
		event |= EventWrite
	}

	select {
	case s.notify <- connEvent{conn: c, event: event}:
	case <-ctx.Done():
		c.close("shutdown")
	}
}

// applyIdleDeadline sets the read deadline implementing server.timeout:
// a positive value bounds how long the connection may sit with no bytes
// arriving before the loop delivers a CLOSE with the TIMEOUT bit.
func (s *Server) applyIdleDeadline(c *Conn) {
	timeout := s.GetOption(OptTimeout)
	secs, err := strconv.Atoi(timeout)
	if err != nil || secs <= 0 {
		return
	}
	c.raw.SetReadDeadline(time.Now().Add(time.Duration(secs) * time.Second))
}

// dispatchLoop is the single event loop: it is the only goroutine that
// ever calls into a Hook. Everything else in this package exists to get
// work onto s.notify without touching hook state concurrently.
func (s *Server) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ErrServerClosed
		case ev := <-s.notify:
			s.handleEvent(ev)
		}
	}
}

func (s *Server) handleEvent(ev connEvent) {
	conn := ev.conn
	event := ev.event

	if ev.err != nil {
		if isTimeout(ev.err) {
			event |= EventTimeout
		}
		event |= EventClose
	}

	status := s.hooks.dispatch(conn, event)
	status = conn.adoptStatus(status)

	closeAlreadyRan := event.Has(EventClose)

	switch status {
	case StatusTakeover:
		// Hook needs more bytes; resume the background read and wait for
		// the next notifyConnReadable.
		conn.reader.startBackgroundRead()
		return

	case StatusDone:
		if s.GetOption(OptRequestPipelining) == "1" {
			s.hooks.dispatch(conn, EventClose)
			conn.reset()
			s.hooks.dispatch(conn, EventInit)
			// The next pipelined request may already be buffered; no new
			// network read would announce it, so dispatch READ for it now.
			if conn.Buffered() > 0 {
				s.handleEvent(connEvent{conn: conn, event: EventRead})
				return
			}
			conn.reader.startBackgroundRead()
			return
		}
		s.closeConn(conn, "done", closeAlreadyRan)

	case StatusClose:
		s.closeConn(conn, "hook", closeAlreadyRan)

	default: // StatusOK
		if closeAlreadyRan {
			s.closeConn(conn, closeReason(event), true)
			return
		}
		conn.reader.startBackgroundRead()
	}
}

func closeReason(event Event) string {
	if event.Has(EventTimeout) {
		return "timeout"
	}
	if event.Has(EventShutdown) {
		return "shutdown"
	}
	return "eof"
}

func (s *Server) closeConn(conn *Conn, reason string, closeAlreadyRan bool) {
	if !closeAlreadyRan {
		s.hooks.dispatch(conn, EventClose)
	}
	conn.close(reason)
	s.untrackConn(conn)
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
