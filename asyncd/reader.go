/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package asyncd

import (
	"net"
	"sync"
	"time"
)

var aLongTimeAgo = time.Unix(1, 0)

// readChunkSize is how much a single background read pulls off the wire
// before handing it to the loop. It bounds how much work one EventRead
// dispatch represents; it is not a protocol limit (see httpd's own
// header-size limit for that).
const readChunkSize = 4096

// connReader drives the one blocking network read a connection is allowed
// to have in flight at a time, off of the loop goroutine. Its only two
// jobs are: read whatever is available into the connection's input
// buffer, and tell the loop about it (or about the error that ended the
// connection) via Server.notifyConnReadable. The loop goroutine itself
// never calls Read on a raw net.Conn.
type connReader struct {
	mu      sync.Mutex
	conn    *Conn
	cond    *sync.Cond
	inRead  bool
	aborted bool
}

func (r *connReader) lock() {
	r.mu.Lock()
	if r.cond == nil {
		r.cond = sync.NewCond(&r.mu)
	}
}

func (r *connReader) unlock() { r.mu.Unlock() }

// startBackgroundRead arms the next blocking read, if one isn't already
// in flight. Called by the loop after it has consumed everything a hook
// needed from the connection's input buffer and wants to know about more.
func (r *connReader) startBackgroundRead() {
	r.lock()
	defer r.unlock()
	if r.inRead {
		return
	}
	r.inRead = true
	go r.backgroundRead()
}

func (r *connReader) backgroundRead() {
	r.conn.server.applyIdleDeadline(r.conn)
	buf := make([]byte, readChunkSize)
	n, err := r.conn.raw.Read(buf)

	r.lock()
	if ne, ok := err.(net.Error); ok && r.aborted && ne.Timeout() {
		// expected: abortPendingRead set a past deadline to reclaim the
		// raw connection (e.g. to close it); this isn't a real error.
		err = nil
	}
	r.aborted = false
	r.inRead = false
	r.unlock()
	r.cond.Broadcast()

	if n > 0 {
		r.conn.appendInput(buf[:n])
		r.conn.server.notifyConnReadable(r.conn, nil)
		return
	}
	if err != nil {
		r.conn.server.notifyConnReadable(r.conn, err)
	}
}

// abortPendingRead interrupts a background read in flight by setting a
// past read deadline, then waits for it to actually return. Used before
// closing a connection out from under its reader goroutine.
func (r *connReader) abortPendingRead() {
	r.lock()
	defer r.unlock()
	if !r.inRead {
		return
	}
	r.aborted = true
	r.conn.raw.SetReadDeadline(aLongTimeAgo)
	for r.inRead {
		r.cond.Wait()
	}
	r.conn.raw.SetReadDeadline(time.Time{})
}
