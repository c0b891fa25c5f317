/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package asyncd

// Event is a bitmask describing why the loop is invoking the hook chain for
// a connection. It mirrors AD_EVENT_BITS from the C original (ad_server.h):
// INIT/READ/WRITE/CLOSE describe the lifecycle transition, and TIMEOUT and
// SHUTDOWN are modifier bits that can be set alongside any of the four.
type Event uint8

const (
	EventInit Event = 1 << iota
	EventRead
	EventWrite
	EventClose
	EventTimeout
	EventShutdown
)

func (e Event) String() string {
	if e == 0 {
		return "NONE"
	}
	var parts []string
	for bit := EventInit; bit <= EventShutdown; bit <<= 1 {
		if e&bit != 0 {
			parts = append(parts, eventNames[bit])
		}
	}
	if len(parts) == 0 {
		return "UNKNOWN"
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "|" + p
	}
	return out
}

var eventNames = map[Event]string{
	EventInit:     "INIT",
	EventRead:     "READ",
	EventWrite:    "WRITE",
	EventClose:    "CLOSE",
	EventTimeout:  "TIMEOUT",
	EventShutdown: "SHUTDOWN",
}

// Has reports whether all bits in mask are set in e.
func (e Event) Has(mask Event) bool { return e&mask == mask }

// Status is the value a Hook returns to tell the dispatcher what to do next.
// The four statuses form a monotonic precedence ladder: OK < TAKEOVER <
// DONE < CLOSE. When more than one hook runs for the same event (which
// never happens within a single Dispatch, since TAKEOVER/DONE/CLOSE all
// stop the chain — but does happen across the INIT/READ/WRITE events of a
// connection's life), the connection's effective status is always the
// highest one any hook has ever returned, until it is explicitly reset by
// a pipelining reset.
type Status int

const (
	// StatusOK lets the hook chain continue to the next hook for this event.
	StatusOK Status = iota
	// StatusTakeover stops the chain for this event: the hook has claimed
	// the connection and needs more bytes (or more time) before anything
	// downstream should run. This is how the HTTP parser asks for more of
	// a request without finishing it.
	StatusTakeover
	// StatusDone marks the current request as finished. Like every non-OK
	// status it stops the chain, so hooks after the one returning it do
	// not run for this event; if server.request_pipelining is enabled
	// the connection is reset back to StatusOK/EventInit afterward instead
	// of being torn down.
	StatusDone
	// StatusClose tears the connection down after this event finishes
	// dispatching, regardless of what any other hook in the chain
	// returns.
	StatusClose
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "AD_OK"
	case StatusTakeover:
		return "AD_TAKEOVER"
	case StatusDone:
		return "AD_DONE"
	case StatusClose:
		return "AD_CLOSE"
	default:
		return "AD_UNKNOWN"
	}
}

// precedence resolves two statuses observed for the same connection to the
// higher-priority one, per the OK < TAKEOVER < DONE < CLOSE ladder.
func precedence(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}
