/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package asyncd implements an embeddable, single-event-loop asynchronous
// TCP server built around an ordered, method-filtered hook pipeline.
//
// A Server owns exactly one event loop. Accepted connections are read by
// per-connection reader goroutines (writes happen synchronously inside the
// hook that makes them), but every hook invocation for
// every connection runs on the loop goroutine, serialized — hooks must
// never block, and the loop never hands work to a pool. This is the
// opposite trade-off from a goroutine-per-connection net/http-style server:
// it buys predictable ordering and cheap per-connection state at the cost
// of requiring cooperative, non-blocking hooks.
//
// Hooks communicate with the loop and with each other through a Status
// returned from each call: AD_OK lets the chain continue, AD_TAKEOVER stops
// the chain for this event only (the hook needs more bytes), AD_DONE marks
// the request finished (eligible for a pipelining reset), and AD_CLOSE
// tears the connection down. See Status for the full precedence rule.
package asyncd
