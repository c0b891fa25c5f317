/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpd

// HTTP/1.x method tokens, used both by the parser (to stamp conn.SetMethod)
// and by callers registering a hook with asyncd.Server.RegisterHookOnMethod.
const (
	GET     = "GET"
	POST    = "POST"
	CONNECT = "CONNECT"
	DELETE  = "DELETE"
	HEAD    = "HEAD"
	OPTIONS = "OPTIONS"
	PUT     = "PUT"
	PATCH   = "PATCH"
	TRACE   = "TRACE"

	HTTP1_1 = "HTTP/1.1"
	HTTP1_0 = "HTTP/1.0"
	HTTP0_9 = "HTTP/0.9"

	KeepAlive = "Keep-Alive"

	DoClose     = "close"
	DoKeepAlive = "keep-alive"
	DoChunked   = "chunked"
	DoIdentity  = "identity"
)

var (
	CrLf       = []byte("\r\n")
	DoubleCrLf = []byte("\r\n\r\n")
)
