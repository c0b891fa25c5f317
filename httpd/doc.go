/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package httpd implements the HTTP/1.x request parser hook (Component E)
// and response builder (Component F) described in the spec, as a regular
// asyncd.HookFunc — there is nothing special about it from the loop's
// point of view.
//
// A server with no parser hook registered behaves exactly like one with
// ad_bypass_handler.c installed in the C original: raw bytes reach
// whatever hooks are registered, conn.Method() stays "", and any
// method-filtered hook never matches. This package doesn't ship a
// distinct bypass hook because the absence of NewParserHook already is
// one.
package httpd
