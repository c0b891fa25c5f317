/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package asyncd

import "github.com/pkg/errors"

// Sentinel errors callers are expected to compare against with errors.Is.
var (
	// ErrServerClosed is returned by the accept and dispatch loops once
	// Stop has been called; Start and Wait report that case as nil.
	ErrServerClosed = errors.New("asyncd: server closed")

	// ErrHeaderWritten is returned by response-builder calls that would
	// need to rewrite headers already flushed to the wire.
	ErrHeaderWritten = errors.New("asyncd: response header already written")

	// ErrContentLengthExceeded is returned when a hook writes more body
	// bytes than a previously declared Content-Length — spec §7's
	// contract-violation class, "writing past Content-Length".
	ErrContentLengthExceeded = errors.New("asyncd: wrote more than declared Content-Length")

	// ErrWrongFramingMode is returned by SendData in chunked mode or
	// SendChunk in Content-Length mode — spec §7's contract-violation
	// class, "mixing chunked and fixed framing".
	ErrWrongFramingMode = errors.New("asyncd: response framing mode mismatch")
)

// configError wraps a failure that happened validating or applying server
// options before the loop ever starts (spec §7's "configuration" class).
func configError(op string, err error) error {
	return errors.Wrapf(err, "asyncd: configuration error in %s", op)
}

// acceptError wraps a failure accepting a new connection (spec §7's
// "accept-time" class). These are logged and the accept loop continues;
// they never reach a caller synchronously.
func acceptError(err error) error {
	return errors.Wrap(err, "asyncd: accept error")
}

// contractError wraps a violation of the hook contract by application code
// (spec §7's "contract-violation-by-application" class) — e.g. writing
// past a declared Content-Length, mixing chunked and fixed framing, or
// mutating response headers after freeze.
func contractError(op string, err error) error {
	return errors.Wrapf(err, "asyncd: hook contract violation in %s", op)
}

// ContractViolation reports a hook-contract violation the way spec §7
// prescribes: logged as a warning on conn, returned to the caller, but
// never fatal to the connection. httpd's response builder calls this for
// every violation listed in that error class instead of returning a bare
// error.
func ContractViolation(conn *Conn, op string, cause error) error {
	err := contractError(op, cause)
	conn.log.WithError(err).Warn("hook contract violation")
	return err
}
