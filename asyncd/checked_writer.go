/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package asyncd

// checkedWriter writes to c.raw and records the first write error on c.wErr.
// It has exactly one field (and a pointer field at that), so it fits in an
// interface value without an extra allocation — same reasoning as the
// teacher's checkConnErrorWriter.
type checkedWriter struct {
	c *Conn
}

func (w checkedWriter) Write(p []byte) (int, error) {
	n, err := w.c.raw.Write(p)
	if err != nil && w.c.wErr == nil {
		w.c.wErr = err
	}
	return n, err
}
