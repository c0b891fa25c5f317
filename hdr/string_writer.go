/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package hdr

import "io"

// @comment : in "strings" package there is the same thing called stringWriterIface
// stringWriter implements WriteString on top of a plain io.Writer, for
// writers (like bytes.Buffer or bufio.Writer) that don't already expose it.
type stringWriter struct {
	w io.Writer
}

func (w stringWriter) WriteString(s string) (int, error) {
	return w.w.Write([]byte(s))
}
