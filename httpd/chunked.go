/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpd

import (
	"bytes"

	"github.com/pkg/errors"
)

// parseChunkSizeLine parses a chunk-size line (the hex length, optionally
// followed by a ";token" or ";token=value" chunk-extension, which is
// ignored rather than rejected — the same leniency net/http's internal
// chunked reader applies). line has already had its trailing CRLF/LF
// stripped by readLine.
func parseChunkSizeLine(line []byte) (uint64, error) {
	line = removeChunkExtension(line)
	return parseHexUint(line)
}

func removeChunkExtension(p []byte) []byte {
	if semi := bytes.IndexByte(p, ';'); semi != -1 {
		return p[:semi]
	}
	return p
}

func parseHexUint(v []byte) (uint64, error) {
	if len(v) == 0 {
		return 0, errors.New("empty chunk length")
	}
	var n uint64
	for i, b := range v {
		switch {
		case '0' <= b && b <= '9':
			b -= '0'
		case 'a' <= b && b <= 'f':
			b -= 'a' - 10
		case 'A' <= b && b <= 'F':
			b -= 'A' - 10
		default:
			return 0, errors.New("invalid byte in chunk length")
		}
		if i == 16 {
			return 0, errors.New("http chunk length too large")
		}
		n <<= 4
		n |= uint64(b)
	}
	return n, nil
}
