/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package hdr

import "io"

// New returns an empty Header with its backing storage pre-allocated.
// Prefer this over the zero value on the pipelining reset path (see Reset),
// where a Header is reused many times on the same connection.
func New() Header {
	return Header{fields: headerFieldPool.Get().([]field)[:0]}
}

// Reset clears h and returns its backing array to the pool. It is the
// HTTP/1.1 pipelining counterpart to New: ad_server.c resets a connection's
// state in place rather than reallocating it, and this does the same for
// the per-request header table.
func (h *Header) Reset() {
	for i := range h.fields {
		h.fields[i] = field{}
	}
	headerFieldPool.Put(h.fields[:0])
	h.fields = nil
	h.index = nil
}

// Add appends value to any existing values for key, preserving key's
// original insertion position. A key not seen before is appended at the
// end, in first-seen order.
func (h *Header) Add(key, value string) {
	canon := CanonicalHeaderKey(key)
	if h.index == nil {
		h.index = make(map[string]int, 8)
	}
	if i, ok := h.index[canon]; ok {
		h.fields[i].values = append(h.fields[i].values, value)
		return
	}
	h.index[canon] = len(h.fields)
	h.fields = append(h.fields, field{key: canon, values: []string{value}})
}

// Set replaces any existing values for key with the single value, keeping
// key's original position if it already existed.
func (h *Header) Set(key, value string) {
	canon := CanonicalHeaderKey(key)
	if h.index == nil {
		h.index = make(map[string]int, 8)
	}
	if i, ok := h.index[canon]; ok {
		h.fields[i].values = h.fields[i].values[:0]
		h.fields[i].values = append(h.fields[i].values, value)
		return
	}
	h.index[canon] = len(h.fields)
	h.fields = append(h.fields, field{key: canon, values: []string{value}})
}

// Get returns the first value associated with key, or "" if key is absent.
// It is case insensitive.
func (h Header) Get(key string) string {
	if h.index == nil {
		return ""
	}
	i, ok := h.index[CanonicalHeaderKey(key)]
	if !ok || len(h.fields[i].values) == 0 {
		return ""
	}
	return h.fields[i].values[0]
}

// Values returns all values associated with key, in insertion order. The
// returned slice must not be mutated by the caller.
func (h Header) Values(key string) []string {
	if h.index == nil {
		return nil
	}
	i, ok := h.index[CanonicalHeaderKey(key)]
	if !ok {
		return nil
	}
	return h.fields[i].values
}

// Has reports whether key has been set at all, regardless of its values.
func (h Header) Has(key string) bool {
	if h.index == nil {
		return false
	}
	_, ok := h.index[CanonicalHeaderKey(key)]
	return ok
}

// Del deletes the values associated with key, if any, preserving the
// insertion order of the remaining keys.
func (h *Header) Del(key string) {
	canon := CanonicalHeaderKey(key)
	i, ok := h.index[canon]
	if !ok {
		return
	}
	h.fields = append(h.fields[:i], h.fields[i+1:]...)
	delete(h.index, canon)
	for k, idx := range h.index {
		if idx > i {
			h.index[k] = idx - 1
		}
	}
}

// Len returns the number of distinct header names set.
func (h Header) Len() int { return len(h.fields) }

// Names returns the header names in insertion order.
func (h Header) Names() []string {
	names := make([]string, len(h.fields))
	for i, f := range h.fields {
		names[i] = f.key
	}
	return names
}

// Clone returns a deep copy of h.
func (h Header) Clone() Header {
	if len(h.fields) == 0 {
		return Header{}
	}
	h2 := Header{
		fields: make([]field, len(h.fields)),
		index:  make(map[string]int, len(h.index)),
	}
	for i, f := range h.fields {
		vv := make([]string, len(f.values))
		copy(vv, f.values)
		h2.fields[i] = field{key: f.key, values: vv}
	}
	for k, v := range h.index {
		h2.index[k] = v
	}
	return h2
}

// Write writes h to w in wire format, one "Key: value\r\n" line per value,
// in insertion order.
func (h Header) Write(w io.Writer) error {
	ws, ok := w.(writeStringer)
	if !ok {
		ws = stringWriter{w}
	}
	for _, f := range h.fields {
		for _, v := range f.values {
			v = headerNewlineToSpace.Replace(v)
			v = TrimString(v)
			for _, s := range [...]string{f.key, ": ", v, "\r\n"} {
				if _, err := ws.WriteString(s); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
