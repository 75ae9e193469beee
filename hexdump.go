/*
Copyright 2021 Hewlett Packard Enterprise Development LP

Permission is hereby granted, free of charge, to any person obtaining a
copy of this software and associated documentation files (the "Software"),
to deal in the Software without restriction, including without limitation
the rights to use, copy, modify, merge, publish, distribute, sublicense,
and/or sell copies of the Software, and to permit persons to whom the
Software is furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.

IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM,
DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR
OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE
USE OR OTHER DEALINGS IN THE SOFTWARE.
*/

// Package framewire is a declarative binary frame packer, parser and
// stream framer: structures are declared once with schema.Builder, then
// packed and unpacked by the shared pack/unpack walk, or recovered from
// a chunked byte stream with framer.Framer.
package framewire

import (
	"fmt"
	"io"
)

// DumpBytes prints b in the classic 16-bytes-per-line hex format,
// adapted from structex's Buffer.DebugDump for use on packed frames and
// raw wire captures during development.
func DumpBytes(w io.Writer, b []byte) {
	for offset := 0; offset < len(b); offset += 16 {
		fmt.Fprintf(w, "%08x: ", offset)
		for i := 0; i < 16; i++ {
			if offset+i < len(b) {
				fmt.Fprintf(w, "%02x ", b[offset+i])
			} else {
				fmt.Fprint(w, "-- ")
			}
		}
		fmt.Fprintln(w)
	}
}
