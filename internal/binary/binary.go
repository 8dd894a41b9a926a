// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package binary provides support for operating on binary data whose byte
// order is only known once a magic number has been inspected.
package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortBuffer is returned when a Buffer runs out of data.
var ErrShortBuffer = errors.New("buffer too short")

// DetectOrder returns the byte order in which data begins with magic.
func DetectOrder(data []byte, magic uint32) (binary.ByteOrder, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("reading magic: %w", ErrShortBuffer)
	}
	switch magic {
	case binary.LittleEndian.Uint32(data):
		return binary.LittleEndian, nil
	case binary.BigEndian.Uint32(data):
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("wrong magic %x (wanted %x)", data[:4], magic)
}

// Buffer decodes fixed width values from a byte slice.  The first failure is
// sticky: once Err returns non-nil every further read returns zero values.
type Buffer struct {
	data  []byte
	pos   int
	order binary.ByteOrder
	err   error
}

// NewBuffer returns a Buffer reading data in the provided order.
func NewBuffer(data []byte, order binary.ByteOrder) *Buffer {
	return &Buffer{data: data, order: order}
}

// Err returns the first error encountered while reading.
func (b *Buffer) Err() error {
	return b.err
}

// Pos returns the offset of the next unread byte.
func (b *Buffer) Pos() int {
	return b.pos
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.pos
}

func (b *Buffer) next(n int) []byte {
	if b.err != nil {
		return nil
	}
	if n < 0 || b.Len() < n {
		b.err = fmt.Errorf("reading %d bytes at offset %d: %w", n, b.pos, ErrShortBuffer)
		return nil
	}
	p := b.data[b.pos : b.pos+n]
	b.pos += n
	return p
}

// Skip discards n bytes.
func (b *Buffer) Skip(n int) {
	b.next(n)
}

// Bytes returns the next n bytes without copying them.
func (b *Buffer) Bytes(n int) []byte {
	return b.next(n)
}

// Uint8 reads a single byte.
func (b *Buffer) Uint8() uint8 {
	if p := b.next(1); p != nil {
		return p[0]
	}
	return 0
}

// Uint16 reads a 16-bit unsigned integer.
func (b *Buffer) Uint16() uint16 {
	if p := b.next(2); p != nil {
		return b.order.Uint16(p)
	}
	return 0
}

// Uint32 reads a 32-bit unsigned integer.
func (b *Buffer) Uint32() uint32 {
	if p := b.next(4); p != nil {
		return b.order.Uint32(p)
	}
	return 0
}

// Uint64 reads a 64-bit unsigned integer.
func (b *Buffer) Uint64() uint64 {
	if p := b.next(8); p != nil {
		return b.order.Uint64(p)
	}
	return 0
}

// Float32 reads an IEEE-754 single precision value.
func (b *Buffer) Float32() float32 {
	return math.Float32frombits(b.Uint32())
}

// Float64 reads an IEEE-754 double precision value.
func (b *Buffer) Float64() float64 {
	return math.Float64frombits(b.Uint64())
}

// CString reads bytes up to and including the next NUL and returns them
// without the terminator.
func (b *Buffer) CString() string {
	if b.err != nil {
		return ""
	}
	for i := b.pos; i < len(b.data); i++ {
		if b.data[i] == 0 {
			s := string(b.data[b.pos:i])
			b.pos = i + 1
			return s
		}
	}
	b.err = fmt.Errorf("unterminated string at offset %d: %w", b.pos, ErrShortBuffer)
	return ""
}

// Writer appends fixed width values to a byte slice.
type Writer struct {
	buf   []byte
	order binary.ByteOrder
}

// NewWriter returns a Writer encoding values in the provided order.
func NewWriter(order binary.ByteOrder) *Writer {
	return &Writer{order: order}
}

// Bytes returns the encoded data.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Uint8 appends a single byte.
func (w *Writer) Uint8(v uint8) {
	w.buf = append(w.buf, v)
}

// Uint16 appends a 16-bit unsigned integer.
func (w *Writer) Uint16(v uint16) {
	var p [2]byte
	w.order.PutUint16(p[:], v)
	w.buf = append(w.buf, p[:]...)
}

// Uint32 appends a 32-bit unsigned integer.
func (w *Writer) Uint32(v uint32) {
	var p [4]byte
	w.order.PutUint32(p[:], v)
	w.buf = append(w.buf, p[:]...)
}

// Uint64 appends a 64-bit unsigned integer.
func (w *Writer) Uint64(v uint64) {
	var p [8]byte
	w.order.PutUint64(p[:], v)
	w.buf = append(w.buf, p[:]...)
}

// Float32 appends an IEEE-754 single precision value.
func (w *Writer) Float32(v float32) {
	w.Uint32(math.Float32bits(v))
}

// Float64 appends an IEEE-754 double precision value.
func (w *Writer) Float64(v float64) {
	w.Uint64(math.Float64bits(v))
}

// Write appends raw bytes.
func (w *Writer) Write(p []byte) {
	w.buf = append(w.buf, p...)
}

// CString appends s followed by a NUL terminator.
func (w *Writer) CString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}
