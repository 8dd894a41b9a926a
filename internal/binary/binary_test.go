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

package binary

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestDetectOrder(t *testing.T) {
	const magic = 0x8789F2EB
	testCases := []struct {
		name  string
		input []byte
		want  binary.ByteOrder
	}{
		{"little endian", []byte{0xEB, 0xF2, 0x89, 0x87}, binary.LittleEndian},
		{"big endian", []byte{0x87, 0x89, 0xF2, 0xEB, 0x00}, binary.BigEndian},
		{"wrong magic", []byte{0x87, 0x89, 0xF2, 0xEC}, nil},
		{"truncated", []byte{0x87, 0x89}, nil},
		{"empty", nil, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DetectOrder(tc.input, magic)
			if tc.want == nil {
				if err == nil {
					t.Fatalf("DetectOrder accepted mismatched input %x", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectOrder returned unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Wrong byte order: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBufferRoundTrip(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			w := NewWriter(order)
			w.Uint8(7)
			w.Uint16(0xBEEF)
			w.Uint32(0xDEADBEEF)
			w.Uint64(1 << 40)
			w.Float32(0.1)
			w.Float64(-2.5)
			w.CString("geneA\t+")

			b := NewBuffer(w.Bytes(), order)
			if got, want := b.Uint8(), uint8(7); got != want {
				t.Errorf("Uint8: got %d, want %d", got, want)
			}
			if got, want := b.Uint16(), uint16(0xBEEF); got != want {
				t.Errorf("Uint16: got %x, want %x", got, want)
			}
			if got, want := b.Uint32(), uint32(0xDEADBEEF); got != want {
				t.Errorf("Uint32: got %x, want %x", got, want)
			}
			if got, want := b.Uint64(), uint64(1<<40); got != want {
				t.Errorf("Uint64: got %d, want %d", got, want)
			}
			if got, want := b.Float32(), float32(0.1); got != want {
				t.Errorf("Float32: got %v, want %v", got, want)
			}
			if got, want := b.Float64(), -2.5; got != want {
				t.Errorf("Float64: got %v, want %v", got, want)
			}
			if got, want := b.CString(), "geneA\t+"; got != want {
				t.Errorf("CString: got %q, want %q", got, want)
			}
			if err := b.Err(); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got := b.Len(); got != 0 {
				t.Errorf("Unread bytes: got %d, want 0", got)
			}
		})
	}
}

func TestBufferShort(t *testing.T) {
	b := NewBuffer([]byte{1, 2, 3}, binary.LittleEndian)
	if got := b.Uint32(); got != 0 {
		t.Errorf("Uint32 on short buffer: got %d, want 0", got)
	}
	if !errors.Is(b.Err(), ErrShortBuffer) {
		t.Fatalf("Wrong error: got %v, want ErrShortBuffer", b.Err())
	}
	// Errors are sticky.
	if got := b.Uint8(); got != 0 {
		t.Errorf("Uint8 after error: got %d, want 0", got)
	}

	b = NewBuffer([]byte("abc"), binary.LittleEndian)
	if got := b.CString(); got != "" || b.Err() == nil {
		t.Errorf("CString on unterminated input: got %q, %v", got, b.Err())
	}
}
