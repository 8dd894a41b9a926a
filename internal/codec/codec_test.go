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

package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	input := []byte(strings.Repeat("chr1\t100\t200\tgeneA\n", 100))
	testCases := []struct {
		encode, decode Codec
	}{
		{None, None},
		{Zlib, Zlib},
		{Zlib, Auto},
		{Zstd, Zstd},
		{Zstd, Auto},
		{Auto, Zlib},
	}
	for _, tc := range testCases {
		t.Run(tc.encode.String()+"/"+tc.decode.String(), func(t *testing.T) {
			encoded, err := Encode(tc.encode, input)
			if err != nil {
				t.Fatalf("Encode() failed: %v", err)
			}
			decoded, err := Decode(tc.decode, encoded, 0)
			if err != nil {
				t.Fatalf("Decode() failed: %v", err)
			}
			if !bytes.Equal(decoded, input) {
				t.Errorf("Wrong data: got %d bytes, want %d bytes", len(decoded), len(input))
			}
		})
	}
}

func TestDecodeLimit(t *testing.T) {
	input := bytes.Repeat([]byte{'x'}, 4096)
	for _, c := range []Codec{Zlib, Zstd} {
		t.Run(c.String(), func(t *testing.T) {
			encoded, err := Encode(c, input)
			if err != nil {
				t.Fatalf("Encode() failed: %v", err)
			}
			if _, err := Decode(c, encoded, len(input)); err != nil {
				t.Errorf("Decode() at exact limit failed: %v", err)
			}
			if _, err := Decode(c, encoded, len(input)-1); !errors.Is(err, ErrTooLarge) {
				t.Errorf("Decode() past limit: got %v, want ErrTooLarge", err)
			}
		})
	}
}

func TestDecodeLimitHighlyCompressed(t *testing.T) {
	input := make([]byte, 16<<20)
	for _, c := range []Codec{Zlib, Zstd} {
		t.Run(c.String(), func(t *testing.T) {
			encoded, err := Encode(c, input)
			if err != nil {
				t.Fatalf("Encode() failed: %v", err)
			}
			if len(encoded) > 1<<20 {
				t.Fatalf("Wrong encoded size: got %d bytes, want a highly compressed block", len(encoded))
			}
			if _, err := Decode(c, encoded, 1024); !errors.Is(err, ErrTooLarge) {
				t.Errorf("Decode() past limit: got %v, want ErrTooLarge", err)
			}
		})
	}
}

func TestDecodeCorrupt(t *testing.T) {
	encoded, err := Encode(Zlib, []byte("some block data that compresses"))
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"truncated", encoded[:len(encoded)/2]},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(Zlib, tc.data, 0); err == nil {
				t.Fatalf("Decode() accepted corrupt input")
			}
		})
	}
}

func TestParse(t *testing.T) {
	testCases := []struct {
		input string
		want  Codec
		valid bool
	}{
		{"", Auto, true},
		{"auto", Auto, true},
		{"ZLIB", Zlib, true},
		{" zstd ", Zstd, true},
		{"none", None, true},
		{"gzip", Auto, false},
	}
	for _, tc := range testCases {
		got, err := Parse(tc.input)
		if (err == nil) != tc.valid {
			t.Errorf("Parse(%q): got error %v, want valid=%v", tc.input, err, tc.valid)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q): got %v, want %v", tc.input, got, tc.want)
		}
	}
}
