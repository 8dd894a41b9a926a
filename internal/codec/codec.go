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

// Package codec provides the block compression codecs used by indexed track
// files.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Codec identifies a block compression scheme.
type Codec int

const (
	// Auto detects zstd frames by their magic number and otherwise assumes
	// zlib, which is what standard tools write.
	Auto Codec = iota
	// None leaves blocks untouched.
	None
	// Zlib is the deflate-based codec declared by the track file header.
	Zlib
	// Zstd is accepted for files produced by in-house writers.
	Zstd
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// minimumZstdMemory is the smallest decoder memory bound used for limited
// decodes, leaving room for the window of frames written by zstd tools.
const minimumZstdMemory = 8 << 20

// ErrTooLarge is returned when a block decompresses to more bytes than the
// caller allows.
var ErrTooLarge = errors.New("decompressed block exceeds size limit")

var names = map[Codec]string{
	Auto: "auto",
	None: "none",
	Zlib: "zlib",
	Zstd: "zstd",
}

func (c Codec) String() string {
	if name, ok := names[c]; ok {
		return name
	}
	return fmt.Sprintf("codec(%d)", int(c))
}

// Parse returns the Codec with the given name.  The empty string selects
// Auto.
func Parse(name string) (Codec, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Auto, nil
	}
	for c, n := range names {
		if n == name {
			return c, nil
		}
	}
	return Auto, fmt.Errorf("unknown codec %q", name)
}

var (
	zstdDecoder    *zstd.Decoder
	zstdEncoder    *zstd.Encoder
	zstdErr        error
	initializeZstd sync.Once
)

func zstdCoders() (*zstd.Decoder, *zstd.Encoder, error) {
	initializeZstd.Do(func() {
		if zstdDecoder, zstdErr = zstd.NewReader(nil); zstdErr != nil {
			return
		}
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
	})
	return zstdDecoder, zstdEncoder, zstdErr
}

// Decode decompresses a single block.  If limit is positive, blocks that
// expand past limit bytes are rejected with ErrTooLarge.
func Decode(c Codec, data []byte, limit int) ([]byte, error) {
	if c == Auto {
		if bytes.HasPrefix(data, zstdMagic) {
			c = Zstd
		} else {
			c = Zlib
		}
	}

	var decoded []byte
	switch c {
	case None:
		decoded = data
	case Zlib:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("initializing zlib reader: %w", err)
		}
		defer zr.Close()

		r := io.Reader(zr)
		if limit > 0 {
			r = io.LimitReader(zr, int64(limit)+1)
		}
		var buffer bytes.Buffer
		if _, err := io.Copy(&buffer, r); err != nil {
			return nil, fmt.Errorf("decompressing data: %w", err)
		}
		decoded = buffer.Bytes()
	case Zstd:
		if limit > 0 {
			memory := uint64(limit) + 1
			if memory < minimumZstdMemory {
				memory = minimumZstdMemory
			}
			zr, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(memory))
			if err != nil {
				return nil, fmt.Errorf("initializing zstd reader: %w", err)
			}
			defer zr.Close()

			var buffer bytes.Buffer
			if _, err := io.Copy(&buffer, io.LimitReader(zr, int64(limit)+1)); err != nil {
				if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
					return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
				}
				return nil, fmt.Errorf("decompressing data: %w", err)
			}
			decoded = buffer.Bytes()
			break
		}
		decoder, _, err := zstdCoders()
		if err != nil {
			return nil, fmt.Errorf("initializing zstd decoder: %w", err)
		}
		if decoded, err = decoder.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("decompressing data: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported codec %v", c)
	}

	if limit > 0 && len(decoded) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	return decoded, nil
}

// Encode compresses data as a single block.  Auto encodes with zlib.
func Encode(c Codec, data []byte) ([]byte, error) {
	switch c {
	case None:
		return data, nil
	case Auto, Zlib:
		var buffer bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buffer, zlib.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("initializing zlib writer: %w", err)
		}
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("writing compressed data: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("closing writer: %w", err)
		}
		return buffer.Bytes(), nil
	case Zstd:
		_, encoder, err := zstdCoders()
		if err != nil {
			return nil, fmt.Errorf("initializing zstd encoder: %w", err)
		}
		return encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
	}
	return nil, fmt.Errorf("unsupported codec %v", c)
}
