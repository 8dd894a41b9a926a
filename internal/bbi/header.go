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

// Package bbi reads and writes the indexed, block compressed track files
// known as bigBed and bigWig.
package bbi

import (
	"encoding/binary"
	"fmt"
	"math"

	bin "github.com/googlegenomics/trackdmp/internal/binary"
	"github.com/googlegenomics/trackdmp/internal/feature"
)

const (
	bigWigMagic    = 0x888FFC26
	bigBedMagic    = 0x8789F2EB
	chromTreeMagic = 0x78CA8C91
	rTreeMagic     = 0x2468ACE0

	headerSize        = 64
	zoomHeaderSize    = 24
	summarySize       = 40
	chromTreeHeader   = 32
	rTreeHeader       = 48
	nodeHeaderSize    = 4
	rTreeLeafItem     = 32
	rTreeInternalItem = 24

	// version is the format version written by this package.
	version = 4
)

// Kind identifies the flavour of an indexed track file.
type Kind int

const (
	// BigWig files hold signal sections.
	BigWig Kind = iota + 1
	// BigBed files hold annotation records.
	BigBed
)

func (k Kind) String() string {
	switch k {
	case BigWig:
		return "bigwig"
	case BigBed:
		return "bigbed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Records returns the kind of feature stored in files of this kind.
func (k Kind) Records() feature.Kind {
	if k == BigWig {
		return feature.Signal
	}
	return feature.Annotation
}

func (k Kind) magic() uint32 {
	if k == BigWig {
		return bigWigMagic
	}
	return bigBedMagic
}

// Header is the fixed size header at the start of every file.
type Header struct {
	Kind               Kind
	Version            uint16
	ZoomLevels         uint16
	ChromTreeOffset    uint64
	DataOffset         uint64
	IndexOffset        uint64
	FieldCount         uint16
	DefinedFieldCount  uint16
	AutoSQLOffset      uint64
	TotalSummaryOffset uint64
	// UncompressBufSize is the largest decompressed block size.  Zero means
	// that blocks are stored uncompressed.
	UncompressBufSize uint32
	ExtensionOffset   uint64
}

func detectKind(data []byte) (Kind, binary.ByteOrder, error) {
	for _, kind := range []Kind{BigWig, BigBed} {
		if order, err := bin.DetectOrder(data, kind.magic()); err == nil {
			return kind, order, nil
		}
	}
	if len(data) < 4 {
		return 0, nil, fmt.Errorf("file too short (%d bytes)", len(data))
	}
	return 0, nil, fmt.Errorf("unrecognized magic %x", data[:4])
}

func parseHeader(data []byte) (Header, binary.ByteOrder, error) {
	kind, order, err := detectKind(data)
	if err != nil {
		return Header{}, nil, err
	}
	b := bin.NewBuffer(data, order)
	b.Skip(4)
	h := Header{
		Kind:               kind,
		Version:            b.Uint16(),
		ZoomLevels:         b.Uint16(),
		ChromTreeOffset:    b.Uint64(),
		DataOffset:         b.Uint64(),
		IndexOffset:        b.Uint64(),
		FieldCount:         b.Uint16(),
		DefinedFieldCount:  b.Uint16(),
		AutoSQLOffset:      b.Uint64(),
		TotalSummaryOffset: b.Uint64(),
		UncompressBufSize:  b.Uint32(),
		ExtensionOffset:    b.Uint64(),
	}
	if err := b.Err(); err != nil {
		return Header{}, nil, fmt.Errorf("reading header: %w", err)
	}
	if h.ChromTreeOffset < headerSize || h.DataOffset <= h.ChromTreeOffset || h.IndexOffset <= h.DataOffset {
		return Header{}, nil, fmt.Errorf("inconsistent section offsets (chromosomes %d, data %d, index %d)", h.ChromTreeOffset, h.DataOffset, h.IndexOffset)
	}
	if h.IndexOffset > math.MaxInt64 {
		return Header{}, nil, fmt.Errorf("index offset %d is out of range", h.IndexOffset)
	}
	return h, order, nil
}

func (h *Header) encode(w *bin.Writer) {
	w.Uint32(h.Kind.magic())
	w.Uint16(h.Version)
	w.Uint16(h.ZoomLevels)
	w.Uint64(h.ChromTreeOffset)
	w.Uint64(h.DataOffset)
	w.Uint64(h.IndexOffset)
	w.Uint16(h.FieldCount)
	w.Uint16(h.DefinedFieldCount)
	w.Uint64(h.AutoSQLOffset)
	w.Uint64(h.TotalSummaryOffset)
	w.Uint32(h.UncompressBufSize)
	w.Uint64(h.ExtensionOffset)
}

// ZoomHeader locates one precomputed reduction level.
type ZoomHeader struct {
	ReductionLevel uint32
	DataOffset     uint64
	IndexOffset    uint64
}

func parseZoomHeaders(data []byte, order binary.ByteOrder, count int) ([]ZoomHeader, error) {
	b := bin.NewBuffer(data, order)
	zooms := make([]ZoomHeader, count)
	for i := range zooms {
		zooms[i].ReductionLevel = b.Uint32()
		b.Skip(4)
		zooms[i].DataOffset = b.Uint64()
		zooms[i].IndexOffset = b.Uint64()
	}
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("reading zoom headers: %w", err)
	}
	return zooms, nil
}

// Summary holds statistics over every base covered by the file.
type Summary struct {
	BasesCovered uint64
	Min, Max     float64
	Sum          float64
	SumSquares   float64
}

func parseSummary(data []byte, order binary.ByteOrder) (*Summary, error) {
	b := bin.NewBuffer(data, order)
	s := &Summary{
		BasesCovered: b.Uint64(),
		Min:          b.Float64(),
		Max:          b.Float64(),
		Sum:          b.Float64(),
		SumSquares:   b.Float64(),
	}
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("reading total summary: %w", err)
	}
	return s, nil
}

func (s *Summary) encode(w *bin.Writer) {
	w.Uint64(s.BasesCovered)
	w.Float64(s.Min)
	w.Float64(s.Max)
	w.Float64(s.Sum)
	w.Float64(s.SumSquares)
}
