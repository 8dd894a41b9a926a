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

package feature

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	bin "github.com/googlegenomics/trackdmp/internal/binary"
)

// Decoder yields the records of a single decompressed block.  It is consumed
// once:
//
//	for d.Next() {
//		record := d.Record()
//	}
//	if err := d.Err(); err != nil {
//		...
//	}
type Decoder interface {
	Next() bool
	Record() Record
	Err() error
}

// NewDecoder returns a Decoder for blocks holding records of the given kind.
func NewDecoder(kind Kind, data []byte, order binary.ByteOrder, names ChromNames) (Decoder, error) {
	switch kind {
	case Annotation:
		return NewAnnotationDecoder(data, order, names), nil
	case Signal:
		return NewSignalDecoder(data, order, names), nil
	}
	return nil, fmt.Errorf("no decoder for %v", kind)
}

// AnnotationDecoder decodes bigBed data blocks.  Each record is stored as
// chromosome id, start and end followed by the remaining tab separated
// columns as a NUL terminated string.
type AnnotationDecoder struct {
	buf    *bin.Buffer
	names  ChromNames
	record AnnotationRecord
	err    error
}

// NewAnnotationDecoder returns a decoder reading records from data.
func NewAnnotationDecoder(data []byte, order binary.ByteOrder, names ChromNames) *AnnotationDecoder {
	return &AnnotationDecoder{buf: bin.NewBuffer(data, order), names: names}
}

// Next decodes the following record.  It returns false when the block is
// exhausted or a record could not be decoded.
func (d *AnnotationDecoder) Next() bool {
	if d.err != nil || d.buf.Len() == 0 {
		return false
	}

	pos := d.buf.Pos()
	id, start, end := d.buf.Uint32(), d.buf.Uint32(), d.buf.Uint32()
	rest := d.buf.CString()
	if err := d.buf.Err(); err != nil {
		d.err = &DecodeError{Pos: pos, Reason: fmt.Sprintf("truncated record: %v", err)}
		return false
	}
	chrom, ok := d.names.ChromName(id)
	if !ok {
		d.err = &DecodeError{Pos: pos, Reason: fmt.Sprintf("unknown chromosome id %d", id)}
		return false
	}
	if start > end {
		d.err = &DecodeError{Pos: pos, Reason: fmt.Sprintf("start %d is after end %d", start, end)}
		return false
	}

	d.record = AnnotationRecord{Chrom: chrom, Start: start, End: end}
	if rest != "" {
		d.record.Fields = strings.Split(rest, "\t")
	}
	return true
}

// Record returns the most recently decoded record.
func (d *AnnotationDecoder) Record() Record {
	return d.record
}

// Annotation returns the most recently decoded record without boxing it.
func (d *AnnotationDecoder) Annotation() AnnotationRecord {
	return d.record
}

// Err returns the error that stopped decoding, if any.
func (d *AnnotationDecoder) Err() error {
	return d.err
}

// sectionHeaderSize is the encoded size of a signal section header.
const sectionHeaderSize = 24

type sectionHeader struct {
	chromID    uint32
	start, end uint32
	step, span uint32
	kind       SectionType
	count      uint16
}

// SignalDecoder decodes bigWig data blocks.  A block holds one or more
// sections, each a fixed size header followed by items in the layout named
// by the header.
type SignalDecoder struct {
	buf    *bin.Buffer
	names  ChromNames
	header sectionHeader
	chrom  string
	index  uint16
	open   bool
	record SignalRecord
	err    error
}

// NewSignalDecoder returns a decoder reading records from data.
func NewSignalDecoder(data []byte, order binary.ByteOrder, names ChromNames) *SignalDecoder {
	return &SignalDecoder{buf: bin.NewBuffer(data, order), names: names}
}

func (d *SignalDecoder) fail(pos int, format string, args ...interface{}) bool {
	d.err = &DecodeError{Pos: pos, Reason: fmt.Sprintf(format, args...)}
	return false
}

func (d *SignalDecoder) readHeader() bool {
	pos := d.buf.Pos()
	h := sectionHeader{
		chromID: d.buf.Uint32(),
		start:   d.buf.Uint32(),
		end:     d.buf.Uint32(),
		step:    d.buf.Uint32(),
		span:    d.buf.Uint32(),
		kind:    SectionType(d.buf.Uint8()),
	}
	d.buf.Skip(1)
	h.count = d.buf.Uint16()
	if err := d.buf.Err(); err != nil {
		return d.fail(pos, "truncated section header: %v", err)
	}

	var ok bool
	if d.chrom, ok = d.names.ChromName(h.chromID); !ok {
		return d.fail(pos, "unknown chromosome id %d", h.chromID)
	}
	switch h.kind {
	case BedGraph, VariableStep, FixedStep:
	default:
		return d.fail(pos, "unknown section type %d", h.kind)
	}
	d.header, d.index, d.open = h, 0, true
	return true
}

// Next decodes the following record.  It returns false when the block is
// exhausted or a record could not be decoded.
func (d *SignalDecoder) Next() bool {
	for d.err == nil {
		if d.open && d.index < d.header.count {
			break
		}
		d.open = false
		if d.buf.Len() == 0 {
			return false
		}
		if !d.readHeader() {
			return false
		}
	}
	if d.err != nil {
		return false
	}

	h, pos := d.header, d.buf.Pos()
	record := SignalRecord{Chrom: d.chrom, Type: h.kind, Step: h.step, Span: h.span}
	switch h.kind {
	case BedGraph:
		record.Start, record.End, record.Value = d.buf.Uint32(), d.buf.Uint32(), d.buf.Float32()
	case VariableStep:
		record.Start, record.Value = d.buf.Uint32(), d.buf.Float32()
		record.End = record.Start + h.span
	case FixedStep:
		record.Start = h.start + uint32(d.index)*h.step
		record.End = record.Start + h.span
		record.Value = d.buf.Float32()
	}
	if err := d.buf.Err(); err != nil {
		return d.fail(pos, "truncated %v item %d of %d: %v", h.kind, d.index, h.count, err)
	}
	if record.Start > record.End {
		return d.fail(pos, "start %d is after end %d", record.Start, record.End)
	}
	d.index++
	d.record = record
	return true
}

// Record returns the most recently decoded record.
func (d *SignalDecoder) Record() Record {
	return d.record
}

// Signal returns the most recently decoded record without boxing it.
func (d *SignalDecoder) Signal() SignalRecord {
	return d.record
}

// Err returns the error that stopped decoding, if any.
func (d *SignalDecoder) Err() error {
	return d.err
}

// IsDecodeError reports whether err was caused by a malformed record.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
