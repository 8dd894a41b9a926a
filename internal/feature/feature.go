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

// Package feature defines the records stored in indexed track files and
// converts them to and from the binary layout of decompressed data blocks.
package feature

import (
	"fmt"

	"github.com/googlegenomics/trackdmp/internal/genomics"
)

// Kind identifies the shape of the records held by a track.
type Kind int

const (
	// Annotation records carry an interval and descriptive fields.
	Annotation Kind = iota
	// Signal records carry an interval and a numeric value.
	Signal
)

func (k Kind) String() string {
	switch k {
	case Annotation:
		return "annotation"
	case Signal:
		return "signal"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Record is a single decoded feature.
type Record interface {
	Interval() genomics.Interval
}

// AnnotationRecord is a bed-like feature.  Fields holds every column after
// the end coordinate, in order.
type AnnotationRecord struct {
	Chrom      string
	Start, End uint32
	Fields     []string
}

// Interval returns the half-open range covered by the record.
func (a AnnotationRecord) Interval() genomics.Interval {
	return genomics.Interval{Chrom: a.Chrom, Start: a.Start, End: a.End}
}

// SectionType is the layout of the items in a signal section.
type SectionType uint8

const (
	// BedGraph items store start, end and value.
	BedGraph SectionType = 1
	// VariableStep items store start and value and share a span.
	VariableStep SectionType = 2
	// FixedStep items store only a value; positions follow from the section
	// start and step.
	FixedStep SectionType = 3
)

func (t SectionType) String() string {
	switch t {
	case BedGraph:
		return "bedGraph"
	case VariableStep:
		return "variableStep"
	case FixedStep:
		return "fixedStep"
	}
	return fmt.Sprintf("section(%d)", uint8(t))
}

// SignalRecord is a wig-like feature.  Type, Step and Span describe the
// section it was decoded from so that it can be written back in the same
// convention.
type SignalRecord struct {
	Chrom      string
	Start, End uint32
	Value      float32
	Type       SectionType
	Step, Span uint32
}

// Interval returns the half-open range covered by the record.
func (s SignalRecord) Interval() genomics.Interval {
	return genomics.Interval{Chrom: s.Chrom, Start: s.Start, End: s.End}
}

// ChromNames resolves the chromosome identifiers stored in data blocks.
type ChromNames interface {
	ChromName(id uint32) (string, bool)
}

// DecodeError reports a malformed record inside a decompressed block.
type DecodeError struct {
	// Pos is the offset within the decompressed block.
	Pos    int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed record at offset %d: %s", e.Pos, e.Reason)
}
