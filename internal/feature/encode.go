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
	"errors"
	"fmt"
	"math"
	"strings"

	bin "github.com/googlegenomics/trackdmp/internal/binary"
)

// AppendAnnotation encodes a as a bigBed record on chromosome chromID.
func AppendAnnotation(w *bin.Writer, chromID uint32, a AnnotationRecord) error {
	if a.Start > a.End {
		return fmt.Errorf("record %s:%d-%d: start after end", a.Chrom, a.Start, a.End)
	}
	rest := strings.Join(a.Fields, "\t")
	if strings.IndexByte(rest, 0) >= 0 {
		return fmt.Errorf("record %s:%d-%d: field contains NUL", a.Chrom, a.Start, a.End)
	}
	w.Uint32(chromID)
	w.Uint32(a.Start)
	w.Uint32(a.End)
	w.CString(rest)
	return nil
}

func sectionType(s SignalRecord) SectionType {
	if s.Type == 0 {
		return BedGraph
	}
	return s.Type
}

// Continues reports whether next can be stored in the same section as prev.
func Continues(prev, next SignalRecord) bool {
	kind := sectionType(prev)
	if prev.Chrom != next.Chrom || kind != sectionType(next) {
		return false
	}
	switch kind {
	case VariableStep:
		return prev.Span == next.Span && next.Start >= prev.Start
	case FixedStep:
		return prev.Span == next.Span && prev.Step == next.Step && next.Start == prev.Start+prev.Step
	}
	return next.Start >= prev.Start
}

// Sections splits records into runs that can each be encoded with
// AppendSection, holding at most limit records apiece.
func Sections(records []SignalRecord, limit int) [][]SignalRecord {
	if limit <= 0 || limit > math.MaxUint16 {
		limit = math.MaxUint16
	}
	var sections [][]SignalRecord
	first := 0
	for i := 1; i <= len(records); i++ {
		if i == len(records) || i-first == limit || !Continues(records[i-1], records[i]) {
			sections = append(sections, records[first:i])
			first = i
		}
	}
	return sections
}

// AppendSection encodes records as one bigWig section on chromosome chromID.
// All records must satisfy Continues pairwise in order.
func AppendSection(w *bin.Writer, chromID uint32, records []SignalRecord) error {
	if len(records) == 0 {
		return errors.New("empty section")
	}
	if len(records) > math.MaxUint16 {
		return fmt.Errorf("section holds %d records, limit is %d", len(records), math.MaxUint16)
	}
	first := records[0]
	kind := sectionType(first)
	end := first.End
	for i, r := range records {
		if i > 0 && !Continues(records[i-1], r) {
			return fmt.Errorf("record %d (%s:%d-%d) does not continue %v section", i, r.Chrom, r.Start, r.End, kind)
		}
		if r.Start > r.End {
			return fmt.Errorf("record %s:%d-%d: start after end", r.Chrom, r.Start, r.End)
		}
		if kind != BedGraph && r.End-r.Start != first.Span {
			return fmt.Errorf("record %s:%d-%d does not match span %d", r.Chrom, r.Start, r.End, first.Span)
		}
		if r.End > end {
			end = r.End
		}
	}

	var step, span uint32
	if kind != BedGraph {
		step, span = first.Step, first.Span
	}
	w.Uint32(chromID)
	w.Uint32(first.Start)
	w.Uint32(end)
	w.Uint32(step)
	w.Uint32(span)
	w.Uint8(uint8(kind))
	w.Uint8(0)
	w.Uint16(uint16(len(records)))
	for _, r := range records {
		switch kind {
		case BedGraph:
			w.Uint32(r.Start)
			w.Uint32(r.End)
		case VariableStep:
			w.Uint32(r.Start)
		}
		w.Float32(r.Value)
	}
	return nil
}
