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

// Package format renders decoded track records as text.
package format

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/googlegenomics/trackdmp/internal/feature"
)

// Writer renders a sequence of records.  Records must be written in the
// order they were decoded and Flush must be called once all of them have
// been written.
type Writer interface {
	Write(feature.Record) error
	Flush() error
}

// New returns the Writer matching records of the given kind.
func New(kind feature.Kind, w io.Writer) (Writer, error) {
	switch kind {
	case feature.Annotation:
		return NewBedWriter(w), nil
	case feature.Signal:
		return NewWigWriter(w), nil
	}
	return nil, fmt.Errorf("no formatter for %v", kind)
}

// BedWriter writes one tab separated line per annotation.
type BedWriter struct {
	w *bufio.Writer
}

// NewBedWriter returns a BedWriter that writes to w.
func NewBedWriter(w io.Writer) *BedWriter {
	return &BedWriter{w: bufio.NewWriter(w)}
}

func (b *BedWriter) Write(record feature.Record) error {
	a, ok := record.(feature.AnnotationRecord)
	if !ok {
		return fmt.Errorf("bed output requires annotation records, got %T", record)
	}
	b.w.WriteString(a.Chrom)
	b.w.WriteByte('\t')
	b.w.WriteString(strconv.FormatUint(uint64(a.Start), 10))
	b.w.WriteByte('\t')
	b.w.WriteString(strconv.FormatUint(uint64(a.End), 10))
	for _, field := range a.Fields {
		b.w.WriteByte('\t')
		b.w.WriteString(field)
	}
	return b.w.WriteByte('\n')
}

// Flush writes any buffered output.
func (b *BedWriter) Flush() error {
	return b.w.Flush()
}

// WigWriter writes signal records using the convention of the section they
// came from.  Positions in variableStep and fixedStep lines are one-based as
// required by the wiggle format; bedGraph lines stay zero-based.
type WigWriter struct {
	w    *bufio.Writer
	last *feature.SignalRecord
}

// NewWigWriter returns a WigWriter that writes to w.
func NewWigWriter(w io.Writer) *WigWriter {
	return &WigWriter{w: bufio.NewWriter(w)}
}

func formatValue(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// continues reports whether s can be written under the current declaration
// line.
func (g *WigWriter) continues(s feature.SignalRecord) bool {
	last := g.last
	if last == nil || last.Chrom != s.Chrom || last.Type != s.Type {
		return false
	}
	switch s.Type {
	case feature.VariableStep:
		return last.Span == s.Span
	case feature.FixedStep:
		return last.Span == s.Span && last.Step == s.Step && s.Start == last.Start+last.Step
	}
	return true
}

func (g *WigWriter) Write(record feature.Record) error {
	s, ok := record.(feature.SignalRecord)
	if !ok {
		return fmt.Errorf("wig output requires signal records, got %T", record)
	}
	if s.Type == 0 {
		s.Type = feature.BedGraph
	}

	if !g.continues(s) {
		switch s.Type {
		case feature.VariableStep:
			fmt.Fprintf(g.w, "variableStep chrom=%s span=%d\n", s.Chrom, s.Span)
		case feature.FixedStep:
			fmt.Fprintf(g.w, "fixedStep chrom=%s start=%d step=%d span=%d\n", s.Chrom, uint64(s.Start)+1, s.Step, s.Span)
		}
	}
	g.last = &s

	switch s.Type {
	case feature.BedGraph:
		fmt.Fprintf(g.w, "%s\t%d\t%d\t%s\n", s.Chrom, s.Start, s.End, formatValue(s.Value))
	case feature.VariableStep:
		fmt.Fprintf(g.w, "%d\t%s\n", uint64(s.Start)+1, formatValue(s.Value))
	case feature.FixedStep:
		g.w.WriteString(formatValue(s.Value))
		g.w.WriteByte('\n')
	default:
		return fmt.Errorf("unsupported section type %v", s.Type)
	}
	return nil
}

// Flush writes any buffered output.
func (g *WigWriter) Flush() error {
	return g.w.Flush()
}
