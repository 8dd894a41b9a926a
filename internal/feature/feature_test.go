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
	"reflect"
	"testing"

	bin "github.com/googlegenomics/trackdmp/internal/binary"
)

type names []string

func (n names) ChromName(id uint32) (string, bool) {
	if int(id) >= len(n) {
		return "", false
	}
	return n[id], true
}

var chroms = names{"chr1", "chr2"}

func TestAnnotationRoundTrip(t *testing.T) {
	records := []AnnotationRecord{
		{Chrom: "chr1", Start: 0, End: 10},
		{Chrom: "chr1", Start: 100, End: 200, Fields: []string{"geneA", "0", "+"}},
		{Chrom: "chr2", Start: 500, End: 600, Fields: []string{"geneB"}},
	}
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			w := bin.NewWriter(order)
			for _, r := range records {
				id := uint32(0)
				if r.Chrom == "chr2" {
					id = 1
				}
				if err := AppendAnnotation(w, id, r); err != nil {
					t.Fatalf("AppendAnnotation(%v) failed: %v", r, err)
				}
			}

			var got []AnnotationRecord
			d := NewAnnotationDecoder(w.Bytes(), order, chroms)
			for d.Next() {
				got = append(got, d.Record().(AnnotationRecord))
			}
			if err := d.Err(); err != nil {
				t.Fatalf("Decoding failed: %v", err)
			}
			if !reflect.DeepEqual(got, records) {
				t.Errorf("Wrong records: got %+v, want %+v", got, records)
			}
		})
	}
}

func TestSignalRoundTrip(t *testing.T) {
	testCases := []struct {
		name    string
		records []SignalRecord
	}{
		{"bedGraph", []SignalRecord{
			{Chrom: "chr1", Start: 0, End: 50, Value: 1.5, Type: BedGraph},
			{Chrom: "chr1", Start: 50, End: 75, Value: -0.125, Type: BedGraph},
			{Chrom: "chr1", Start: 90, End: 91, Value: 3.4028235e38, Type: BedGraph},
		}},
		{"variableStep", []SignalRecord{
			{Chrom: "chr2", Start: 10, End: 15, Value: 0.1, Type: VariableStep, Span: 5},
			{Chrom: "chr2", Start: 40, End: 45, Value: 0.2, Type: VariableStep, Span: 5},
		}},
		{"fixedStep", []SignalRecord{
			{Chrom: "chr1", Start: 100, End: 110, Value: 7, Type: FixedStep, Step: 20, Span: 10},
			{Chrom: "chr1", Start: 120, End: 130, Value: 8, Type: FixedStep, Step: 20, Span: 10},
			{Chrom: "chr1", Start: 140, End: 150, Value: 9, Type: FixedStep, Step: 20, Span: 10},
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := bin.NewWriter(binary.LittleEndian)
			id := uint32(0)
			if tc.records[0].Chrom == "chr2" {
				id = 1
			}
			if err := AppendSection(w, id, tc.records); err != nil {
				t.Fatalf("AppendSection() failed: %v", err)
			}

			var got []SignalRecord
			d := NewSignalDecoder(w.Bytes(), binary.LittleEndian, chroms)
			for d.Next() {
				got = append(got, d.Signal())
			}
			if err := d.Err(); err != nil {
				t.Fatalf("Decoding failed: %v", err)
			}
			if !reflect.DeepEqual(got, tc.records) {
				t.Errorf("Wrong records: got %+v, want %+v", got, tc.records)
			}
		})
	}
}

func TestSignalMultipleSections(t *testing.T) {
	w := bin.NewWriter(binary.BigEndian)
	first := []SignalRecord{{Chrom: "chr1", Start: 0, End: 5, Value: 1, Type: BedGraph}}
	second := []SignalRecord{{Chrom: "chr1", Start: 5, End: 6, Value: 2, Type: VariableStep, Span: 1}}
	if err := AppendSection(w, 0, first); err != nil {
		t.Fatalf("AppendSection() failed: %v", err)
	}
	if err := AppendSection(w, 0, second); err != nil {
		t.Fatalf("AppendSection() failed: %v", err)
	}

	d, err := NewDecoder(Signal, w.Bytes(), binary.BigEndian, chroms)
	if err != nil {
		t.Fatalf("NewDecoder() failed: %v", err)
	}
	var count int
	for d.Next() {
		count++
	}
	if err := d.Err(); err != nil {
		t.Fatalf("Decoding failed: %v", err)
	}
	if got, want := count, 2; got != want {
		t.Errorf("Wrong number of records: got %d, want %d", got, want)
	}
}

func TestDecodeErrors(t *testing.T) {
	valid := bin.NewWriter(binary.LittleEndian)
	if err := AppendAnnotation(valid, 0, AnnotationRecord{Chrom: "chr1", Start: 1, End: 2, Fields: []string{"x"}}); err != nil {
		t.Fatalf("AppendAnnotation() failed: %v", err)
	}
	unknown := bin.NewWriter(binary.LittleEndian)
	if err := AppendAnnotation(unknown, 9, AnnotationRecord{Start: 1, End: 2}); err != nil {
		t.Fatalf("AppendAnnotation() failed: %v", err)
	}
	section := bin.NewWriter(binary.LittleEndian)
	if err := AppendSection(section, 0, []SignalRecord{{Chrom: "chr1", Start: 0, End: 1, Type: BedGraph}}); err != nil {
		t.Fatalf("AppendSection() failed: %v", err)
	}
	badType := append([]byte(nil), section.Bytes()...)
	badType[20] = 7

	testCases := []struct {
		name string
		kind Kind
		data []byte
	}{
		{"truncated annotation", Annotation, valid.Bytes()[:valid.Len()-1]},
		{"short annotation", Annotation, valid.Bytes()[:6]},
		{"unknown chromosome", Annotation, unknown.Bytes()},
		{"truncated section header", Signal, section.Bytes()[:10]},
		{"truncated section item", Signal, section.Bytes()[:section.Len()-2]},
		{"unknown section type", Signal, badType},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := NewDecoder(tc.kind, tc.data, binary.LittleEndian, chroms)
			if err != nil {
				t.Fatalf("NewDecoder() failed: %v", err)
			}
			for d.Next() {
			}
			var de *DecodeError
			if !errors.As(d.Err(), &de) {
				t.Fatalf("Wrong error: got %v, want DecodeError", d.Err())
			}
			if !IsDecodeError(d.Err()) {
				t.Errorf("IsDecodeError(%v) returned false", d.Err())
			}
		})
	}
}

func TestEmptyBlock(t *testing.T) {
	for _, kind := range []Kind{Annotation, Signal} {
		d, err := NewDecoder(kind, nil, binary.LittleEndian, chroms)
		if err != nil {
			t.Fatalf("NewDecoder(%v) failed: %v", kind, err)
		}
		if d.Next() {
			t.Errorf("%v decoder returned a record for an empty block", kind)
		}
		if err := d.Err(); err != nil {
			t.Errorf("%v decoder failed on an empty block: %v", kind, err)
		}
	}
}

func TestSections(t *testing.T) {
	records := []SignalRecord{
		{Chrom: "chr1", Start: 0, End: 1, Type: FixedStep, Step: 1, Span: 1},
		{Chrom: "chr1", Start: 1, End: 2, Type: FixedStep, Step: 1, Span: 1},
		{Chrom: "chr1", Start: 2, End: 3, Type: FixedStep, Step: 1, Span: 1},
		{Chrom: "chr1", Start: 10, End: 11, Type: FixedStep, Step: 1, Span: 1},
		{Chrom: "chr2", Start: 0, End: 4, Type: BedGraph},
		{Chrom: "chr2", Start: 4, End: 8},
	}
	testCases := []struct {
		limit int
		want  []int
	}{
		{0, []int{3, 1, 2}},
		{2, []int{2, 1, 1, 2}},
		{1, []int{1, 1, 1, 1, 1, 1}},
	}
	for _, tc := range testCases {
		var got []int
		for _, section := range Sections(records, tc.limit) {
			got = append(got, len(section))
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Sections(limit=%d): got sizes %v, want %v", tc.limit, got, tc.want)
		}
	}
}
