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


package bbi

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/googlegenomics/trackdmp/internal/feature"
	"github.com/googlegenomics/trackdmp/internal/genomics"
)

// The files in testdata follow the layout written by bedToBigBed and
// wigToBigWig: name-ordered chromosome ids, padded tree nodes, one zoom
// level, a trailing magic and, for bigBed, autoSql and an extension header.
// genes.bed, signal.wig and chrom.sizes hold their contents.

func openTestdata(t *testing.T, name string) *File {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("Reading %s: %v", name, err)
	}
	f, _ := openBytes(t, data, nil)
	return f
}

func TestStandardBigBed(t *testing.T) {
	f := openTestdata(t, "genes.bb")

	h := f.Header()
	if h.Kind != BigBed || h.Version != 4 {
		t.Errorf("Wrong header: got %v version %d, want bigbed version 4", h.Kind, h.Version)
	}
	if h.FieldCount != 6 || h.DefinedFieldCount != 6 {
		t.Errorf("Wrong field counts: got %d/%d, want 6/6", h.FieldCount, h.DefinedFieldCount)
	}
	if h.ExtensionOffset == 0 {
		t.Errorf("Missing extension offset")
	}
	if f.ByteOrder() != binary.LittleEndian {
		t.Errorf("Wrong byte order: got %v, want little endian", f.ByteOrder())
	}
	if got := f.AutoSQL(); !strings.HasPrefix(got, "table bed\n") || !strings.Contains(got, "char[1] strand;") {
		t.Errorf("Wrong autoSql: got %q", got)
	}

	wantChroms := []Chrom{{"chr1", 0, 5000}, {"chr10", 1, 300}, {"chr2", 2, 1000}}
	if got := f.Chromosomes(); !reflect.DeepEqual(got, wantChroms) {
		t.Errorf("Wrong chromosomes: got %+v, want %+v", got, wantChroms)
	}
	if got, want := f.DataCount(), uint64(5); got != want {
		t.Errorf("Wrong item count: got %d, want %d", got, want)
	}
	if got, want := f.BlockCount(), uint64(4); got != want {
		t.Errorf("Wrong block count: got %d, want %d", got, want)
	}

	zooms := f.ZoomLevels()
	if len(zooms) != 1 || zooms[0].ReductionLevel != 1000 {
		t.Fatalf("Wrong zoom levels: got %+v, want one level reducing by 1000", zooms)
	}
	if zooms[0].DataOffset <= h.IndexOffset || zooms[0].IndexOffset <= zooms[0].DataOffset {
		t.Errorf("Wrong zoom offsets: got %+v after index at %d", zooms[0], h.IndexOffset)
	}

	s := f.Summary()
	if s == nil {
		t.Fatalf("Missing total summary")
	}
	if want := (Summary{BasesCovered: 760, Min: 1, Max: 1, Sum: 760, SumSquares: 760}); *s != want {
		t.Errorf("Wrong summary: got %+v, want %+v", *s, want)
	}

	testCases := []struct {
		interval genomics.Interval
		want     []feature.Record
	}{
		{genomics.Interval{Chrom: "chr1", Start: 0, End: 5000}, []feature.Record{
			feature.AnnotationRecord{Chrom: "chr1", Start: 100, End: 200, Fields: []string{"geneA", "0", "+"}},
			feature.AnnotationRecord{Chrom: "chr1", Start: 500, End: 600, Fields: []string{"geneB", "960", "-"}},
			feature.AnnotationRecord{Chrom: "chr1", Start: 1000, End: 1500, Fields: []string{"geneC", "0", "+"}},
		}},
		{genomics.Interval{Chrom: "chr1", Start: 550, End: 1001}, []feature.Record{
			feature.AnnotationRecord{Chrom: "chr1", Start: 500, End: 600, Fields: []string{"geneB", "960", "-"}},
			feature.AnnotationRecord{Chrom: "chr1", Start: 1000, End: 1500, Fields: []string{"geneC", "0", "+"}},
		}},
		{genomics.Interval{Chrom: "chr10", Start: 0, End: 300}, []feature.Record{
			feature.AnnotationRecord{Chrom: "chr10", Start: 10, End: 20, Fields: []string{"tiny", "1000", "."}},
		}},
		{genomics.Interval{Chrom: "chr2", Start: 0, End: 1000}, []feature.Record{
			feature.AnnotationRecord{Chrom: "chr2", Start: 0, End: 50, Fields: []string{"first", "5", "+"}},
		}},
		{genomics.Interval{Chrom: "chr2", Start: 50, End: 1000}, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.interval.String(), func(t *testing.T) {
			if got := query(t, f, tc.interval); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Wrong records: got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestStandardBigWig(t *testing.T) {
	f := openTestdata(t, "signal.bw")

	h := f.Header()
	if h.Kind != BigWig || h.Version != 4 || h.FieldCount != 0 || h.AutoSQLOffset != 0 {
		t.Errorf("Wrong header: got %+v", h)
	}
	if f.AutoSQL() != "" {
		t.Errorf("Unexpected autoSql %q", f.AutoSQL())
	}
	wantChroms := []Chrom{{"chr1", 0, 5000}, {"chr10", 1, 300}, {"chr2", 2, 1000}}
	if got := f.Chromosomes(); !reflect.DeepEqual(got, wantChroms) {
		t.Errorf("Wrong chromosomes: got %+v, want %+v", got, wantChroms)
	}
	if got, want := f.DataCount(), uint64(4); got != want {
		t.Errorf("Wrong section count: got %d, want %d", got, want)
	}

	zooms := f.ZoomLevels()
	if len(zooms) != 1 || zooms[0].ReductionLevel != 500 {
		t.Errorf("Wrong zoom levels: got %+v, want one level reducing by 500", zooms)
	}

	s := f.Summary()
	if s == nil {
		t.Fatalf("Missing total summary")
	}
	if want := (Summary{BasesCovered: 222, Min: -2, Max: 8, Sum: 235, SumSquares: 619.25}); *s != want {
		t.Errorf("Wrong summary: got %+v, want %+v", *s, want)
	}

	fixed := func(start uint32, value float32) feature.Record {
		return feature.SignalRecord{Chrom: "chr1", Start: start, End: start + 20, Value: value, Type: feature.FixedStep, Step: 100, Span: 20}
	}
	testCases := []struct {
		interval genomics.Interval
		want     []feature.Record
	}{
		{genomics.Interval{Chrom: "chr1", Start: 1150, End: 2001}, []feature.Record{
			fixed(1200, 1.5), fixed(1300, 2.0), fixed(1400, 2.5),
			feature.SignalRecord{Chrom: "chr1", Start: 2000, End: 2005, Value: 3, Type: feature.VariableStep, Span: 5},
		}},
		{genomics.Interval{Chrom: "chr1", Start: 2005, End: 5000}, []feature.Record{
			feature.SignalRecord{Chrom: "chr1", Start: 2050, End: 2055, Value: -2, Type: feature.VariableStep, Span: 5},
		}},
		{genomics.Interval{Chrom: "chr10", Start: 1, End: 300}, []feature.Record{
			feature.SignalRecord{Chrom: "chr10", Start: 1, End: 2, Value: 8, Type: feature.FixedStep, Step: 1, Span: 1},
		}},
		{genomics.Interval{Chrom: "chr2", Start: 99, End: 151}, []feature.Record{
			feature.SignalRecord{Chrom: "chr2", Start: 0, End: 100, Value: 0.25, Type: feature.BedGraph},
			feature.SignalRecord{Chrom: "chr2", Start: 150, End: 160, Value: 4, Type: feature.BedGraph},
		}},
		{genomics.Interval{Chrom: "chr2", Start: 100, End: 150}, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.interval.String(), func(t *testing.T) {
			if got := query(t, f, tc.interval); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Wrong records: got %+v, want %+v", got, tc.want)
			}
		})
	}
}
