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

package format

import (
	"reflect"
	"strings"
	"testing"

	"github.com/googlegenomics/trackdmp/internal/bbi"
	"github.com/googlegenomics/trackdmp/internal/feature"
)

func TestReadBed(t *testing.T) {
	input := "# comment\n" +
		"track name=genes\n" +
		"chr1\t100\t200\tgeneA\t0\t+\n" +
		"\n" +
		"chr1 500 600\n" +
		"chr2\t0\t5\tx y\r\n"
	got, err := ReadBed(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadBed() failed: %v", err)
	}
	want := []feature.AnnotationRecord{
		{Chrom: "chr1", Start: 100, End: 200, Fields: []string{"geneA", "0", "+"}},
		{Chrom: "chr1", Start: 500, End: 600},
		{Chrom: "chr2", Start: 0, End: 5, Fields: []string{"x y"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wrong records: got %v, want %v", got, want)
	}
}

func TestReadBedGraph(t *testing.T) {
	got, err := ReadBedGraph(strings.NewReader("chr1\t0\t10\t1.5\nchr1\t10\t20\t-2\n"))
	if err != nil {
		t.Fatalf("ReadBedGraph() failed: %v", err)
	}
	want := []feature.SignalRecord{
		{Chrom: "chr1", Start: 0, End: 10, Value: 1.5, Type: feature.BedGraph},
		{Chrom: "chr1", Start: 10, End: 20, Value: -2, Type: feature.BedGraph},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wrong records: got %v, want %v", got, want)
	}
}

func TestReadChromSizes(t *testing.T) {
	got, err := ReadChromSizes(strings.NewReader("chr1\t1000\nchr2\t300\n"))
	if err != nil {
		t.Fatalf("ReadChromSizes() failed: %v", err)
	}
	want := []bbi.ChromSize{{Name: "chr1", Size: 1000}, {Name: "chr2", Size: 300}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wrong sizes: got %v, want %v", got, want)
	}
}

func TestReadErrors(t *testing.T) {
	testCases := []struct {
		name  string
		read  func(string) error
		input string
	}{
		{"bed too few columns", readBed, "chr1\t100\n"},
		{"bed bad start", readBed, "chr1\tx\t200\n"},
		{"bed reversed", readBed, "chr1\t300\t200\n"},
		{"bedgraph missing value", readBedGraph, "chr1\t0\t10\n"},
		{"bedgraph bad value", readBedGraph, "chr1\t0\t10\tabc\n"},
		{"bedgraph empty interval", readBedGraph, "chr1\t10\t10\t1\n"},
		{"sizes bad size", readChromSizes, "chr1\t-4\n"},
		{"sizes duplicate", readChromSizes, "chr1\t10\nchr1\t20\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.read(tc.input); err == nil {
				t.Errorf("Parsing %q succeeded, want an error", tc.input)
			} else if !strings.HasPrefix(err.Error(), "line ") {
				t.Errorf("Error does not name the line: %v", err)
			}
		})
	}
}

func readBed(s string) error {
	_, err := ReadBed(strings.NewReader(s))
	return err
}

func readBedGraph(s string) error {
	_, err := ReadBedGraph(strings.NewReader(s))
	return err
}

func readChromSizes(s string) error {
	_, err := ReadChromSizes(strings.NewReader(s))
	return err
}
