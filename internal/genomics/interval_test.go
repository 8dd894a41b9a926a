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

package genomics

import (
	"errors"
	"testing"
)

func TestNewInterval(t *testing.T) {
	testCases := []struct {
		name       string
		start, end int64
		valid      bool
		wantEnd    uint32
	}{
		{"simple", 100, 200, true, 200},
		{"from zero", 0, 1, true, 1},
		{"empty", 5, 5, false, 0},
		{"reversed", 10, 5, false, 0},
		{"negative start", -1, 5, false, 0},
		{"clamped end", 10, 1 << 40, true, MaximumPosition},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewInterval("chr1", tc.start, tc.end)
			if !tc.valid {
				if !errors.Is(err, ErrInvalidRange) {
					t.Fatalf("NewInterval(%d, %d): got error %v, want ErrInvalidRange", tc.start, tc.end, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewInterval(%d, %d) returned unexpected error: %v", tc.start, tc.end, err)
			}
			if got.End != tc.wantEnd {
				t.Errorf("Wrong end: got %d, want %d", got.End, tc.wantEnd)
			}
		})
	}
}

func TestOverlaps(t *testing.T) {
	query := Interval{"chr1", 150, 550}
	testCases := []struct {
		start, end uint32
		want       bool
	}{
		{100, 200, true},
		{500, 600, true},
		{0, 150, false},
		{550, 600, false},
		{149, 151, true},
		{200, 300, true},
	}
	for _, tc := range testCases {
		if got := query.Overlaps(tc.start, tc.end); got != tc.want {
			t.Errorf("%s.Overlaps(%d, %d): got %v, want %v", query, tc.start, tc.end, got, tc.want)
		}
	}
}

func TestParseInterval(t *testing.T) {
	testCases := []struct {
		input string
		want  Interval
		valid bool
	}{
		{"chr1:100-200", Interval{"chr1", 100, 200}, true},
		{"chr1:1,000-2,000", Interval{"chr1", 1000, 2000}, true},
		{"HLA-A*01:01:0-10", Interval{"HLA-A*01:01", 0, 10}, true},
		{"chr1", Interval{}, false},
		{"chr1:100", Interval{}, false},
		{"chr1:x-200", Interval{}, false},
		{"chr1:200-100", Interval{}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseInterval(tc.input)
			if (err == nil) != tc.valid {
				t.Fatalf("ParseInterval(%q): got error %v, want valid=%v", tc.input, err, tc.valid)
			}
			if tc.valid && got != tc.want {
				t.Errorf("Wrong interval: got %v, want %v", got, tc.want)
			}
		})
	}
}
