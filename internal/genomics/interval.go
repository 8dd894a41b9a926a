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

// Package genomics contains definitions related to genomic data.
package genomics

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidRange is returned when an interval has negative coordinates or
// when its start is not strictly before its end.
var ErrInvalidRange = errors.New("invalid range")

// MaximumPosition is the largest coordinate representable in an indexed
// track file.
const MaximumPosition = math.MaxUint32

// Interval defines a region of genomic interest on a single chromosome.
type Interval struct {
	Chrom string
	// Start and End specify the half-open range [Start, End) in zero-based
	// base pair coordinates.
	Start, End uint32
}

// NewInterval validates the provided coordinates and returns the matching
// Interval.  Coordinates past MaximumPosition are clamped.
func NewInterval(chrom string, start, end int64) (Interval, error) {
	if start < 0 || end < 0 {
		return Interval{}, fmt.Errorf("%w: negative coordinate (start %d, end %d)", ErrInvalidRange, start, end)
	}
	if start >= end {
		return Interval{}, fmt.Errorf("%w: start %d is not before end %d", ErrInvalidRange, start, end)
	}
	if start >= MaximumPosition {
		return Interval{}, fmt.Errorf("%w: start %d exceeds maximum position", ErrInvalidRange, start)
	}
	if end > MaximumPosition {
		end = MaximumPosition
	}
	return Interval{Chrom: chrom, Start: uint32(start), End: uint32(end)}, nil
}

// Validate checks that the interval is non-empty.
func (i Interval) Validate() error {
	if i.Start >= i.End {
		return fmt.Errorf("%w: start %d is not before end %d", ErrInvalidRange, i.Start, i.End)
	}
	return nil
}

// Overlaps reports whether the half-open ranges [start, end) and i share at
// least one base.  The chromosome is not compared.
func (i Interval) Overlaps(start, end uint32) bool {
	return start < i.End && end > i.Start
}

// Length returns the number of bases covered by the interval.
func (i Interval) Length() uint32 {
	if i.End < i.Start {
		return 0
	}
	return i.End - i.Start
}

func (i Interval) String() string {
	return fmt.Sprintf("%s:%d-%d", i.Chrom, i.Start, i.End)
}

// ParseInterval parses a "chrom:start-end" string.
func ParseInterval(s string) (Interval, error) {
	colon := strings.LastIndex(s, ":")
	if colon <= 0 {
		return Interval{}, fmt.Errorf("missing chromosome in %q", s)
	}
	chrom, span := s[:colon], strings.Replace(s[colon+1:], ",", "", -1)
	dash := strings.Index(span, "-")
	if dash < 0 {
		return Interval{}, fmt.Errorf("missing range in %q", s)
	}
	start, err := strconv.ParseInt(span[:dash], 10, 64)
	if err != nil {
		return Interval{}, fmt.Errorf("parsing start: %v", err)
	}
	end, err := strconv.ParseInt(span[dash+1:], 10, 64)
	if err != nil {
		return Interval{}, fmt.Errorf("parsing end: %v", err)
	}
	return NewInterval(chrom, start, end)
}
