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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/googlegenomics/trackdmp/internal/bbi"
	"github.com/googlegenomics/trackdmp/internal/feature"
)

// maximumLineLength bounds a single line of text input.
const maximumLineLength = 16 * 1024 * 1024

// scanLines calls fn with the columns of every data line of r.  Blank lines,
// comments and browser or track directives are skipped.  Columns are tab
// separated unless the line contains no tab.
func scanLines(r io.Reader, fn func(line int, columns []string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maximumLineLength)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, "track") || strings.HasPrefix(text, "browser") {
			continue
		}
		var columns []string
		if strings.Contains(text, "\t") {
			columns = strings.Split(text, "\t")
		} else {
			columns = strings.Fields(text)
		}
		if err := fn(line, columns); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return scanner.Err()
}

func parseSpan(columns []string) (uint32, uint32, error) {
	start, err := strconv.ParseUint(columns[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing start: %v", err)
	}
	end, err := strconv.ParseUint(columns[2], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing end: %v", err)
	}
	if start > end {
		return 0, 0, fmt.Errorf("start %d is after end %d", start, end)
	}
	return uint32(start), uint32(end), nil
}

// ReadBed parses BED text.  Columns after the third are kept verbatim.
func ReadBed(r io.Reader) ([]feature.AnnotationRecord, error) {
	var records []feature.AnnotationRecord
	err := scanLines(r, func(_ int, columns []string) error {
		if len(columns) < 3 {
			return fmt.Errorf("expected at least 3 columns, got %d", len(columns))
		}
		start, end, err := parseSpan(columns)
		if err != nil {
			return err
		}
		a := feature.AnnotationRecord{Chrom: columns[0], Start: start, End: end}
		if len(columns) > 3 {
			a.Fields = append([]string(nil), columns[3:]...)
		}
		records = append(records, a)
		return nil
	})
	return records, err
}

// ReadBedGraph parses bedGraph text.
func ReadBedGraph(r io.Reader) ([]feature.SignalRecord, error) {
	var records []feature.SignalRecord
	err := scanLines(r, func(_ int, columns []string) error {
		if len(columns) != 4 {
			return fmt.Errorf("expected 4 columns, got %d", len(columns))
		}
		start, end, err := parseSpan(columns)
		if err != nil {
			return err
		}
		if start == end {
			return fmt.Errorf("empty interval at %d", start)
		}
		value, err := strconv.ParseFloat(columns[3], 32)
		if err != nil {
			return fmt.Errorf("parsing value: %v", err)
		}
		records = append(records, feature.SignalRecord{
			Chrom: columns[0],
			Start: start,
			End:   end,
			Value: float32(value),
			Type:  feature.BedGraph,
		})
		return nil
	})
	return records, err
}

// ReadChromSizes parses a two column chromosome sizes file.
func ReadChromSizes(r io.Reader) ([]bbi.ChromSize, error) {
	var sizes []bbi.ChromSize
	seen := make(map[string]bool)
	err := scanLines(r, func(_ int, columns []string) error {
		if len(columns) < 2 {
			return fmt.Errorf("expected 2 columns, got %d", len(columns))
		}
		size, err := strconv.ParseUint(columns[1], 10, 32)
		if err != nil {
			return fmt.Errorf("parsing size: %v", err)
		}
		if seen[columns[0]] {
			return fmt.Errorf("duplicate chromosome %q", columns[0])
		}
		seen[columns[0]] = true
		sizes = append(sizes, bbi.ChromSize{Name: columns[0], Size: uint32(size)})
		return nil
	})
	return sizes, err
}
