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

package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/googlegenomics/trackdmp/internal/bbi"
	"github.com/spf13/cobra"
)

var showChroms bool

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Describe a bigBed or bigWig file",
	Long: `Print the header, summary and chromosome table of a bigBed or bigWig
file.

Examples:
  dmp-track info genes.bb
  dmp-track info --chroms signal.bw
  dmp-track info --gcs gs://bucket/signal.bw`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFile(context.Background(), args[0])
		if err != nil {
			return err
		}
		return describe(cmd.OutOrStdout(), f, showChroms)
	},
}

func init() {
	infoCmd.Flags().BoolVar(&showChroms, "chroms", false,
		"list every chromosome with its size")
}

func describe(out io.Writer, f *bbi.File, chroms bool) error {
	w := tabwriter.NewWriter(out, 0, 8, 1, ' ', 0)
	h := f.Header()
	fmt.Fprintf(w, "type:\t%v\n", h.Kind)
	fmt.Fprintf(w, "version:\t%d\n", h.Version)
	fmt.Fprintf(w, "byte order:\t%v\n", f.ByteOrder())
	fmt.Fprintf(w, "compressed:\t%t\n", h.UncompressBufSize > 0)
	fmt.Fprintf(w, "zoom levels:\t%d\n", len(f.ZoomLevels()))
	fmt.Fprintf(w, "chromosomes:\t%d\n", len(f.Chromosomes()))
	fmt.Fprintf(w, "data blocks:\t%d\n", f.BlockCount())
	if h.Kind == bbi.BigBed {
		fmt.Fprintf(w, "items:\t%d\n", f.DataCount())
		fmt.Fprintf(w, "field count:\t%d\n", h.FieldCount)
	} else {
		fmt.Fprintf(w, "sections:\t%d\n", f.DataCount())
	}
	if s := f.Summary(); s != nil {
		fmt.Fprintf(w, "bases covered:\t%d\n", s.BasesCovered)
		if h.Kind == bbi.BigWig && s.BasesCovered > 0 {
			mean := s.Sum / float64(s.BasesCovered)
			variance := s.SumSquares/float64(s.BasesCovered) - mean*mean
			fmt.Fprintf(w, "mean:\t%g\n", mean)
			fmt.Fprintf(w, "min:\t%g\n", s.Min)
			fmt.Fprintf(w, "max:\t%g\n", s.Max)
			fmt.Fprintf(w, "std:\t%g\n", math.Sqrt(math.Max(variance, 0)))
		}
	}
	if chroms {
		for _, c := range f.Chromosomes() {
			fmt.Fprintf(w, "\t%s\t%d\n", c.Name, c.Size)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if sql := f.AutoSQL(); sql != "" {
		fmt.Fprintf(out, "\n%s\n", sql)
	}
	return nil
}
