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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/googlegenomics/trackdmp/internal/bbi"
	"github.com/googlegenomics/trackdmp/internal/codec"
	"github.com/googlegenomics/trackdmp/internal/format"
	"github.com/spf13/cobra"
)

var (
	blockSize    int
	itemsPerSlot int
	codecName    string
	bigEndian    bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <bed|bedgraph> <input> <chrom.sizes> <output>",
	Short: "Build a bigBed or bigWig file from text",
	Long: `Build an indexed file from BED or bedGraph text.

BED input produces a bigBed file and bedGraph input a bigWig file.  The
chromosome sizes file lists one "name<TAB>size" pair per line; every input
record must fall on a listed chromosome.

Examples:
  dmp-track convert bed genes.bed hg38.chrom.sizes genes.bb
  dmp-track convert bedgraph signal.bedGraph hg38.chrom.sizes signal.bw --codec zstd`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		cdc, err := codec.Parse(codecName)
		if err != nil {
			return err
		}
		opts := &bbi.WriterOptions{
			BlockSize:    blockSize,
			ItemsPerSlot: itemsPerSlot,
			Codec:        cdc,
		}
		if bigEndian {
			opts.ByteOrder = binary.BigEndian
		}

		sizes, err := readChromSizes(args[2])
		if err != nil {
			return fmt.Errorf("reading chromosome sizes: %w", err)
		}

		in, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer in.Close()

		out, err := os.Create(args[3])
		if err != nil {
			return err
		}
		w := bufio.NewWriter(out)
		if err := convert(args[0], in, sizes, w, opts); err != nil {
			out.Close()
			os.Remove(args[3])
			return err
		}
		if err := w.Flush(); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	},
}

func init() {
	convertCmd.Flags().IntVar(&blockSize, "block-size", bbi.DefaultBlockSize,
		"maximum number of items in an index node")
	convertCmd.Flags().IntVar(&itemsPerSlot, "items-per-slot", bbi.DefaultItemsPerSlot,
		"maximum number of records in a data block")
	convertCmd.Flags().StringVar(&codecName, "codec", "zlib",
		"block compression: zlib, zstd or none")
	convertCmd.Flags().BoolVar(&bigEndian, "big-endian", false,
		"write a big endian file")
}

func convert(kind string, in io.Reader, sizes []bbi.ChromSize, out io.Writer, opts *bbi.WriterOptions) error {
	switch kind {
	case "bed":
		records, err := format.ReadBed(in)
		if err != nil {
			return fmt.Errorf("reading BED: %w", err)
		}
		return bbi.WriteBigBed(out, sizes, records, opts)
	case "bedgraph":
		records, err := format.ReadBedGraph(in)
		if err != nil {
			return fmt.Errorf("reading bedGraph: %w", err)
		}
		return bbi.WriteBigWig(out, sizes, records, opts)
	}
	return fmt.Errorf("unsupported input format %q, want bed or bedgraph", kind)
}

func readChromSizes(path string) ([]bbi.ChromSize, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return format.ReadChromSizes(f)
}
