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

	"github.com/googlegenomics/trackdmp/internal/genomics"
	"github.com/googlegenomics/trackdmp/internal/track"
	"github.com/spf13/cobra"
)

var (
	queryType  string
	queryCount bool
)

var queryCmd = &cobra.Command{
	Use:   "query <file> <region>",
	Short: "Print the records of a file overlapping a region",
	Long: `Print the records of a bigBed or bigWig file overlapping a region.

The region format is chr:start-end with a zero-based, half-open range
(e.g., chr1:1000000-2000000).  bigBed records are printed as BED lines and
bigWig records as wiggle text.

Examples:
  dmp-track query genes.bb chr1:1000000-2000000
  dmp-track query signal.bw chr2:0-5000 --count
  dmp-track query data.bin chr1:0-100 --type bigwig`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		interval, err := genomics.ParseInterval(args[1])
		if err != nil {
			return fmt.Errorf("invalid region: %w", err)
		}

		ctx := context.Background()
		t := queryType
		if t == "" {
			t = fileType(path)
		}
		if t == "" {
			f, err := openFile(ctx, path)
			if err != nil {
				return err
			}
			t = f.Kind().String()
		}

		client, err := newStorageClient(ctx)
		if err != nil {
			return err
		}
		service := track.NewService(track.Config{}, client)
		if queryCount {
			n, err := service.Count(ctx, t, path, interval.Chrom, int64(interval.Start), int64(interval.End))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", n)
			return nil
		}
		return service.WriteRange(ctx, cmd.OutOrStdout(), t, path, interval.Chrom, int64(interval.Start), int64(interval.End))
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryType, "type", "",
		"file type (bed, bigbed, wig or bigwig); guessed from the file when empty")
	queryCmd.Flags().BoolVar(&queryCount, "count", false,
		"only print the number of overlapping records")
}
