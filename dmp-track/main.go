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

// This binary inspects, queries and builds indexed track files, and fetches
// regions from a running track server.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/googlegenomics/trackdmp/internal/bbi"
	"github.com/googlegenomics/trackdmp/storage"
	"github.com/spf13/cobra"
)

var useGCS bool

var rootCmd = &cobra.Command{
	Use:   "dmp-track",
	Short: "Tools for indexed genomic track files",
	Long: `dmp-track reads and writes bigBed and bigWig files.

Files are read from the local file system, or from Google Cloud Storage
for gs:// paths when --gcs is set.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&useGCS, "gcs", false,
		"resolve gs:// paths with application default credentials")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(fetchCmd)
}

// newStorageClient returns the client used to read track files named on the
// command line.
func newStorageClient(ctx context.Context) (storage.Client, error) {
	router := storage.NewRouter(storage.Local{})
	if useGCS {
		gcs, err := storage.NewDefaultClient(ctx)
		if err != nil {
			return nil, err
		}
		router.Handle(storage.GCSScheme, gcs)
	}
	return router, nil
}

// openFile parses the track file at path.
func openFile(ctx context.Context, path string) (*bbi.File, error) {
	client, err := newStorageClient(ctx)
	if err != nil {
		return nil, err
	}
	handle, err := client.NewObjectHandle(path)
	if err != nil {
		return nil, err
	}
	return bbi.Open(ctx, path, handle, nil)
}

// fileType guesses the file type from the extension of path.
func fileType(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".bb"), strings.HasSuffix(lower, ".bigbed"):
		return "bigbed"
	case strings.HasSuffix(lower, ".bw"), strings.HasSuffix(lower, ".bigwig"):
		return "bigwig"
	}
	return ""
}
