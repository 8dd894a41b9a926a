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

// Package track answers range queries against indexed track files.
package track

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/googlegenomics/trackdmp/internal/bbi"
	"github.com/googlegenomics/trackdmp/internal/codec"
	"github.com/googlegenomics/trackdmp/internal/feature"
	"github.com/googlegenomics/trackdmp/internal/format"
	"github.com/googlegenomics/trackdmp/internal/genomics"
	"github.com/googlegenomics/trackdmp/storage"
	"go.uber.org/zap"
)

// ErrUnsupportedFormat is returned for file types that cannot be queried by
// region.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Config holds the options recognized by the service.
type Config struct {
	// FileRoot is the directory relative file paths are resolved against.
	FileRoot string
	// Codec overrides block decompression.  Auto follows each file.
	Codec codec.Codec
	// CacheSize is the number of parsed indexes kept in memory.  Zero
	// disables caching.
	CacheSize int
	// FetchSizeLimit bounds the bytes fetched by a single block read.
	FetchSizeLimit int64
}

// trackType is the set of capabilities needed to query one family of track
// files.
type trackType interface {
	kind() bbi.Kind
	decoder(f *bbi.File, data []byte) feature.Decoder
	writer(w io.Writer) format.Writer
	contentType() string
}

type annotationTrack struct{}

func (annotationTrack) kind() bbi.Kind { return bbi.BigBed }

func (annotationTrack) decoder(f *bbi.File, data []byte) feature.Decoder {
	return feature.NewAnnotationDecoder(data, f.ByteOrder(), f)
}

func (annotationTrack) writer(w io.Writer) format.Writer { return format.NewBedWriter(w) }

func (annotationTrack) contentType() string { return "text/tab-separated-values" }

type signalTrack struct{}

func (signalTrack) kind() bbi.Kind { return bbi.BigWig }

func (signalTrack) decoder(f *bbi.File, data []byte) feature.Decoder {
	return feature.NewSignalDecoder(data, f.ByteOrder(), f)
}

func (signalTrack) writer(w io.Writer) format.Writer { return format.NewWigWriter(w) }

func (signalTrack) contentType() string { return "text/plain" }

var trackTypes = map[string]trackType{
	"bed":    annotationTrack{},
	"bigbed": annotationTrack{},
	"wig":    signalTrack{},
	"bigwig": signalTrack{},
}

func lookup(fileType string) (trackType, error) {
	t, ok := trackTypes[strings.ToLower(fileType)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, fileType)
	}
	return t, nil
}

// Supported reports whether files of fileType can be queried by region.
func Supported(fileType string) bool {
	_, err := lookup(fileType)
	return err == nil
}

// ContentType returns the media type of range query output for fileType.
func ContentType(fileType string) (string, error) {
	t, err := lookup(fileType)
	if err != nil {
		return "", err
	}
	return t.contentType(), nil
}

// Service answers range queries.  It is safe for concurrent use.
type Service struct {
	client storage.Client
	opener Opener
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used by the service.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithOpener replaces the opener built from the configuration.
func WithOpener(opener Opener) Option {
	return func(s *Service) {
		s.opener = opener
	}
}

// NewService returns a Service reading files through client.  A nil client
// reads local files below cfg.FileRoot.
func NewService(cfg Config, client storage.Client, opts ...Option) *Service {
	if client == nil {
		client = storage.Local{Root: cfg.FileRoot}
	}
	var opener Opener = &DirectOpener{
		Client: client,
		Options: bbi.Options{
			Codec:          cfg.Codec,
			FetchSizeLimit: cfg.FetchSizeLimit,
		},
	}
	if cfg.CacheSize > 0 {
		opener = NewCachingOpener(opener, cfg.CacheSize)
	}

	s := &Service{client: client, opener: opener, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns the parsed file at path after checking that its contents
// match fileType.
func (s *Service) Open(ctx context.Context, fileType, path string) (*bbi.File, error) {
	t, err := lookup(fileType)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, t, path)
}

func (s *Service) open(ctx context.Context, t trackType, path string) (*bbi.File, error) {
	f, err := s.opener.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if f.Kind() != t.kind() {
		return nil, &bbi.FileFormatError{Path: path, Err: fmt.Errorf("file is %v, not %v", f.Kind(), t.kind())}
	}
	return f, nil
}

// Original returns a reader over the unmodified contents of the file at path.
// The caller must close it.
func (s *Service) Original(ctx context.Context, path string) (io.ReadCloser, error) {
	handle, err := s.client.NewObjectHandle(path)
	if err != nil {
		return nil, &bbi.FileFormatError{Path: path, Err: err}
	}
	r, err := handle.NewRangeReader(ctx, 0, -1)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &bbi.FileFormatError{Path: path, Err: err}
	}
	return r, nil
}

// Records calls fn with every record of the file at path that overlaps the
// interval, in ascending start order.  The first failure stops the query.
func (s *Service) Records(ctx context.Context, fileType, path string, interval genomics.Interval, fn func(feature.Record) error) error {
	t, err := lookup(fileType)
	if err != nil {
		return err
	}
	return s.records(ctx, t, path, interval, fn)
}

func (s *Service) records(ctx context.Context, t trackType, path string, interval genomics.Interval, fn func(feature.Record) error) error {
	if err := interval.Validate(); err != nil {
		return err
	}
	f, err := s.open(ctx, t, path)
	if err != nil {
		return err
	}
	blocks, err := f.QueryBlocks(ctx, interval)
	if err != nil {
		return err
	}

	var count int
	err = f.ReadBlocks(ctx, blocks, func(block bbi.Block, data []byte) error {
		d := t.decoder(f, data)
		for d.Next() {
			r := d.Record()
			if i := r.Interval(); i.Chrom != interval.Chrom || !interval.Overlaps(i.Start, i.End) {
				continue
			}
			count++
			if err := fn(r); err != nil {
				return err
			}
		}
		if err := d.Err(); err != nil {
			return fmt.Errorf("block at offset %d: %w", block.Offset, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("range query",
		zap.String("path", path),
		zap.Stringer("interval", interval),
		zap.Int("blocks", len(blocks)),
		zap.Int("records", count))
	return nil
}

// WriteRange writes the records of the file at path overlapping
// chrom:[start, end) to w in the text format matching fileType.  Nothing is
// written unless the whole query succeeds.
func (s *Service) WriteRange(ctx context.Context, w io.Writer, fileType, path, chrom string, start, end int64) error {
	t, err := lookup(fileType)
	if err != nil {
		return err
	}
	interval, err := genomics.NewInterval(chrom, start, end)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	out := t.writer(&buf)
	if err := s.records(ctx, t, path, interval, out.Write); err != nil {
		return err
	}
	if err := out.Flush(); err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return err
}

// GetRange returns the records of the file at path overlapping
// chrom:[start, end) rendered in the text format matching fileType.  An empty
// result is returned as the empty string.
func (s *Service) GetRange(ctx context.Context, fileType, path, chrom string, start, end int64) (string, error) {
	var b strings.Builder
	if err := s.WriteRange(ctx, &b, fileType, path, chrom, start, end); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Count returns the number of records of the file at path overlapping
// chrom:[start, end).
func (s *Service) Count(ctx context.Context, fileType, path, chrom string, start, end int64) (int, error) {
	interval, err := genomics.NewInterval(chrom, start, end)
	if err != nil {
		return 0, err
	}
	var count int
	err = s.Records(ctx, fileType, path, interval, func(feature.Record) error {
		count++
		return nil
	})
	return count, err
}
