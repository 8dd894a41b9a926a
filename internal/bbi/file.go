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
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	bin "github.com/googlegenomics/trackdmp/internal/binary"
	"github.com/googlegenomics/trackdmp/internal/codec"
	"github.com/googlegenomics/trackdmp/internal/genomics"
)

const (
	// DefaultFetchSizeLimit bounds the size of a single coalesced block read
	// when Options does not specify one.
	DefaultFetchSizeLimit = 4 * 1024 * 1024

	// maximumIndexSize bounds the bytes read while loading the chromosome
	// table or the block index.
	maximumIndexSize = 512 * 1024 * 1024

	// maximumBlockSize bounds the stored size of a single data block.
	maximumBlockSize = 64 * 1024 * 1024
)

// ObjectHandle provides access to the bytes of a stored file.
type ObjectHandle interface {
	// NewRangeReader returns a reader that reads from a specified
	// range. Length of -1 means to capture everything until the
	// end.
	NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

// Options controls how a file is read.
type Options struct {
	// Codec selects the decompression codec for files whose header declares
	// compressed blocks.  Auto detects it from each block.
	Codec codec.Codec

	// FetchSizeLimit is the largest number of bytes fetched by a single range
	// read when coalescing adjacent blocks.
	FetchSizeLimit int64
}

// File is an opened indexed track file.  The header, chromosome table and
// index are parsed once by Open and never modified, so a File may be shared
// by concurrent queries.
type File struct {
	path   string
	handle ObjectHandle
	order  binary.ByteOrder

	header    Header
	zooms     []ZoomHeader
	summary   *Summary
	autoSQL   string
	dataCount uint64

	chroms []Chrom
	byName map[string]int
	byID   map[uint32]int

	index *rTree

	codec      codec.Codec
	fetchLimit int64
}

func read(ctx context.Context, handle ObjectHandle, offset, length int64) ([]byte, error) {
	r, err := handle.NewRangeReader(ctx, offset, length)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if length < 0 {
		data, err := io.ReadAll(io.LimitReader(r, maximumIndexSize+1))
		if err != nil {
			return nil, fmt.Errorf("reading from offset %d: %w", offset, err)
		}
		if len(data) > maximumIndexSize {
			return nil, fmt.Errorf("section at offset %d exceeds %d bytes", offset, maximumIndexSize)
		}
		return data, nil
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading %d bytes at offset %d: %w", length, offset, err)
	}
	return data, nil
}

// Open reads the header, chromosome table and index of the file accessed
// through handle.  Any failure other than cancellation of ctx is reported as
// a *FileFormatError naming path.
func Open(ctx context.Context, path string, handle ObjectHandle, opts *Options) (*File, error) {
	if opts == nil {
		opts = &Options{}
	}
	f := &File{
		path:       path,
		handle:     handle,
		codec:      opts.Codec,
		fetchLimit: opts.FetchSizeLimit,
	}
	if f.fetchLimit <= 0 {
		f.fetchLimit = DefaultFetchSizeLimit
	}

	fail := func(err error) (*File, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &FileFormatError{Path: path, Err: err}
	}

	data, err := read(ctx, handle, 0, headerSize)
	if err != nil {
		return fail(err)
	}
	if f.header, f.order, err = parseHeader(data); err != nil {
		return fail(err)
	}
	if f.header.UncompressBufSize == 0 {
		f.codec = codec.None
	}

	if f.header.ZoomLevels > 0 {
		data, err := read(ctx, handle, headerSize, int64(f.header.ZoomLevels)*zoomHeaderSize)
		if err != nil {
			return fail(err)
		}
		if f.zooms, err = parseZoomHeaders(data, f.order, int(f.header.ZoomLevels)); err != nil {
			return fail(err)
		}
	}

	if err := f.readMetadata(ctx); err != nil {
		return fail(err)
	}
	if err := f.readChromosomes(ctx); err != nil {
		return fail(err)
	}
	if err := f.readIndex(ctx); err != nil {
		return fail(err)
	}
	return f, nil
}

func (f *File) readMetadata(ctx context.Context) error {
	h := &f.header
	if h.TotalSummaryOffset != 0 {
		data, err := read(ctx, f.handle, int64(h.TotalSummaryOffset), summarySize)
		if err != nil {
			return fmt.Errorf("reading total summary: %w", err)
		}
		if f.summary, err = parseSummary(data, f.order); err != nil {
			return err
		}
	}

	if h.AutoSQLOffset != 0 {
		end := h.ChromTreeOffset
		if h.TotalSummaryOffset > h.AutoSQLOffset && h.TotalSummaryOffset < end {
			end = h.TotalSummaryOffset
		}
		if end <= h.AutoSQLOffset {
			return fmt.Errorf("autoSql offset %d is past the chromosome table", h.AutoSQLOffset)
		}
		data, err := read(ctx, f.handle, int64(h.AutoSQLOffset), int64(end-h.AutoSQLOffset))
		if err != nil {
			return fmt.Errorf("reading autoSql: %w", err)
		}
		b := bin.NewBuffer(data, f.order)
		if f.autoSQL = b.CString(); b.Err() != nil {
			return fmt.Errorf("reading autoSql: %w", b.Err())
		}
	}

	data, err := read(ctx, f.handle, int64(h.DataOffset), 8)
	if err != nil {
		return fmt.Errorf("reading data count: %w", err)
	}
	f.dataCount = f.order.Uint64(data)
	return nil
}

func (f *File) readChromosomes(ctx context.Context) error {
	h := &f.header
	size := h.DataOffset - h.ChromTreeOffset
	if size > maximumIndexSize {
		return fmt.Errorf("chromosome tree of %d bytes is too large", size)
	}
	data, err := read(ctx, f.handle, int64(h.ChromTreeOffset), int64(size))
	if err != nil {
		return fmt.Errorf("reading chromosome tree: %w", err)
	}
	chroms, err := parseChromTree(region{base: h.ChromTreeOffset, data: data, order: f.order})
	if err != nil {
		return err
	}

	sort.Slice(chroms, func(i, j int) bool {
		return chroms[i].ID < chroms[j].ID
	})
	f.chroms = chroms
	f.byName = make(map[string]int, len(chroms))
	f.byID = make(map[uint32]int, len(chroms))
	for i, c := range chroms {
		if _, ok := f.byName[c.Name]; ok {
			return fmt.Errorf("duplicate chromosome %q", c.Name)
		}
		f.byName[c.Name] = i
		f.byID[c.ID] = i
	}
	return nil
}

func (f *File) readIndex(ctx context.Context) error {
	h := &f.header
	length := int64(-1)
	for _, zoom := range f.zooms {
		if zoom.DataOffset > h.IndexOffset {
			if size := int64(zoom.DataOffset - h.IndexOffset); length < 0 || size < length {
				length = size
			}
		}
	}
	if length > maximumIndexSize {
		return fmt.Errorf("index of %d bytes is too large", length)
	}
	data, err := read(ctx, f.handle, int64(h.IndexOffset), length)
	if err != nil {
		return fmt.Errorf("reading index: %w", err)
	}
	blocks := dataSection{start: h.DataOffset, end: h.IndexOffset}
	f.index, err = parseRTree(region{base: h.IndexOffset, data: data, order: f.order}, blocks)
	return err
}

// Path returns the path the file was opened with.
func (f *File) Path() string {
	return f.path
}

// Kind reports whether the file is a bigBed or a bigWig file.
func (f *File) Kind() Kind {
	return f.header.Kind
}

// Header returns a copy of the file header.
func (f *File) Header() Header {
	return f.header
}

// ByteOrder returns the byte order of the file.
func (f *File) ByteOrder() binary.ByteOrder {
	return f.order
}

// ZoomLevels returns the reduction levels stored in the file.
func (f *File) ZoomLevels() []ZoomHeader {
	return append([]ZoomHeader(nil), f.zooms...)
}

// Summary returns the total summary, or nil if the file has none.
func (f *File) Summary() *Summary {
	return f.summary
}

// AutoSQL returns the autoSql table definition of a bigBed file.
func (f *File) AutoSQL() string {
	return f.autoSQL
}

// DataCount returns the count stored ahead of the data section.  Writers
// store the number of records in bigBed files and the number of sections in
// bigWig files.
func (f *File) DataCount() uint64 {
	return f.dataCount
}

// BlockCount returns the number of data blocks referenced by the index.
func (f *File) BlockCount() uint64 {
	return f.index.itemCount
}

// Chromosomes returns the chromosome table ordered by identifier.
func (f *File) Chromosomes() []Chrom {
	return append([]Chrom(nil), f.chroms...)
}

// Chromosome returns the table entry for name.
func (f *File) Chromosome(name string) (Chrom, bool) {
	i, ok := f.byName[name]
	if !ok {
		return Chrom{}, false
	}
	return f.chroms[i], true
}

// ChromName returns the name of the chromosome with the given identifier.
func (f *File) ChromName(id uint32) (string, bool) {
	i, ok := f.byID[id]
	if !ok {
		return "", false
	}
	return f.chroms[i].Name, true
}

// QueryBlocks returns the blocks that could hold records overlapping the
// interval, ordered by their start coordinate.  It never omits a block with
// an overlapping record but may return blocks whose records all fall outside
// of the interval.
func (f *File) QueryBlocks(ctx context.Context, interval genomics.Interval) ([]Block, error) {
	if err := interval.Validate(); err != nil {
		return nil, err
	}
	chrom, ok := f.Chromosome(interval.Chrom)
	if !ok {
		return nil, fmt.Errorf("%w %q in %q", ErrUnknownChromosome, interval.Chrom, f.path)
	}

	blocks, err := f.index.root.search(ctx, chrom.ID, interval.Start, interval.End, nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(blocks, func(i, j int) bool {
		a, b := &blocks[i], &blocks[j]
		if c := compare(a.StartChrom, a.StartBase, b.StartChrom, b.StartBase); c != 0 {
			return c < 0
		}
		return a.Offset < b.Offset
	})
	return blocks, nil
}

// fetch is a single range read covering one or more adjacent blocks.
type fetch struct {
	offset, size uint64
	blocks       []Block
}

// coalesce groups consecutive blocks that are adjacent on disk into fetches
// of at most limit bytes.  A block larger than limit is fetched on its own.
// The order of the blocks is preserved.
func coalesce(blocks []Block, limit uint64) []fetch {
	var fetches []fetch
	for _, b := range blocks {
		if n := len(fetches); n > 0 {
			last := &fetches[n-1]
			if last.offset+last.size == b.Offset && last.size+b.Size <= limit {
				last.size += b.Size
				last.blocks = append(last.blocks, b)
				continue
			}
		}
		fetches = append(fetches, fetch{offset: b.Offset, size: b.Size, blocks: []Block{b}})
	}
	return fetches
}

// ReadBlocks fetches and decompresses blocks in order, calling fn with the
// decompressed bytes of each.  Fetch and decompression failures are reported
// as *BlockDecodeError; an error returned by fn stops the iteration and is
// returned unchanged.
func (f *File) ReadBlocks(ctx context.Context, blocks []Block, fn func(Block, []byte) error) error {
	limit := 0
	if f.codec != codec.None {
		limit = int(f.header.UncompressBufSize)
	}
	for _, group := range coalesce(blocks, uint64(f.fetchLimit)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := read(ctx, f.handle, int64(group.offset), int64(group.size))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return &BlockDecodeError{Offset: group.offset, Size: group.size, Err: err}
		}

		for _, block := range group.blocks {
			start := block.Offset - group.offset
			decoded, err := codec.Decode(f.codec, data[start:start+block.Size], limit)
			if err != nil {
				return &BlockDecodeError{Offset: block.Offset, Size: block.Size, Err: err}
			}
			if err := fn(block, decoded); err != nil {
				return err
			}
		}
	}
	return nil
}
