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
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	bin "github.com/googlegenomics/trackdmp/internal/binary"
	"github.com/googlegenomics/trackdmp/internal/codec"
	"github.com/googlegenomics/trackdmp/internal/feature"
)

const (
	// DefaultBlockSize is the default fan-out of both on-disk trees.
	DefaultBlockSize = 256
	// DefaultItemsPerSlot is the default number of records per data block.
	DefaultItemsPerSlot = 512
)

// WriterOptions controls the layout of written files.
type WriterOptions struct {
	// BlockSize is the maximum number of items in a tree node.
	BlockSize int
	// ItemsPerSlot is the maximum number of records in a data block.
	ItemsPerSlot int
	// Codec compresses data blocks.  Auto selects zlib, which is what
	// standard tools expect.
	Codec codec.Codec
	// ByteOrder defaults to little endian.
	ByteOrder binary.ByteOrder
}

func (o *WriterOptions) withDefaults() WriterOptions {
	opts := WriterOptions{}
	if o != nil {
		opts = *o
	}
	if opts.BlockSize < 2 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.ItemsPerSlot <= 0 {
		opts.ItemsPerSlot = DefaultItemsPerSlot
	}
	if opts.ByteOrder == nil {
		opts.ByteOrder = binary.LittleEndian
	}
	return opts
}

// ChromSize is an entry of a chromosome sizes table.
type ChromSize struct {
	Name string
	Size uint32
}

// chromTable assigns identifiers to chromosomes in name order, which is the
// order the chromosome B+ tree requires.
func chromTable(sizes []ChromSize) ([]Chrom, map[string]Chrom, error) {
	chroms := make([]Chrom, len(sizes))
	byName := make(map[string]Chrom, len(sizes))
	for i, s := range sizes {
		if s.Name == "" {
			return nil, nil, fmt.Errorf("empty chromosome name")
		}
		chroms[i] = Chrom{Name: s.Name, Size: s.Size}
	}
	sort.Slice(chroms, func(i, j int) bool {
		return chroms[i].Name < chroms[j].Name
	})
	for i := range chroms {
		chroms[i].ID = uint32(i)
		if _, ok := byName[chroms[i].Name]; ok {
			return nil, nil, fmt.Errorf("duplicate chromosome %q", chroms[i].Name)
		}
		byName[chroms[i].Name] = chroms[i]
	}
	return chroms, byName, nil
}

// treeLevels groups n leaf items into nodes of at most fanout items, then
// groups those nodes into parents until a single root remains.  It returns
// the item count of every node, level by level from the root down.
func treeLevels(n, fanout int) [][]int {
	group := func(n int) []int {
		if n == 0 {
			return []int{0}
		}
		var counts []int
		for n > 0 {
			c := n
			if c > fanout {
				c = fanout
			}
			counts = append(counts, c)
			n -= c
		}
		return counts
	}

	levels := [][]int{group(n)}
	for len(levels[0]) > 1 {
		levels = append([][]int{group(len(levels[0]))}, levels...)
	}
	return levels
}

// treeLayout is the on-disk arrangement of a tree written root first.
type treeLayout struct {
	levels [][]int
	// offsets holds the file offset of every node.
	offsets [][]uint64
	// first holds the index of the first leaf item under every node.
	first [][]int
	size  uint64
}

func layoutTree(n, fanout int, base uint64, leafItem, internalItem uint64) *treeLayout {
	t := &treeLayout{levels: treeLevels(n, fanout)}
	offset := base
	for l, counts := range t.levels {
		itemSize := internalItem
		if l == len(t.levels)-1 {
			itemSize = leafItem
		}
		offsets := make([]uint64, len(counts))
		for i, count := range counts {
			offsets[i] = offset
			offset += nodeHeaderSize + uint64(count)*itemSize
		}
		t.offsets = append(t.offsets, offsets)
	}
	t.size = offset - base

	t.first = make([][]int, len(t.levels))
	for l := len(t.levels) - 1; l >= 0; l-- {
		t.first[l] = make([]int, len(t.levels[l]))
		next := 0
		for i, count := range t.levels[l] {
			if l == len(t.levels)-1 {
				t.first[l][i] = next
			} else {
				t.first[l][i] = t.first[l+1][next]
			}
			next += count
		}
	}
	return t
}

// write emits every node.  item writes the leaf item at the given index;
// internal writes the entry for child node i of the level below.
func (t *treeLayout) write(w *bin.Writer, item func(int), internal func(level, child int)) {
	for l, counts := range t.levels {
		leaf := l == len(t.levels)-1
		next := 0
		for i, count := range counts {
			if leaf {
				w.Uint8(1)
			} else {
				w.Uint8(0)
			}
			w.Uint8(0)
			w.Uint16(uint16(count))
			for j := 0; j < count; j++ {
				if leaf {
					item(t.first[l][i] + j)
				} else {
					internal(l+1, next+j)
				}
			}
			next += count
		}
	}
}

func encodeChromTree(w *bin.Writer, chroms []Chrom, fanout int, base uint64) {
	keySize := 1
	for _, c := range chroms {
		if len(c.Name) > keySize {
			keySize = len(c.Name)
		}
	}
	blockSize := fanout
	if len(chroms) < blockSize {
		blockSize = len(chroms)
	}
	if blockSize < 1 {
		blockSize = 1
	}

	w.Uint32(chromTreeMagic)
	w.Uint32(uint32(blockSize))
	w.Uint32(uint32(keySize))
	w.Uint32(8)
	w.Uint64(uint64(len(chroms)))
	w.Uint64(0)

	key := func(name string) {
		padded := make([]byte, keySize)
		copy(padded, name)
		w.Write(padded)
	}
	t := layoutTree(len(chroms), blockSize, base+chromTreeHeader, uint64(keySize)+8, uint64(keySize)+8)
	t.write(w, func(i int) {
		key(chroms[i].Name)
		w.Uint32(chroms[i].ID)
		w.Uint32(chroms[i].Size)
	}, func(level, child int) {
		key(chroms[t.first[level][child]].Name)
		w.Uint64(t.offsets[level][child])
	})
}

func encodeRTree(w *bin.Writer, blocks []Block, opts WriterOptions, base, dataEnd uint64) {
	var bounds Block
	if len(blocks) > 0 {
		bounds = union(blocks)
	}
	w.Uint32(rTreeMagic)
	w.Uint32(uint32(opts.BlockSize))
	w.Uint64(uint64(len(blocks)))
	w.Uint32(bounds.StartChrom)
	w.Uint32(bounds.StartBase)
	w.Uint32(bounds.EndChrom)
	w.Uint32(bounds.EndBase)
	w.Uint64(dataEnd)
	w.Uint32(uint32(opts.ItemsPerSlot))
	w.Uint32(0)

	bounded := func(b Block) {
		w.Uint32(b.StartChrom)
		w.Uint32(b.StartBase)
		w.Uint32(b.EndChrom)
		w.Uint32(b.EndBase)
	}
	t := layoutTree(len(blocks), opts.BlockSize, base+rTreeHeader, rTreeLeafItem, rTreeInternalItem)
	t.write(w, func(i int) {
		bounded(blocks[i])
		w.Uint64(blocks[i].Offset)
		w.Uint64(blocks[i].Size)
	}, func(level, child int) {
		first := t.first[level][child]
		bounded(union(blocks[first : first+t.leaves(level, child)]))
		w.Uint64(t.offsets[level][child])
	})
}

// leaves returns the number of leaf items under a node.
func (t *treeLayout) leaves(level, node int) int {
	if node+1 < len(t.first[level]) {
		return t.first[level][node+1] - t.first[level][node]
	}
	total := 0
	for _, count := range t.levels[len(t.levels)-1] {
		total += count
	}
	return total - t.first[level][node]
}

func union(blocks []Block) Block {
	u := blocks[0]
	for _, b := range blocks[1:] {
		if compare(b.StartChrom, b.StartBase, u.StartChrom, u.StartBase) < 0 {
			u.StartChrom, u.StartBase = b.StartChrom, b.StartBase
		}
		if compare(b.EndChrom, b.EndBase, u.EndChrom, u.EndBase) > 0 {
			u.EndChrom, u.EndBase = b.EndChrom, b.EndBase
		}
	}
	return u
}

// pendingBlock is an encoded data block whose file offset is not yet known.
type pendingBlock struct {
	chrom      uint32
	start, end uint32
	data       []byte
}

type fileWriter struct {
	kind       Kind
	opts       WriterOptions
	chroms     []Chrom
	blocks     []pendingBlock
	maxBlock   int
	fieldCount uint16
	dataCount  uint64
	summary    Summary
}

func (fw *fileWriter) addBlock(chrom, start, end uint32, raw []byte) error {
	data := raw
	if fw.opts.Codec != codec.None {
		var err error
		if data, err = codec.Encode(fw.opts.Codec, raw); err != nil {
			return fmt.Errorf("compressing block: %w", err)
		}
	}
	if len(raw) > fw.maxBlock {
		fw.maxBlock = len(raw)
	}
	fw.blocks = append(fw.blocks, pendingBlock{chrom: chrom, start: start, end: end, data: data})
	return nil
}

func (fw *fileWriter) flush(out io.Writer) error {
	order := fw.opts.ByteOrder
	h := Header{
		Kind:               fw.kind,
		Version:            version,
		FieldCount:         fw.fieldCount,
		TotalSummaryOffset: headerSize,
		ChromTreeOffset:    headerSize + summarySize,
	}
	if fw.kind == BigBed {
		h.DefinedFieldCount = 3
	}
	if fw.opts.Codec != codec.None {
		h.UncompressBufSize = uint32(fw.maxBlock)
		if h.UncompressBufSize == 0 {
			h.UncompressBufSize = 1
		}
	}

	chromTree := bin.NewWriter(order)
	encodeChromTree(chromTree, fw.chroms, fw.opts.BlockSize, h.ChromTreeOffset)
	h.DataOffset = h.ChromTreeOffset + uint64(chromTree.Len())

	offset := h.DataOffset + 8
	blocks := make([]Block, len(fw.blocks))
	for i, p := range fw.blocks {
		blocks[i] = Block{
			StartChrom: p.chrom, StartBase: p.start,
			EndChrom: p.chrom, EndBase: p.end,
			Offset: offset, Size: uint64(len(p.data)),
		}
		offset += uint64(len(p.data))
	}
	h.IndexOffset = offset

	w := bin.NewWriter(order)
	h.encode(w)
	fw.summary.encode(w)
	w.Write(chromTree.Bytes())
	w.Uint64(fw.dataCount)
	for _, p := range fw.blocks {
		w.Write(p.data)
	}
	encodeRTree(w, blocks, fw.opts, h.IndexOffset, h.IndexOffset)

	_, err := out.Write(w.Bytes())
	return err
}

func (fw *fileWriter) cover(length uint32, value float64) {
	s := &fw.summary
	if s.BasesCovered == 0 {
		s.Min, s.Max = value, value
	}
	s.BasesCovered += uint64(length)
	s.Min = math.Min(s.Min, value)
	s.Max = math.Max(s.Max, value)
	s.Sum += value * float64(length)
	s.SumSquares += value * value * float64(length)
}

// WriteBigBed writes records as a bigBed file.  Records are sorted by
// chromosome identifier and start before being grouped into blocks; no block
// spans two chromosomes.
func WriteBigBed(out io.Writer, sizes []ChromSize, records []feature.AnnotationRecord, opts *WriterOptions) error {
	chroms, byName, err := chromTable(sizes)
	if err != nil {
		return err
	}
	fw := &fileWriter{kind: BigBed, opts: opts.withDefaults(), chroms: chroms, fieldCount: 3}

	sorted := make([]feature.AnnotationRecord, len(records))
	copy(sorted, records)
	for _, r := range sorted {
		c, ok := byName[r.Chrom]
		if !ok {
			return fmt.Errorf("record %s:%d-%d: %w", r.Chrom, r.Start, r.End, ErrUnknownChromosome)
		}
		if r.End > c.Size {
			return fmt.Errorf("record %s:%d-%d ends past chromosome size %d", r.Chrom, r.Start, r.End, c.Size)
		}
		if n := uint16(3 + len(r.Fields)); n > fw.fieldCount {
			fw.fieldCount = n
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := byName[sorted[i].Chrom].ID, byName[sorted[j].Chrom].ID
		if a != b {
			return a < b
		}
		return sorted[i].Start < sorted[j].Start
	})

	for first := 0; first < len(sorted); {
		chrom := byName[sorted[first].Chrom]
		last := first
		start, end := sorted[first].Start, sorted[first].End
		w := bin.NewWriter(fw.opts.ByteOrder)
		for ; last < len(sorted) && last-first < fw.opts.ItemsPerSlot && sorted[last].Chrom == chrom.Name; last++ {
			r := sorted[last]
			if err := feature.AppendAnnotation(w, chrom.ID, r); err != nil {
				return err
			}
			if r.End > end {
				end = r.End
			}
			fw.cover(r.End-r.Start, 1)
		}
		if err := fw.addBlock(chrom.ID, start, end, w.Bytes()); err != nil {
			return err
		}
		fw.dataCount += uint64(last - first)
		first = last
	}
	return fw.flush(out)
}

// WriteBigWig writes records as a bigWig file.  Records are sorted by
// chromosome identifier and start, then split into sections of consecutive
// records sharing a layout; every section is stored in its own block.
func WriteBigWig(out io.Writer, sizes []ChromSize, records []feature.SignalRecord, opts *WriterOptions) error {
	chroms, byName, err := chromTable(sizes)
	if err != nil {
		return err
	}
	fw := &fileWriter{kind: BigWig, opts: opts.withDefaults(), chroms: chroms}

	sorted := make([]feature.SignalRecord, len(records))
	copy(sorted, records)
	for _, r := range sorted {
		c, ok := byName[r.Chrom]
		if !ok {
			return fmt.Errorf("record %s:%d-%d: %w", r.Chrom, r.Start, r.End, ErrUnknownChromosome)
		}
		if r.End > c.Size {
			return fmt.Errorf("record %s:%d-%d ends past chromosome size %d", r.Chrom, r.Start, r.End, c.Size)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := byName[sorted[i].Chrom].ID, byName[sorted[j].Chrom].ID
		if a != b {
			return a < b
		}
		return sorted[i].Start < sorted[j].Start
	})

	for _, section := range feature.Sections(sorted, fw.opts.ItemsPerSlot) {
		chrom := byName[section[0].Chrom]
		w := bin.NewWriter(fw.opts.ByteOrder)
		if err := feature.AppendSection(w, chrom.ID, section); err != nil {
			return err
		}
		start, end := section[0].Start, section[0].End
		for _, r := range section {
			if r.End > end {
				end = r.End
			}
			fw.cover(r.End-r.Start, float64(r.Value))
		}
		if err := fw.addBlock(chrom.ID, start, end, w.Bytes()); err != nil {
			return err
		}
		fw.dataCount++
	}
	return fw.flush(out)
}
