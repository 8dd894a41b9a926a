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
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	bin "github.com/googlegenomics/trackdmp/internal/binary"
)

// maximumTreeDepth bounds the recursion into both on-disk trees so that a
// corrupt child offset cannot loop forever.
const maximumTreeDepth = 32

// Chrom describes one entry of the chromosome table.
type Chrom struct {
	Name string
	ID   uint32
	Size uint32
}

// region is a contiguous byte range of the file held in memory.
type region struct {
	base  uint64
	data  []byte
	order binary.ByteOrder
}

// at returns a buffer positioned at the absolute file offset.
func (r region) at(offset uint64) (*bin.Buffer, error) {
	if offset < r.base || offset-r.base > uint64(len(r.data)) {
		return nil, fmt.Errorf("offset %d outside of [%d-%d)", offset, r.base, r.base+uint64(len(r.data)))
	}
	return bin.NewBuffer(r.data[offset-r.base:], r.order), nil
}

// parseChromTree reads every leaf of the chromosome B+ tree whose header
// starts at the beginning of r.
func parseChromTree(r region) ([]Chrom, error) {
	b, err := r.at(r.base)
	if err != nil {
		return nil, err
	}
	magic := b.Uint32()
	b.Skip(4) // block size
	keySize := b.Uint32()
	valSize := b.Uint32()
	itemCount := b.Uint64()
	b.Skip(8)
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("reading chromosome tree header: %w", err)
	}
	if magic != chromTreeMagic {
		return nil, fmt.Errorf("wrong chromosome tree magic %x", magic)
	}
	if valSize != 8 {
		return nil, fmt.Errorf("unsupported chromosome tree value size %d", valSize)
	}
	if itemCount > uint64(len(r.data))/(uint64(keySize)+uint64(valSize)) {
		return nil, fmt.Errorf("chromosome tree declares %d items in %d bytes", itemCount, len(r.data))
	}

	chroms := make([]Chrom, 0, itemCount)
	if err := walkChromNode(r, r.base+chromTreeHeader, int(keySize), 0, &chroms); err != nil {
		return nil, err
	}
	if uint64(len(chroms)) != itemCount {
		return nil, fmt.Errorf("chromosome tree holds %d items, header declares %d", len(chroms), itemCount)
	}
	return chroms, nil
}

func walkChromNode(r region, offset uint64, keySize, depth int, chroms *[]Chrom) error {
	if depth > maximumTreeDepth {
		return fmt.Errorf("chromosome tree deeper than %d levels", maximumTreeDepth)
	}
	b, err := r.at(offset)
	if err != nil {
		return fmt.Errorf("reading chromosome tree node: %w", err)
	}
	isLeaf := b.Uint8()
	b.Skip(1)
	count := int(b.Uint16())

	var children []uint64
	for i := 0; i < count; i++ {
		key := b.Bytes(keySize)
		if isLeaf != 0 {
			id, size := b.Uint32(), b.Uint32()
			if b.Err() == nil {
				*chroms = append(*chroms, Chrom{
					Name: string(bytes.TrimRight(key, "\x00")),
					ID:   id,
					Size: size,
				})
			}
		} else {
			children = append(children, b.Uint64())
		}
	}
	if err := b.Err(); err != nil {
		return fmt.Errorf("reading chromosome tree node at %d: %w", offset, err)
	}
	for _, child := range children {
		if err := walkChromNode(r, child, keySize, depth+1, chroms); err != nil {
			return err
		}
	}
	return nil
}

// Block locates one compressed data block and the span of records it holds.
type Block struct {
	StartChrom, StartBase uint32
	EndChrom, EndBase     uint32
	Offset, Size          uint64
}

// rNode is a node of the in-memory copy of the R-tree index.  Leaves hold
// blocks, internal nodes hold children with their bounds.
type rNode struct {
	bounds   []Block
	children []*rNode
}

func (n *rNode) leaf() bool {
	return n.children == nil
}

// dataSection is the byte range of the file that may hold data blocks.
type dataSection struct {
	start, end uint64
}

// contains reports whether the block lies entirely within the section.
func (s dataSection) contains(b *Block) bool {
	if b.Offset < s.start || b.Offset > s.end {
		return false
	}
	return b.Size <= s.end-b.Offset && b.Size <= maximumBlockSize
}

// rTree is the parsed spatial index of a file.
type rTree struct {
	root         *rNode
	itemCount    uint64
	itemsPerSlot uint32
	blockSize    uint32
}

func parseRTree(r region, data dataSection) (*rTree, error) {
	b, err := r.at(r.base)
	if err != nil {
		return nil, err
	}
	magic := b.Uint32()
	t := &rTree{blockSize: b.Uint32(), itemCount: b.Uint64()}
	b.Skip(16) // overall bounds
	b.Skip(8)  // end file offset
	t.itemsPerSlot = b.Uint32()
	b.Skip(4)
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("reading index header: %w", err)
	}
	if magic != rTreeMagic {
		return nil, fmt.Errorf("wrong index magic %x", magic)
	}

	if t.root, err = parseRNode(r, data, r.base+rTreeHeader, 0); err != nil {
		return nil, err
	}
	return t, nil
}

func parseRNode(r region, data dataSection, offset uint64, depth int) (*rNode, error) {
	if depth > maximumTreeDepth {
		return nil, fmt.Errorf("index deeper than %d levels", maximumTreeDepth)
	}
	b, err := r.at(offset)
	if err != nil {
		return nil, fmt.Errorf("reading index node: %w", err)
	}
	isLeaf := b.Uint8()
	b.Skip(1)
	count := int(b.Uint16())

	node := &rNode{bounds: make([]Block, count)}
	var offsets []uint64
	for i := range node.bounds {
		block := &node.bounds[i]
		block.StartChrom, block.StartBase = b.Uint32(), b.Uint32()
		block.EndChrom, block.EndBase = b.Uint32(), b.Uint32()
		block.Offset = b.Uint64()
		if isLeaf != 0 {
			block.Size = b.Uint64()
		} else {
			offsets = append(offsets, block.Offset)
		}
	}
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("reading index node at %d: %w", offset, err)
	}
	if isLeaf != 0 {
		for i := range node.bounds {
			if block := &node.bounds[i]; !data.contains(block) {
				return nil, fmt.Errorf("index node at %d: block [%d+%d) outside of data section [%d-%d)", offset, block.Offset, block.Size, data.start, data.end)
			}
		}
		return node, nil
	}

	node.children = make([]*rNode, 0, count)
	for _, child := range offsets {
		c, err := parseRNode(r, data, child, depth+1)
		if err != nil {
			return nil, err
		}
		node.children = append(node.children, c)
	}
	return node, nil
}

func compare(chromA, baseA, chromB, baseB uint32) int {
	switch {
	case chromA < chromB:
		return -1
	case chromA > chromB:
		return 1
	case baseA < baseB:
		return -1
	case baseA > baseB:
		return 1
	}
	return 0
}

// overlaps reports whether block b could hold records in [start, end) on
// chromosome chrom.
func (b *Block) overlaps(chrom, start, end uint32) bool {
	return compare(chrom, start, b.EndChrom, b.EndBase) < 0 &&
		compare(chrom, end, b.StartChrom, b.StartBase) > 0
}

// search appends every leaf block overlapping the query to blocks.  Subtrees
// whose bounds do not intersect the query are pruned.
func (n *rNode) search(ctx context.Context, chrom, start, end uint32, blocks []Block) ([]Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i := range n.bounds {
		bounds := &n.bounds[i]
		if !bounds.overlaps(chrom, start, end) {
			continue
		}
		if n.leaf() {
			blocks = append(blocks, *bounds)
			continue
		}
		var err error
		if blocks, err = n.children[i].search(ctx, chrom, start, end, blocks); err != nil {
			return nil, err
		}
	}
	return blocks, nil
}
