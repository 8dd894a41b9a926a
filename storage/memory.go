package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Memory is a Client holding objects in memory.  It is safe for concurrent
// use.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	reads   int
}

// NewMemory returns an empty Memory client.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put stores data at path, replacing any previous object.
func (m *Memory) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = data
}

// Reads returns the number of range readers created so far.
func (m *Memory) Reads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads
}

// NewObjectHandle returns a handle to the object at path.  Reading an object
// that does not exist fails with an error wrapping os.ErrNotExist.
func (m *Memory) NewObjectHandle(path string) (ObjectHandle, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return memoryObjectHandle{m, path}, nil
}

type memoryObjectHandle struct {
	m    *Memory
	path string
}

func (h memoryObjectHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.m.mu.Lock()
	data, ok := h.m.objects[h.path]
	h.m.reads++
	h.m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("opening %q: %w", h.path, os.ErrNotExist)
	}
	if offset < 0 {
		return nil, fmt.Errorf("negative offset %d", offset)
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	end := int64(len(data))
	if length >= 0 && offset+length < end {
		end = offset + length
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}
