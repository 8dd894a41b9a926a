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

package track

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/golang/groupcache/singleflight"
	"github.com/googlegenomics/trackdmp/internal/bbi"
	"github.com/googlegenomics/trackdmp/storage"
)

// Opener returns the parsed index of the track file stored at a path.
type Opener interface {
	Open(ctx context.Context, path string) (*bbi.File, error)
}

// DirectOpener parses the file on every call.
type DirectOpener struct {
	Client  storage.Client
	Options bbi.Options
}

// Open resolves path with the storage client and parses the file.
func (o *DirectOpener) Open(ctx context.Context, path string) (*bbi.File, error) {
	handle, err := o.Client.NewObjectHandle(path)
	if err != nil {
		return nil, &bbi.FileFormatError{Path: path, Err: err}
	}
	opts := o.Options
	return bbi.Open(ctx, path, handle, &opts)
}

// CachingOpener keeps the most recently used parsed files.  Concurrent
// requests for a path that is not cached share a single parse, and a file is
// only added to the cache once it has been fully parsed.  Failures are not
// cached.
type CachingOpener struct {
	opener Opener
	group  singleflight.Group

	mu    sync.Mutex
	cache *lru.Cache
}

// NewCachingOpener returns an Opener caching up to size files opened by
// opener.
func NewCachingOpener(opener Opener, size int) *CachingOpener {
	return &CachingOpener{opener: opener, cache: lru.New(size)}
}

func (c *CachingOpener) lookup(path string) (*bbi.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.cache.Get(path); ok {
		return v.(*bbi.File), true
	}
	return nil, false
}

type openResult struct {
	value interface{}
	err   error
}

// Open returns the cached file for path, parsing it if necessary.  The shared
// parse is not tied to any one caller's ctx, so a caller abandoning its
// request does not fail the others waiting on the same path; each caller
// stops waiting when its own ctx is done.
func (c *CachingOpener) Open(ctx context.Context, path string) (*bbi.File, error) {
	if f, ok := c.lookup(path); ok {
		return f, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan openResult, 1)
	go func() {
		v, err := c.group.Do(path, func() (interface{}, error) {
			if f, ok := c.lookup(path); ok {
				return f, nil
			}
			f, err := c.opener.Open(context.Background(), path)
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			c.cache.Add(path, f)
			c.mu.Unlock()
			return f, nil
		})
		done <- openResult{v, err}
	}()

	var result openResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result = <-done:
	}
	if result.err != nil {
		return nil, result.err
	}
	f, ok := result.value.(*bbi.File)
	if !ok {
		return nil, fmt.Errorf("unexpected cache entry %T for %q", result.value, path)
	}
	return f, nil
}

// Len returns the number of cached files.
func (c *CachingOpener) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
