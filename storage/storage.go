// Package storage provides read access to stored track files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrInvalidPath is returned for paths that cannot name an object of the
	// selected backend.
	ErrInvalidPath = errors.New("invalid object path")
	// ErrPermissionDenied is returned when the backend refuses access.
	ErrPermissionDenied = errors.New("permission denied")
)

// Client is an interface to the storage engine.
type Client interface {
	// NewObjectHandle returns a handle to the object stored at path.
	NewObjectHandle(path string) (ObjectHandle, error)
}

// ObjectHandle is an interface to the actual storage engine in use.
type ObjectHandle interface {
	// NewRangeReader returns a reader that reads from a specified
	// range. Length of -1 means to capture everything until the
	// end.
	NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

// Router dispatches paths of the form "scheme://..." to the client
// registered for the scheme.  Paths without a scheme go to the fallback
// client.
type Router struct {
	fallback Client
	schemes  map[string]Client
}

// NewRouter returns a Router that sends paths without a scheme to fallback.
func NewRouter(fallback Client) *Router {
	return &Router{fallback: fallback, schemes: make(map[string]Client)}
}

// Handle registers c for paths starting with scheme + "://".
func (r *Router) Handle(scheme string, c Client) *Router {
	r.schemes[scheme] = c
	return r
}

// NewObjectHandle returns a handle from the client responsible for path.
func (r *Router) NewObjectHandle(path string) (ObjectHandle, error) {
	if i := strings.Index(path, "://"); i > 0 {
		c, ok := r.schemes[path[:i]]
		if !ok {
			return nil, fmt.Errorf("%w: no backend for scheme %q", ErrInvalidPath, path[:i])
		}
		return c.NewObjectHandle(path)
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrInvalidPath, path)
	}
	return r.fallback.NewObjectHandle(path)
}
