package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local is a Client for files below a root directory.  Relative paths are
// resolved against the root and may not escape it.
type Local struct {
	Root string
}

// NewObjectHandle returns a handle to the file at path.  The file is opened
// by every NewRangeReader call and closed with the returned reader.
func (l Local) NewObjectHandle(path string) (ObjectHandle, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if filepath.IsAbs(path) {
		if l.Root != "" {
			return nil, fmt.Errorf("%w: absolute path %q", ErrInvalidPath, path)
		}
		return localObjectHandle{filepath.Clean(path)}, nil
	}
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %q escapes the storage root", ErrInvalidPath, path)
	}
	return localObjectHandle{filepath.Join(l.Root, clean)}, nil
}

type localObjectHandle struct {
	path string
}

type fileReader struct {
	io.Reader
	file *os.File
}

func (r fileReader) Close() error {
	return r.file.Close()
}

func (h localObjectHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, fmt.Errorf("negative offset %d", offset)
	}
	file, err := os.Open(h.path)
	if err != nil {
		return nil, err
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seeking to %d: %w", offset, err)
	}
	var r io.Reader = file
	if length >= 0 {
		r = io.LimitReader(file, length)
	}
	return fileReader{r, file}, nil
}
