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
	"errors"
	"fmt"
)

// ErrUnknownChromosome is returned when a query names a chromosome that is
// absent from the file's chromosome table.
var ErrUnknownChromosome = errors.New("unknown chromosome")

// FileFormatError is returned when a file cannot be read or is not a valid
// indexed track file.
type FileFormatError struct {
	Path string
	Err  error
}

func (e *FileFormatError) Error() string {
	return fmt.Sprintf("invalid track file %q: %v", e.Path, e.Err)
}

func (e *FileFormatError) Unwrap() error {
	return e.Err
}

func formatError(path string, format string, args ...interface{}) error {
	return &FileFormatError{Path: path, Err: fmt.Errorf(format, args...)}
}

// BlockDecodeError is returned when a data block cannot be fetched or
// decompressed.
type BlockDecodeError struct {
	Offset, Size uint64
	Err          error
}

func (e *BlockDecodeError) Error() string {
	return fmt.Sprintf("decoding block [%d-%d): %v", e.Offset, e.Offset+e.Size, e.Err)
}

func (e *BlockDecodeError) Unwrap() error {
	return e.Err
}
