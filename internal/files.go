// rnaseq: an RNA-Seq alignment, quantification and aggregation pipeline.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/exascience/rnaseq/blob/master/LICENSE.txt>.

package internal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/shenwei356/xopen"
)

// Directory returns the sorted names of the entries of the given
// directory. If file is not a directory, it returns its base name.
func Directory(file string) (files []string, err error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{filepath.Base(file)}, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() {
		nerr := f.Close()
		if err == nil {
			err = nerr
		}
	}()
	files, err = f.Readdirnames(0)
	sort.Strings(files)
	return files, err
}

// FullPathname returns filename as an absolute path, relative to the
// current working directory.
func FullPathname(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		return filename, nil
	}
	wd, err := os.Getwd()
	return filepath.Join(wd, filename), err
}

const maxMkdirAttempts = 8

// EnsureParentDirs creates all missing parent directories of path.
// It is idempotent, and retries a bounded number of times when a
// concurrent process removes or creates part of the path in between.
func EnsureParentDirs(path string) (err error) {
	dir := filepath.Dir(path)
	for attempt := 0; attempt < maxMkdirAttempts; attempt++ {
		if info, serr := os.Stat(dir); serr == nil {
			if info.IsDir() {
				return nil
			}
			return fmt.Errorf("%v exists and is not a directory", dir)
		}
		if err = os.MkdirAll(dir, 0700); err == nil {
			return nil
		}
	}
	return fmt.Errorf("cannot create parent directories of %v: %w", path, err)
}

// An Input is an input file that is transparently decompressed
// when it is gzip, xz, zstd or bzip2 compressed.
type Input struct {
	*bufio.Reader
	closer io.Closer
}

// Close the input file.
func (input *Input) Close() error {
	return input.closer.Close()
}

// Open an input file. "-" denotes standard input.
func Open(name string) (*Input, error) {
	r, err := xopen.Ropen(name)
	if err == nil {
		return &Input{r.Reader, r}, nil
	}
	// xopen refuses empty files, but empty inputs are valid here
	if info, serr := os.Stat(name); serr == nil && info.Mode().IsRegular() && info.Size() == 0 {
		f, ferr := os.Open(name)
		if ferr != nil {
			return nil, ferr
		}
		return &Input{bufio.NewReader(f), f}, nil
	}
	return nil, err
}

// Create an output file, creating its parent directories first.
// The output is compressed when the name ends in a compression
// suffix such as .gz.
func Create(name string) (*xopen.Writer, error) {
	if err := EnsureParentDirs(name); err != nil {
		return nil, err
	}
	return xopen.Wopen(name)
}

// Close is f.Close() with the first error kept in *err.
func Close(f io.Closer, err *error) {
	if nerr := f.Close(); nerr != nil && *err == nil {
		*err = nerr
	}
}
