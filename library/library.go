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

// Package library discovers raw RNA-Seq libraries and determines
// which of them still need to be aligned and quantified.
//
// Libraries are identified by the prefix of their file names: a file
// named R07_RNASeq7_W43.fastq belongs to library R07, which has
// number 7.
package library

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"

	"github.com/exascience/rnaseq/internal"
)

// ErrAmbiguousMatch is matched by every *AmbiguousMatchError.
var ErrAmbiguousMatch = errors.New("ambiguous library match")

// An AmbiguousMatchError reports that more than one file in a folder
// belongs to the same library.
type AmbiguousMatchError struct {
	ID     string
	Folder string
	Files  []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("too many files associated with %v in %v: %v", e.ID, e.Folder, strings.Join(e.Files, ", "))
}

// Is reports whether target is ErrAmbiguousMatch.
func (e *AmbiguousMatchError) Is(target error) bool {
	return target == ErrAmbiguousMatch
}

// A Library is one raw RNA-Seq library and the files derived from it.
type Library struct {
	ID                 string
	Number             int
	RawFile            string
	AlignmentFile      string
	QuantificationFile string
}

func (lib *Library) String() string {
	return lib.ID
}

// MaxNumber is the highest accepted library number. Longer digit runs,
// such as date stamps, are not library identifiers.
const MaxNumber = 9999

// FormatID returns the canonical identifier of a library number.
func FormatID(number int) string {
	return fmt.Sprintf("R%02d", number)
}

// ParseID extracts the library identifier and number from a file
// name of the form <ID>_..., where ID is R followed by digits and the
// number is at most MaxNumber.
func ParseID(filename string) (id string, number int, ok bool) {
	i := strings.IndexByte(filename, '_')
	if i < 2 || filename[0] != 'R' {
		return "", 0, false
	}
	id = filename[:i]
	n, err := strconv.Atoi(id[1:])
	if err != nil || n < 0 || n > MaxNumber || id[1] == '+' || id[1] == '-' {
		return "", 0, false
	}
	return id, n, true
}

// An Index holds the discovered libraries, ordered by number.
type Index struct {
	Libraries []*Library
	Highest   int
	byID      map[string]*Library
}

// Lookup returns the library with the given identifier.
func (index *Index) Lookup(id string) (*Library, bool) {
	lib, ok := index.byID[id]
	return lib, ok
}

// A WorkSet is a set of libraries that still need processing.
type WorkSet struct {
	bits  *bitset.BitSet
	index *Index
}

// Contains reports whether the library with the given identifier is
// in the work set.
func (w *WorkSet) Contains(id string) bool {
	lib, ok := w.index.Lookup(id)
	return ok && w.bits.Test(uint(lib.Number))
}

// Len returns the number of libraries in the work set.
func (w *WorkSet) Len() int {
	return int(w.bits.Count())
}

// Libraries returns the libraries in the work set, ordered by number.
func (w *WorkSet) Libraries() (libs []*Library) {
	for _, lib := range w.index.Libraries {
		if w.bits.Test(uint(lib.Number)) {
			libs = append(libs, lib)
		}
	}
	return libs
}

// IDs returns the identifiers of the libraries in the work set,
// ordered by number.
func (w *WorkSet) IDs() (ids []string) {
	for _, lib := range w.Libraries() {
		ids = append(ids, lib.ID)
	}
	return ids
}

// Discover enumerates the libraries in rawFolder, and computes the
// work set of libraries that have no file in quantifiedFolder.
//
// Discover does not modify the file system, and can be called
// repeatedly.
func Discover(rawFolder, quantifiedFolder string) (*Index, *WorkSet, error) {
	entries, err := internal.Directory(rawFolder)
	if err != nil {
		return nil, nil, fmt.Errorf("reading raw folder: %w", err)
	}
	index := &Index{byID: make(map[string]*Library)}
	byNumber := make(map[int]*Library)
	for _, entry := range entries {
		path := filepath.Join(rawFolder, entry)
		if info, err := os.Stat(path); err != nil {
			return nil, nil, err
		} else if info.IsDir() {
			continue
		}
		id, number, ok := ParseID(entry)
		if !ok {
			log.Printf("Skipping %v in %v: file name does not start with a library identifier.\n", entry, rawFolder)
			continue
		}
		if lib, dup := byNumber[number]; dup {
			return nil, nil, &AmbiguousMatchError{ID: id, Folder: rawFolder, Files: []string{filepath.Base(lib.RawFile), entry}}
		}
		lib := &Library{ID: id, Number: number, RawFile: path}
		byNumber[number] = lib
		index.byID[id] = lib
		if number > index.Highest {
			index.Highest = number
		}
	}
	for _, lib := range byNumber {
		index.Libraries = append(index.Libraries, lib)
	}
	sort.Slice(index.Libraries, func(i, j int) bool {
		return index.Libraries[i].Number < index.Libraries[j].Number
	})

	quantified, err := quantifiedFiles(quantifiedFolder)
	if err != nil {
		return nil, nil, err
	}
	work := &WorkSet{bits: bitset.New(uint(index.Highest + 1)), index: index}
	for _, lib := range index.Libraries {
		switch files := quantified[lib.ID]; len(files) {
		case 0:
			work.bits.Set(uint(lib.Number))
		case 1:
			lib.QuantificationFile = filepath.Join(quantifiedFolder, files[0])
		default:
			return nil, nil, &AmbiguousMatchError{ID: lib.ID, Folder: quantifiedFolder, Files: files}
		}
	}
	return index, work, nil
}

// quantifiedFiles maps library identifiers to the names of the files
// in folder that start with them.
func quantifiedFiles(folder string) (map[string][]string, error) {
	files := make(map[string][]string)
	if folder == "" {
		return files, nil
	}
	entries, err := internal.Directory(folder)
	if os.IsNotExist(err) {
		log.Printf("Quantification folder %v does not exist, all libraries need processing.\n", folder)
		return files, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading quantification folder: %w", err)
	}
	for _, entry := range entries {
		id := entry
		if i := strings.IndexByte(entry, '_'); i >= 0 {
			id = entry[:i]
		}
		files[id] = append(files[id], entry)
	}
	return files, nil
}
