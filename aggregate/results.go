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

package aggregate

import (
	"bufio"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/exascience/rnaseq/internal"
	"github.com/exascience/rnaseq/library"
)

// A LibraryResult is the content of the quantification result file
// of one library.
type LibraryResult struct {
	ID     string
	Number int
	Name   string
	File   string
	Models []string // in file order
	Hits   map[string]string
	RPKMs  map[string]string
}

// Results are the quantification results of all libraries.
type Results struct {
	Libraries []*LibraryResult // ordered by number
	Missing   []string
	Highest   int
}

// DisplayName returns the name of a library in the aggregate table
// headers: the first three underscore separated parts of its result
// file name, without extensions.
func DisplayName(filename string) string {
	base := filepath.Base(filename)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	parts := strings.Split(base, "_")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, "_")
}

func readResult(lib *LibraryResult) (err error) {
	input, err := internal.Open(lib.File)
	if err != nil {
		return err
	}
	defer internal.Close(input, &err)
	lib.Hits = make(map[string]string)
	lib.RPKMs = make(map[string]string)
	scanner := bufio.NewScanner(input)
	scanner.Scan() // header
	for lineNumber := 2; scanner.Scan(); lineNumber++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			return fmt.Errorf("%v: line %v has fewer than 3 columns", lib.File, lineNumber)
		}
		model := fields[0]
		if _, seen := lib.Hits[model]; !seen {
			lib.Models = append(lib.Models, model)
		}
		lib.RPKMs[model] = fields[1]
		lib.Hits[model] = fields[2]
	}
	return scanner.Err()
}

// LoadResults reads the result files in folder. Files that are not
// named after a library are skipped. Every library number from 1 up
// to the highest one, which is at least the given highest number, has
// either a result or is listed in Missing. A result file that cannot
// be read also counts as missing.
func LoadResults(folder string, highest int) (*Results, error) {
	if highest > library.MaxNumber {
		return nil, fmt.Errorf("highest library number %v exceeds %v", highest, library.MaxNumber)
	}
	entries, err := internal.Directory(folder)
	if err != nil {
		return nil, fmt.Errorf("reading result folder: %w", err)
	}
	byNumber := make(map[int]*LibraryResult)
	for _, entry := range entries {
		id, number, ok := library.ParseID(entry)
		if !ok {
			log.Printf("Skipping %v in %v: file name does not start with a library identifier.\n", entry, folder)
			continue
		}
		if number > highest {
			highest = number
		}
		if lib, dup := byNumber[number]; dup {
			return nil, &library.AmbiguousMatchError{ID: id, Folder: folder, Files: []string{filepath.Base(lib.File), entry}}
		}
		byNumber[number] = &LibraryResult{ID: id, Number: number, Name: DisplayName(entry), File: filepath.Join(folder, entry)}
	}
	results := &Results{Highest: highest}
	for number := 1; number <= highest; number++ {
		lib, ok := byNumber[number]
		if !ok {
			results.Missing = append(results.Missing, library.FormatID(number))
			continue
		}
		if err := readResult(lib); err != nil {
			log.Printf("Library %v counts as missing: %v\n", lib.ID, err)
			results.Missing = append(results.Missing, library.FormatID(number))
			continue
		}
		results.Libraries = append(results.Libraries, lib)
	}
	return results, nil
}

// Models returns all models of all libraries, in library order and
// then file order, without duplicates.
func (results *Results) Models() (models []string) {
	seen := make(map[string]bool)
	for _, lib := range results.Libraries {
		for _, model := range lib.Models {
			if !seen[model] {
				seen[model] = true
				models = append(models, model)
			}
		}
	}
	return models
}
