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

// Package tsv splits aggregate tables that have too many columns for
// spreadsheet applications into two tables at a pivot library.
package tsv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/exascience/rnaseq/internal"
)

// ErrNoSplit is returned for headers that cannot be split.
var ErrNoSplit = errors.New("cannot split table")

// IsLibrary reports whether a column header names a library: its
// first underscore separated part starts with R and a digit, and there
// is at least one more part.
func IsLibrary(header string) bool {
	parts := strings.Split(header, "_")
	return len(parts) >= 2 && len(parts[0]) >= 2 && parts[0][0] == 'R' && parts[0][1] >= '0' && parts[0][1] <= '9'
}

// PivotToken returns the token that identifies the column of the
// pivot library.
func PivotToken(pivot int) string {
	return fmt.Sprintf("R%02d", pivot)
}

// Ranges determine how the columns of a table are distributed over
// the two split tables. The first table has the columns before
// SplitPoint and from RightStart on, the second table has the columns
// before LeftEnd-1 and from SplitPoint on.
type Ranges struct {
	LeftEnd, SplitPoint, RightStart int
}

// HeaderRanges scans the columns of a header for the run of library
// columns and the pivot library column.
func HeaderRanges(header []string, pivot int) (Ranges, error) {
	token := PivotToken(pivot)
	r := Ranges{LeftEnd: 1}
	found, pastLibraries := false, false
	for _, column := range header {
		r.RightStart++
		if strings.Contains(column, token) {
			for i, c := range header {
				if c == column {
					r.SplitPoint = i
					break
				}
			}
			found = true
		}
		if IsLibrary(column) {
			pastLibraries = true
			continue
		}
		if pastLibraries {
			if !found {
				return Ranges{}, fmt.Errorf("%w: no column for library %v", ErrNoSplit, token)
			}
			return r, nil
		}
		r.LeftEnd++
	}
	if !pastLibraries {
		return Ranges{}, fmt.Errorf("%w: no library columns", ErrNoSplit)
	}
	return Ranges{}, fmt.Errorf("%w: no columns after the library columns", ErrNoSplit)
}

// Columns returns the columns of a line for the first and second
// split table.
func (r Ranges) Columns(columns []string) (first, second []string) {
	first = append(append(first, columns[:min(r.SplitPoint, len(columns))]...), columns[min(r.RightStart, len(columns)):]...)
	second = append(append(second, columns[:min(r.LeftEnd-1, len(columns))]...), columns[min(r.SplitPoint, len(columns)):]...)
	return first, second
}

// OutputNames returns the names of the two split tables for a file
// named stem.ext: stem.1.ext and stem.2.ext.
func OutputNames(filename string) (string, string) {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	if ext == "" {
		return stem + ".1.", stem + ".2."
	}
	return stem + ".1" + ext, stem + ".2" + ext
}

func splitLine(line string) []string {
	return strings.Split(strings.TrimRight(line, "\r\n"), "\t")
}

func writeLine(w *bufio.Writer, columns []string) {
	w.WriteString(strings.Join(columns, "\t"))
	w.WriteByte('\n')
}

// SplitTable splits the table read from r into the tables written to
// w1 and w2, line by line.
func SplitTable(r io.Reader, w1, w2 io.Writer, pivot int) (Ranges, error) {
	input := bufio.NewReader(r)
	out1, out2 := bufio.NewWriter(w1), bufio.NewWriter(w2)
	header, err := input.ReadString('\n')
	if err != nil && (err != io.EOF || header == "") {
		if err == io.EOF {
			return Ranges{}, fmt.Errorf("%w: empty table", ErrNoSplit)
		}
		return Ranges{}, err
	}
	columns := splitLine(header)
	ranges, err := HeaderRanges(columns, pivot)
	if err != nil {
		return Ranges{}, err
	}
	for {
		first, second := ranges.Columns(columns)
		writeLine(out1, first)
		writeLine(out2, second)
		line, err := input.ReadString('\n')
		if line == "" && err == io.EOF {
			break
		} else if err != nil && err != io.EOF {
			return ranges, err
		}
		columns = splitLine(line)
	}
	if err := out1.Flush(); err != nil {
		return ranges, err
	}
	return ranges, out2.Flush()
}

// Split splits a table file into two table files at the pivot
// library, and returns their names.
func Split(filename string, pivot int) (file1, file2 string, err error) {
	input, err := internal.Open(filename)
	if err != nil {
		return "", "", err
	}
	defer internal.Close(input, &err)
	file1, file2 = OutputNames(filename)
	out1, err := internal.Create(file1)
	if err != nil {
		return "", "", err
	}
	defer internal.Close(out1, &err)
	out2, err := internal.Create(file2)
	if err != nil {
		return "", "", err
	}
	defer internal.Close(out2, &err)
	if _, err = SplitTable(input, out1, out2, pivot); err != nil {
		return "", "", fmt.Errorf("%v: %w", filename, err)
	}
	return file1, file2, nil
}
