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

package bowtie

import (
	"errors"
	"fmt"
	"io"

	"github.com/exascience/rnaseq/internal"
)

// ErrUnrecognizedFormat is matched by every *FormatError.
var ErrUnrecognizedFormat = errors.New("unrecognized library format")

// A FormatError reports a raw library that is neither FASTA nor FASTQ.
type FormatError struct {
	Path  string
	First byte
	Empty bool
}

func (e *FormatError) Error() string {
	if e.Empty {
		return fmt.Sprintf("%v: empty library, expected fasta or fastq", e.Path)
	}
	return fmt.Sprintf("%v: unrecognized first character %q, expected fasta or fastq", e.Path, e.First)
}

// Is reports whether target is ErrUnrecognizedFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrUnrecognizedFormat
}

// Input format flags as passed to bowtie.
const (
	FastaFlag = "-f"
	FastqFlag = "-q"
)

// Sniff returns the bowtie input format flag for a raw library,
// based only on its first character. Compressed files are
// decompressed transparently.
func Sniff(path string) (flag string, err error) {
	input, err := internal.Open(path)
	if err != nil {
		return "", err
	}
	defer internal.Close(input, &err)
	first, err := input.ReadByte()
	if err == io.EOF {
		return "", &FormatError{Path: path, Empty: true}
	} else if err != nil {
		return "", err
	}
	switch first {
	case '>':
		return FastaFlag, nil
	case '@':
		return FastqFlag, nil
	default:
		return "", &FormatError{Path: path, First: first}
	}
}
