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

// Package rpkm computes Reads Per Kilobase of transcript per Million
// mapped reads from bowtie alignment output.
//
// For a model with h hits and length l, in a library with m hits in
// total, the RPKM value is h / (l/1000) / (m/1000000).
package rpkm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/exascience/pargo/pipeline"
)

// ErrDivisionByZero is reported for models whose length is zero.
// Their RPKM value is 0, and they are listed in Result.ZeroLength.
var ErrDivisionByZero = errors.New("model length is zero")

// Hits are the number of alignments per model, together with the
// order in which the models were first seen.
type Hits struct {
	Counts map[string]int
	Order  []string
}

// Total returns the sum of all hits.
func (hits *Hits) Total() (total int) {
	for _, n := range hits.Counts {
		total += n
	}
	return total
}

type hitBatch struct {
	counts  map[string]int
	order   []string
	lines   int
	stopped int // index of the first malformed line, or -1
}

func field(line string, column int) (string, bool) {
	line = strings.TrimSpace(line)
	for i := 0; i < column; i++ {
		j := strings.IndexByte(line, '\t')
		if j < 0 {
			return "", false
		}
		line = line[j+1:]
	}
	if j := strings.IndexByte(line, '\t'); j >= 0 {
		line = line[:j]
	}
	return line, true
}

// CountHits counts the lines of bowtie output per model, where the
// model is found in the given tab separated column. The first line
// that does not have that column ends the usable data: the hits of
// the lines before it are kept, the rest of the input is ignored, and
// stoppedAt is its line number. stoppedAt is 0 if all of the input
// was read.
func CountHits(r io.Reader, column int) (hits *Hits, stoppedAt int, err error) {
	hits = &Hits{Counts: make(map[string]int)}
	var p pipeline.Pipeline
	p.Source(pipeline.NewScanner(r))
	p.Add(pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
		lines := data.([]string)
		batch := &hitBatch{counts: make(map[string]int), lines: len(lines), stopped: -1}
		for i, line := range lines {
			model, ok := field(line, column)
			if !ok {
				batch.stopped = i
				break
			}
			if _, seen := batch.counts[model]; !seen {
				batch.order = append(batch.order, model)
			}
			batch.counts[model]++
		}
		return batch
	})))
	lineNumber := 0
	p.Add(pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
		if stoppedAt > 0 {
			return nil
		}
		batch := data.(*hitBatch)
		for _, model := range batch.order {
			if _, seen := hits.Counts[model]; !seen {
				hits.Order = append(hits.Order, model)
			}
			hits.Counts[model] += batch.counts[model]
		}
		if batch.stopped >= 0 {
			stoppedAt = lineNumber + batch.stopped + 1
		}
		lineNumber += batch.lines
		return nil
	})))
	p.Run()
	if err = p.Err(); err != nil {
		return nil, 0, err
	}
	return hits, stoppedAt, nil
}

// Lengths are the lengths of the models of a length table, in table
// order.
type Lengths struct {
	Models []string
	Length map[string]int
}

// ReadLengths reads a tab separated length table. The model is the
// first field of each line, and its length is the number of
// characters of the given column. Blank lines are skipped. When a
// model is listed more than once, the last length is used.
func ReadLengths(r io.Reader, column int) (*Lengths, error) {
	if column < 1 {
		return nil, fmt.Errorf("invalid length column %v", column)
	}
	lengths := &Lengths{Length: make(map[string]int)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<30)
	for lineNumber := 1; scanner.Scan(); lineNumber++ {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		token, ok := field(line, column)
		if !ok {
			return nil, fmt.Errorf("length table line %v has no column %v", lineNumber, column)
		}
		model, _ := field(line, 0)
		if _, seen := lengths.Length[model]; !seen {
			lengths.Models = append(lengths.Models, model)
		}
		lengths.Length[model] = len(token)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lengths, nil
}

// A Row is one line of a quantification result.
type Row struct {
	Model string
	Hits  int
	RPKM  float64
}

// A Result is the quantification of one library.
type Result struct {
	Rows       []Row
	TotalHits  int
	ZeroLength []string
}

// Compute returns the RPKM values of all models of the length table.
// Models with zero length, including models with hits that are
// missing from the length table, get an RPKM of 0 and are listed in
// ZeroLength. When there are no hits at all, every RPKM is 0.
func Compute(hits *Hits, lengths *Lengths) *Result {
	result := &Result{TotalHits: hits.Total()}
	perMillion := float64(result.TotalHits) / 1000000
	rpkm := func(model string, n, length int) float64 {
		if length == 0 {
			result.ZeroLength = append(result.ZeroLength, model)
			return 0
		}
		if result.TotalHits == 0 {
			return 0
		}
		return float64(n) / (float64(length) / 1000) / perMillion
	}
	result.Rows = make([]Row, 0, len(lengths.Models))
	for _, model := range lengths.Models {
		n := hits.Counts[model]
		result.Rows = append(result.Rows, Row{Model: model, Hits: n, RPKM: rpkm(model, n, lengths.Length[model])})
	}
	for _, model := range hits.Order {
		if _, ok := lengths.Length[model]; !ok {
			rpkm(model, hits.Counts[model], 0)
		}
	}
	return result
}

// FormatRPKM returns the shortest decimal representation of an RPKM
// value that converts back to the same value.
func FormatRPKM(rpkm float64) string {
	return strconv.FormatFloat(rpkm, 'f', -1, 64)
}

// Write writes a result as a tab separated table, with a header line
// naming the library.
func Write(w io.Writer, libraryName string, result *Result) error {
	out := bufio.NewWriter(w)
	fmt.Fprintf(out, "Model Name\t%v rpkm\t%v hits\n", libraryName, libraryName)
	for _, row := range result.Rows {
		out.WriteString(row.Model)
		out.WriteByte('\t')
		out.WriteString(FormatRPKM(row.RPKM))
		out.WriteByte('\t')
		out.WriteString(strconv.Itoa(row.Hits))
		out.WriteByte('\n')
	}
	return out.Flush()
}

func logZeroLength(libraryName string, result *Result) {
	if len(result.ZeroLength) == 0 {
		return
	}
	const maxListed = 10
	listed := result.ZeroLength
	if len(listed) > maxListed {
		listed = listed[:maxListed]
	}
	log.Printf("%v: %v models with zero length got RPKM 0 (%v): %v\n", libraryName, len(result.ZeroLength), ErrDivisionByZero, strings.Join(listed, ", "))
}
