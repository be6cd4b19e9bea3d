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
	"io"
	"log"
	"path/filepath"
	"strconv"
	"time"

	"github.com/exascience/rnaseq/config"
	"github.com/exascience/rnaseq/internal"
)

// Preamble are the headers of the columns before the library columns.
var Preamble = []string{"Model", "cds Length", "cDNA Length", "Hit Number"}

// A Table combines everything needed to write the aggregate tables.
// All of it is loaded before the first row is written.
type Table struct {
	Results     *Results
	Lengths     *ModelLengths
	Annotations *Annotations
}

// Header returns the header of a table whose library columns have the
// given suffix, such as "Hits" or "RPKMs".
func (t *Table) Header(suffix string) []string {
	header := append([]string(nil), Preamble...)
	for _, lib := range t.Results.Libraries {
		header = append(header, lib.Name+" "+suffix)
	}
	return append(header, t.Annotations.Headers()...)
}

// Width returns the number of columns of both tables.
func (t *Table) Width() int {
	return len(Preamble) + len(t.Results.Libraries) + t.Annotations.Width()
}

func writeFields(out *bufio.Writer, fields []string, first bool) {
	for i, field := range fields {
		if !first || i > 0 {
			out.WriteByte('\t')
		}
		out.WriteString(field)
	}
}

// Write writes the hit table to hits and the RPKM table to rpkms,
// and returns the number of rows written to each, excluding the
// header. Both tables have the same rows: one row for each isoform
// of each model.
func (t *Table) Write(hits, rpkms io.Writer) (rows int, err error) {
	hitOut, rpkmOut := bufio.NewWriter(hits), bufio.NewWriter(rpkms)
	writeFields(hitOut, t.Header("Hits"), true)
	hitOut.WriteByte('\n')
	writeFields(rpkmOut, t.Header("RPKMs"), true)
	rpkmOut.WriteByte('\n')
	hitValues := make([]string, len(t.Results.Libraries))
	rpkmValues := make([]string, len(t.Results.Libraries))
	for _, model := range t.Results.Models() {
		cds, cdna := t.Lengths.Lookup(model)
		for i, lib := range t.Results.Libraries {
			hitValues[i], rpkmValues[i] = "0", "0"
			if v, ok := lib.Hits[model]; ok {
				hitValues[i] = v
			}
			if v, ok := lib.RPKMs[model]; ok {
				rpkmValues[i] = v
			}
		}
		for index := 1; index <= Isoforms; index++ {
			preamble := []string{model, cds, cdna, strconv.Itoa(index)}
			for _, p := range []struct {
				out    *bufio.Writer
				values []string
			}{{hitOut, hitValues}, {rpkmOut, rpkmValues}} {
				writeFields(p.out, preamble, true)
				writeFields(p.out, p.values, false)
				for _, source := range t.Annotations.Sources {
					writeFields(p.out, t.Annotations.Lookup(model, index, source), false)
				}
				p.out.WriteByte('\n')
			}
			rows++
		}
	}
	if err = hitOut.Flush(); err != nil {
		return rows, err
	}
	return rows, rpkmOut.Flush()
}

// StampLayout formats the time stamp in aggregate file names as
// HHMM-MMDDYY.
const StampLayout = "1504-010206"

// OutputNames returns the names of the hit and RPKM tables in the
// aggregate output folder.
func OutputNames(folder string, stamp time.Time, highest int) (hits, rpkms string) {
	name := "RNASeq-" + stamp.Format(StampLayout)
	hits = filepath.Join(folder, "Hits", fmt.Sprintf("%v.Hits.R%02d.tsv", name, highest))
	rpkms = filepath.Join(folder, "RPKMs", fmt.Sprintf("%v.RPKM.R%02d.tsv", name, highest))
	return hits, rpkms
}

// Options configure an aggregation run.
type Options struct {
	AnnotationFolder string
	ResultFolder     string
	OutputFolder     string
	Highest          int
	Now              func() time.Time
	Metrics          *internal.Metrics
}

// OptionsFromConfig returns the aggregation options of a
// configuration. Results are read from the rpkm folder, or from the
// rpkm output folder when no rpkm folder is set. highest is the
// highest library number known from discovery, or 0.
func OptionsFromConfig(c *config.Config, highest int, metrics *internal.Metrics) Options {
	results := c.RPKMFolder
	if results == "" {
		results = c.RPKMOutput
	}
	return Options{
		AnnotationFolder: c.AnnotationFolder,
		ResultFolder:     results,
		OutputFolder:     c.AggregateOutput,
		Highest:          highest,
		Now:              time.Now,
		Metrics:          metrics,
	}
}

// A Report summarizes an aggregation run.
type Report struct {
	Libraries []string
	Missing   []string
	Highest   int
	Rows      int
	HitsFile  string
	RPKMFile  string
	Dropped   map[string]int
}

// Load reads the results, lengths and annotations for an aggregation.
func Load(options Options) (*Table, error) {
	annotations, err := LoadAnnotations(DefaultSources(options.AnnotationFolder))
	if err != nil {
		return nil, err
	}
	lengths, err := LoadLengths(DefaultLengthTables(options.AnnotationFolder))
	if err != nil {
		return nil, err
	}
	results, err := LoadResults(options.ResultFolder, options.Highest)
	if err != nil {
		return nil, err
	}
	return &Table{Results: results, Lengths: lengths, Annotations: annotations}, nil
}

// Run loads all inputs and writes the hit and RPKM tables.
func Run(options Options) (report *Report, err error) {
	table, err := Load(options)
	if err != nil {
		return nil, err
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	report = &Report{
		Missing: table.Results.Missing,
		Highest: table.Results.Highest,
		Dropped: table.Annotations.Dropped,
	}
	for _, lib := range table.Results.Libraries {
		report.Libraries = append(report.Libraries, lib.Name)
	}
	report.HitsFile, report.RPKMFile = OutputNames(options.OutputFolder, now(), report.Highest)
	hits, err := internal.Create(report.HitsFile)
	if err != nil {
		return nil, err
	}
	defer internal.Close(hits, &err)
	rpkms, err := internal.Create(report.RPKMFile)
	if err != nil {
		return nil, err
	}
	defer internal.Close(rpkms, &err)
	if report.Rows, err = table.Write(hits, rpkms); err != nil {
		return nil, err
	}
	if len(report.Missing) > 0 {
		log.Printf("Libraries without quantification results: %v\n", report.Missing)
	}
	for source, n := range report.Dropped {
		log.Printf("Annotation source %v: dropped %v lines beyond isoform %v.\n", source, n, Isoforms)
	}
	options.Metrics.ObserveAggregation(report.Rows, len(report.Missing))
	return report, nil
}
