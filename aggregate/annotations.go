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

// Package aggregate merges the quantification results of all
// libraries with the model lengths and annotation sources into one
// hit table and one RPKM table.
package aggregate

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/exascience/rnaseq/internal"
)

// Isoforms is the number of isoform rows written for every model.
const Isoforms = 10

// None is the value of annotation fields that a source does not
// provide.
const None = "None"

// A Source is one annotation file. A source with one header is a two
// column file of model and content, where consecutive lines of the
// same model annotate its consecutive isoforms. A source with more
// headers has one line per model with one field per header, and that
// record annotates all isoforms of the model.
type Source struct {
	Name    string
	File    string
	Headers []string
}

// Width returns the number of columns a source contributes.
func (source Source) Width() int {
	return len(source.Headers)
}

// DefaultSources returns the annotation sources in annotationFolder,
// in the order in which they appear in the aggregate tables.
func DefaultSources(annotationFolder string) []Source {
	join := func(name string) string { return filepath.Join(annotationFolder, name) }
	return []Source{
		{Name: "keyword", File: join("Keywords.tsv"), Headers: []string{"Keywords"}},
		{Name: "nr", File: join("nr_annotation.tsv"), Headers: []string{"nr Annotation"}},
		{Name: "swiss", File: join("Swiss_annotation.tsv"), Headers: []string{"Swiss annotation"}},
		{Name: "trembl", File: join("trEMBL_annotation.tsv"), Headers: []string{"trEMBL annotation"}},
		{Name: "phyto", File: join(filepath.Join("v6", "Gmax_109_annotation_info.txt")), Headers: []string{
			"PFAM annotation",
			"Panther annotation",
			"KOG annotation",
			"KEGG ec",
			"KEGG Orthology",
			"Best Arabidopsis Hit name",
			"Best Arabidopsis Hit symbol",
			"Best Arabidopsis Hit defline",
		}},
		{Name: "pfam", File: join("PFAMAnnotation.tsv"), Headers: []string{"PFAM Annotation"}},
	}
}

type annotationKey struct {
	model  string
	index  int
	source string
}

// Annotations hold the fields of all sources, keyed by model,
// isoform index and source.
type Annotations struct {
	Sources []Source
	// Dropped counts, per source, the lines beyond the last isoform
	// of a model.
	Dropped map[string]int
	fields  map[annotationKey][]string
}

func newAnnotations(sources []Source) *Annotations {
	return &Annotations{
		Sources: sources,
		Dropped: make(map[string]int),
		fields:  make(map[annotationKey][]string),
	}
}

// Lookup returns the fields of a source for an isoform of a model.
// Fields without annotation are None.
func (a *Annotations) Lookup(model string, index int, source Source) []string {
	if fields, ok := a.fields[annotationKey{model, index, source.Name}]; ok {
		return fields
	}
	fields := make([]string, source.Width())
	for i := range fields {
		fields[i] = None
	}
	return fields
}

// Headers returns the column headers of all sources.
func (a *Annotations) Headers() (headers []string) {
	for _, source := range a.Sources {
		headers = append(headers, source.Headers...)
	}
	return headers
}

// Width returns the number of annotation columns.
func (a *Annotations) Width() (width int) {
	for _, source := range a.Sources {
		width += source.Width()
	}
	return width
}

func cleanField(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\t", " "))
	if s == "" {
		return None
	}
	return s
}

func (a *Annotations) readContents(r io.Reader, source Source) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<30)
	scanner.Scan() // header
	var lastModel string
	index := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		model, content, _ := strings.Cut(line, "\t")
		model = strings.TrimSpace(model)
		if model != lastModel {
			lastModel, index = model, 0
		}
		index++
		if index > Isoforms {
			a.Dropped[source.Name]++
			continue
		}
		content = cleanField(content)
		key := annotationKey{model, index, source.Name}
		if previous, ok := a.fields[key]; ok {
			a.fields[key] = []string{previous[0] + "; " + content}
		} else {
			a.fields[key] = []string{content}
		}
	}
	return scanner.Err()
}

func (a *Annotations) readRecords(r io.Reader, source Source) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<30)
	scanner.Scan() // header
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		record := make([]string, source.Width())
		for i := range record {
			if i+1 < len(fields) {
				record[i] = cleanField(fields[i+1])
			} else {
				record[i] = None
			}
		}
		model := strings.TrimSpace(fields[0])
		for index := 1; index <= Isoforms; index++ {
			a.fields[annotationKey{model, index, source.Name}] = record
		}
	}
	return scanner.Err()
}

// LoadAnnotations reads all annotation sources. Each file has one
// header line, which is skipped.
func LoadAnnotations(sources []Source) (*Annotations, error) {
	a := newAnnotations(sources)
	for _, source := range sources {
		if err := a.load(source); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Annotations) load(source Source) (err error) {
	input, err := internal.Open(source.File)
	if err != nil {
		return fmt.Errorf("annotation source %v: %w", source.Name, err)
	}
	defer internal.Close(input, &err)
	if source.Width() == 1 {
		err = a.readContents(input, source)
	} else {
		err = a.readRecords(input, source)
	}
	if err != nil {
		return fmt.Errorf("annotation source %v: %v: %w", source.Name, source.File, err)
	}
	return nil
}

// ModelLengths are the cds and cDNA lengths of the models, as listed
// in the length tables.
type ModelLengths struct {
	CDS, CDNA map[string]string
}

// Lookup returns the cds and cDNA lengths of a model. Unknown lengths
// are 0.
func (lengths *ModelLengths) Lookup(model string) (cds, cdna string) {
	cds, cdna = "0", "0"
	if l, ok := lengths.CDS[model]; ok {
		cds = l
	}
	if l, ok := lengths.CDNA[model]; ok {
		cdna = l
	}
	return cds, cdna
}

// DefaultLengthTables returns the cds and cDNA length tables in
// annotationFolder.
func DefaultLengthTables(annotationFolder string) (cds, cdna string) {
	return filepath.Join(annotationFolder, "cds_Length.tsv"), filepath.Join(annotationFolder, "cDNA_Length.tsv")
}

func readLengthTable(filename string) (lengths map[string]string, err error) {
	input, err := internal.Open(filename)
	if err != nil {
		return nil, err
	}
	defer internal.Close(input, &err)
	lengths = make(map[string]string)
	scanner := bufio.NewScanner(input)
	scanner.Scan() // header
	for lineNumber := 2; scanner.Scan(); lineNumber++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("%v: line %v has no length", filename, lineNumber)
		}
		lengths[fields[0]] = strings.TrimSpace(fields[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%v: %w", filename, err)
	}
	return lengths, nil
}

// LoadLengths reads the cds and cDNA length tables. Each file has one
// header line, which is skipped.
func LoadLengths(cds, cdna string) (lengths *ModelLengths, err error) {
	lengths = &ModelLengths{}
	if lengths.CDS, err = readLengthTable(cds); err != nil {
		return nil, err
	}
	if lengths.CDNA, err = readLengthTable(cdna); err != nil {
		return nil, err
	}
	return lengths, nil
}
