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

package rpkm

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/exascience/pargo/parallel"

	"github.com/exascience/rnaseq/bowtie"
	"github.com/exascience/rnaseq/internal"
	"github.com/exascience/rnaseq/library"
)

// ResultSuffix is the suffix of quantification result files.
const ResultSuffix = ".rpkm"

// A Job quantifies one alignment file into one result file.
type Job struct {
	Library   string
	Alignment string
	Output    string
}

// LibraryName returns the library name derived from a file name: the
// part of its base name before the first underscore.
func LibraryName(filename string) string {
	base := filepath.Base(filename)
	if i := strings.IndexByte(base, '_'); i >= 0 {
		return base[:i]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputName returns the result file for an alignment file in the
// given output folder.
func OutputName(alignment, outputFolder string) string {
	base := filepath.Base(alignment)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputFolder, stem+ResultSuffix)
}

// NewJob returns the job for an alignment file.
func NewJob(alignment, outputFolder string) Job {
	return Job{
		Library:   LibraryName(alignment),
		Alignment: alignment,
		Output:    OutputName(alignment, outputFolder),
	}
}

// LibraryJob returns the job for an aligned library and sets its
// QuantificationFile.
func LibraryJob(lib *library.Library, outputFolder string) Job {
	job := NewJob(lib.AlignmentFile, outputFolder)
	job.Library = lib.ID
	lib.QuantificationFile = job.Output
	return job
}

// DirectoryJobs returns one job for every alignment file in dir, in
// file name order.
func DirectoryJobs(dir, outputFolder string) (jobs []Job, err error) {
	files, err := internal.Directory(dir)
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if strings.HasSuffix(file, bowtie.AlignmentSuffix) {
			jobs = append(jobs, NewJob(filepath.Join(dir, file), outputFolder))
		}
	}
	return jobs, nil
}

// ReadLengthFile reads a possibly compressed length table.
func ReadLengthFile(filename string, column int) (lengths *Lengths, err error) {
	input, err := internal.Open(filename)
	if err != nil {
		return nil, err
	}
	defer internal.Close(input, &err)
	lengths, err = ReadLengths(input, column)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", filename, err)
	}
	return lengths, nil
}

// Quantify counts the hits in the alignment file of job, computes
// their RPKM values, and writes the result file. The length table is
// only read.
func Quantify(job Job, lengths *Lengths, column int) (result *Result, err error) {
	input, err := internal.Open(job.Alignment)
	if err != nil {
		return nil, err
	}
	defer internal.Close(input, &err)
	hits, stoppedAt, err := CountHits(input, column)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", job.Alignment, err)
	}
	if stoppedAt > 0 {
		log.Printf("%v: stopped reading at malformed line %v.\n", job.Alignment, stoppedAt)
	}
	result = Compute(hits, lengths)
	logZeroLength(job.Library, result)
	output, err := internal.Create(job.Output)
	if err != nil {
		return nil, err
	}
	defer internal.Close(output, &err)
	if err = Write(output, job.Library, result); err != nil {
		return nil, fmt.Errorf("%v: %w", job.Output, err)
	}
	return result, nil
}

// A JobResult is the outcome of one job of QuantifyAll.
type JobResult struct {
	Job    Job
	Result *Result
	Err    error
}

// QuantifyAll runs the given jobs in parallel, sharing one length
// table. A failing job does not stop the others. Results are in job
// order.
func QuantifyAll(jobs []Job, lengths *Lengths, column int, metrics *internal.Metrics) []JobResult {
	if len(jobs) == 0 {
		return nil
	}
	results := make([]JobResult, len(jobs))
	parallel.Range(0, len(jobs), 0, func(low, high int) {
		for i := low; i < high; i++ {
			result, err := Quantify(jobs[i], lengths, column)
			results[i] = JobResult{Job: jobs[i], Result: result, Err: err}
		}
	})
	for _, r := range results {
		if r.Err != nil {
			log.Printf("Quantification of %v failed: %v\n", r.Job.Library, r.Err)
			metrics.ObserveQuantification("failed", 0)
			continue
		}
		log.Printf("Quantified %v into %v.\n", r.Job.Library, r.Job.Output)
		metrics.ObserveQuantification("succeeded", len(r.Result.ZeroLength))
	}
	return results
}
