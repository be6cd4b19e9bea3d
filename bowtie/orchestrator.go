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
	"bytes"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"time"

	"github.com/exascience/pargo/parallel"

	"github.com/exascience/rnaseq/config"
	"github.com/exascience/rnaseq/internal"
	"github.com/exascience/rnaseq/library"
)

// AlignmentSuffix is appended to the raw file name to name the
// alignment output of a library.
const AlignmentSuffix = ".albwt"

// Options are the bowtie settings shared by all jobs.
type Options struct {
	BowtieFolder  string
	Reference     string // resolved index path
	Threads       int
	Mismatches    int
	ReportAll     bool
	SuppressAbove int
	OutputFolder  string
}

// OptionsFromConfig returns the job options of a configuration, with
// the given resolved index path.
func OptionsFromConfig(c *config.Config, reference string) Options {
	return Options{
		BowtieFolder:  c.BowtieFolder,
		Reference:     reference,
		Threads:       c.Threads,
		Mismatches:    c.Mismatches,
		ReportAll:     c.ReportAll,
		SuppressAbove: c.SuppressAbove,
		OutputFolder:  c.BowtieOutput,
	}
}

// A Job is one fully prepared bowtie invocation.
type Job struct {
	Library *library.Library
	Program string
	Args    []string
	Output  string
}

func (job Job) String() string {
	var buf bytes.Buffer
	buf.WriteString(job.Program)
	for _, arg := range job.Args {
		buf.WriteByte(' ')
		buf.WriteString(arg)
	}
	return buf.String()
}

// A Status classifies the outcome of a job.
type Status int

const (
	// Succeeded jobs exited with status 0.
	Succeeded Status = iota
	// Failed jobs ran and exited with a non-zero status.
	Failed
	// Rejected jobs could not be started, for example because the
	// raw library has an unrecognized format.
	Rejected
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Rejected:
		return "rejected"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// An Outcome is the result of running the job of one library.
type Outcome struct {
	Library  *library.Library
	Status   Status
	ExitCode int
	Err      error
	Output   string
	Duration time.Duration
}

// An Orchestrator runs bowtie jobs for libraries.
type Orchestrator struct {
	Options Options
	Runner  Runner
	Metrics *internal.Metrics
}

// NewOrchestrator returns an orchestrator that runs jobs as
// operating system processes.
func NewOrchestrator(options Options, metrics *internal.Metrics) *Orchestrator {
	return &Orchestrator{Options: options, Runner: ExecRunner{}, Metrics: metrics}
}

// Command prepares the bowtie job for a library.
func (o *Orchestrator) Command(lib *library.Library) (Job, error) {
	format, err := Sniff(lib.RawFile)
	if err != nil {
		return Job{}, err
	}
	output := filepath.Join(o.Options.OutputFolder, filepath.Base(lib.RawFile)+AlignmentSuffix)
	args := []string{
		format,
		"-p", strconv.Itoa(o.Options.Threads),
		"-v", strconv.Itoa(o.Options.Mismatches),
	}
	if o.Options.ReportAll {
		args = append(args, "-a")
	}
	args = append(args,
		"-m", strconv.Itoa(o.Options.SuppressAbove),
		o.Options.Reference, lib.RawFile, output)
	return Job{
		Library: lib,
		Program: Program(o.Options.BowtieFolder, "bowtie"),
		Args:    args,
		Output:  output,
	}, nil
}

func (o *Orchestrator) run(lib *library.Library) (outcome Outcome) {
	start := time.Now()
	outcome.Library = lib
	defer func() {
		outcome.Duration = time.Since(start)
		o.Metrics.ObserveAlignment(outcome.Status.String(), outcome.Duration)
	}()
	job, err := o.Command(lib)
	if err != nil {
		outcome.Status, outcome.ExitCode, outcome.Err = Rejected, -1, err
		return outcome
	}
	if err = internal.EnsureParentDirs(job.Output); err != nil {
		outcome.Status, outcome.ExitCode, outcome.Err = Rejected, -1, err
		return outcome
	}
	log.Printf("Executing command: %v\n", job)
	stderr, err := o.Runner.Run(job.Program, job.Args...)
	outcome.Output = string(bytes.TrimSpace(stderr))
	if err == nil {
		outcome.Status = Succeeded
		return outcome
	}
	if code, ok := internal.ExitCode(err); ok {
		outcome.Status, outcome.ExitCode = Failed, code
		outcome.Err = fmt.Errorf("%v exited with status %v: %w", job.Program, code, err)
		return outcome
	}
	outcome.Status, outcome.ExitCode, outcome.Err = Rejected, -1, err
	return outcome
}

// RunAll runs the jobs of the pending libraries in batches of at most
// limit jobs. All jobs of a batch run at the same time, and a batch
// is complete before the next one starts. A failing job does not
// stop the others: every library gets an outcome, keyed by its ID.
// Libraries whose job succeeded get their AlignmentFile set.
func (o *Orchestrator) RunAll(pending []*library.Library, limit int) map[string]Outcome {
	if limit < 1 {
		limit = 1
	}
	outcomes := make(map[string]Outcome, len(pending))
	for low := 0; low < len(pending); low += limit {
		high := low + limit
		if high > len(pending) {
			high = len(pending)
		}
		batch := pending[low:high]
		results := make(chan Outcome, len(batch))
		parallel.Range(0, len(batch), len(batch), func(low, high int) {
			for _, lib := range batch[low:high] {
				results <- o.run(lib)
			}
		})
		close(results)
		for outcome := range results {
			lib := outcome.Library
			switch outcome.Status {
			case Succeeded:
				lib.AlignmentFile = filepath.Join(o.Options.OutputFolder, filepath.Base(lib.RawFile)+AlignmentSuffix)
				log.Printf("Alignment of %v finished in %v.\n", lib.ID, outcome.Duration)
			case Failed:
				log.Printf("Alignment of %v failed with exit code %v: %v\n", lib.ID, outcome.ExitCode, outcome.Output)
			case Rejected:
				log.Printf("Alignment of %v rejected: %v\n", lib.ID, outcome.Err)
			}
			outcomes[lib.ID] = outcome
		}
	}
	return outcomes
}

// Failures returns the IDs of the libraries whose job did not
// succeed, in the order of pending.
func Failures(pending []*library.Library, outcomes map[string]Outcome) (ids []string) {
	for _, lib := range pending {
		if outcome, ok := outcomes[lib.ID]; !ok || outcome.Status != Succeeded {
			ids = append(ids, lib.ID)
		}
	}
	return ids
}
