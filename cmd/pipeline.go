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

package cmd

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/exascience/rnaseq/aggregate"
	"github.com/exascience/rnaseq/bowtie"
	"github.com/exascience/rnaseq/config"
	"github.com/exascience/rnaseq/library"
	"github.com/exascience/rnaseq/rpkm"
	"github.com/exascience/rnaseq/tsv"
)

// PipelineHelp is the help string for this command.
const PipelineHelp = "\npipeline parameters:\n" +
	"rnaseq pipeline\n" +
	"[--build-index basename]\n" +
	"[--split]\n" +
	CommonHelp

// quantifiedFolder is where discovery looks for existing results.
func quantifiedFolder(c *config.Config) string {
	if c.RPKMFolder != "" {
		return c.RPKMFolder
	}
	return c.RPKMOutput
}

func discover(c *config.Config) (*library.Index, *library.WorkSet, error) {
	index, work, err := library.Discover(c.RawFolder, quantifiedFolder(c))
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Found %v libraries in %v, %v of them need processing: %v\n",
		len(index.Libraries), c.RawFolder, work.Len(), strings.Join(work.IDs(), " "))
	return index, work, nil
}

func resolveReference(c *config.Config, buildIndex string) (string, error) {
	reference := c.Reference
	if buildIndex != "" {
		folder := c.IndexFolder
		if folder == "" {
			folder = filepath.Dir(reference)
		}
		output := filepath.Join(folder, buildIndex)
		if err := bowtie.BuildIndex(bowtie.ExecRunner{}, c.BowtieFolder, reference, output); err != nil {
			return "", err
		}
		reference = output
	}
	index, err := bowtie.DefaultResolver(c.IndexFolder, reference).Resolve(reference)
	if err != nil {
		return "", fmt.Errorf("%w (build it with rnaseq build-index, or pipeline --build-index)", err)
	}
	log.Println("Using bowtie index", index)
	return index, nil
}

// align runs bowtie for the pending libraries, and returns the
// libraries that were aligned successfully and the IDs of the ones
// that were not.
func align(s *session, pending []*library.Library, reference string) (aligned []*library.Library, failed []string) {
	orchestrator := bowtie.NewOrchestrator(bowtie.OptionsFromConfig(s.config, reference), s.metrics)
	outcomes := orchestrator.RunAll(pending, s.config.Jobs)
	for _, lib := range pending {
		if outcomes[lib.ID].Status == bowtie.Succeeded {
			aligned = append(aligned, lib)
		}
	}
	failed = bowtie.Failures(pending, outcomes)
	return aligned, failed
}

// quantify computes the RPKM values of the aligned libraries, and
// returns the IDs of the libraries that failed.
func quantify(s *session, aligned []*library.Library) (failed []string, err error) {
	if len(aligned) == 0 {
		return nil, nil
	}
	lengths, err := rpkm.ReadLengthFile(s.config.LengthFile, s.config.LengthColumn)
	if err != nil {
		return nil, err
	}
	jobs := make([]rpkm.Job, 0, len(aligned))
	for _, lib := range aligned {
		jobs = append(jobs, rpkm.LibraryJob(lib, s.config.RPKMOutput))
	}
	for _, result := range rpkm.QuantifyAll(jobs, lengths, s.config.BowtieColumn, s.metrics) {
		if result.Err != nil {
			failed = append(failed, result.Job.Library)
		}
	}
	return failed, nil
}

func runAggregate(s *session, highest int) (*aggregate.Report, error) {
	report, err := aggregate.Run(aggregate.OptionsFromConfig(s.config, highest, s.metrics))
	if err != nil {
		return nil, err
	}
	log.Printf("Aggregated %v libraries into %v rows:\n%v\n%v\n", len(report.Libraries), report.Rows, report.HitsFile, report.RPKMFile)
	return report, nil
}

func splitTables(pivot int, files ...string) error {
	for _, file := range files {
		file1, file2, err := tsv.Split(file, pivot)
		if err != nil {
			return err
		}
		log.Printf("Split %v into %v and %v.\n", file, file1, file2)
	}
	return nil
}

// Pipeline implements the rnaseq pipeline command.
func Pipeline() (err error) {
	var (
		common     commonFlags
		buildIndex string
		split      bool
	)

	var flags flag.FlagSet

	common.register(&flags)
	flags.StringVar(&buildIndex, "build-index", "", "build a bowtie index with the given basename from the reference first")
	flags.BoolVar(&split, "split", false, "split the aggregate tables at the split library")

	parseFlags(&flags, 2, PipelineHelp)

	if err := setLogOutput(common.logPath); err != nil {
		return err
	}

	// sanity checks

	if strings.ContainsRune(buildIndex, os.PathSeparator) {
		log.Printf("Error: Invalid index basename %v for command line parameter --build-index.\n", buildIndex)
		fmt.Fprint(os.Stderr, PipelineHelp)
		os.Exit(1)
	}

	// building output command line

	var command strings.Builder
	fmt.Fprint(&command, os.Args[0], " pipeline")
	if buildIndex != "" {
		fmt.Fprint(&command, " --build-index ", buildIndex)
	}
	if split {
		fmt.Fprint(&command, " --split")
	}
	common.commandLine(&command)

	// executing command

	log.Printf("Executing command: %v\n", command.String())

	s, err := openSession("pipeline", &common)
	if err != nil {
		return err
	}
	defer func() { err = s.finish(err) }()

	if err = s.config.Require(
		config.RawFolder, config.Reference, config.BowtieOutput, config.RPKMOutput,
		config.AggregateOutput, config.AnnotationFolder, config.LengthFile,
	); err != nil {
		return err
	}
	if err = s.config.EnsureOutputFolders(); err != nil {
		return err
	}

	var (
		index     *library.Index
		work      *library.WorkSet
		reference string
		aligned   []*library.Library
		failed    []string
		report    *aggregate.Report
	)
	if err = s.timed(1, "Discovering libraries.", func() (err error) {
		if index, work, err = discover(s.config); err != nil {
			return err
		}
		if work.Len() > 0 {
			reference, err = resolveReference(s.config, buildIndex)
		}
		return err
	}); err != nil {
		return err
	}
	if err = s.timed(2, "Aligning libraries.", func() error {
		var alignFailed []string
		aligned, alignFailed = align(s, work.Libraries(), reference)
		failed = append(failed, alignFailed...)
		return nil
	}); err != nil {
		return err
	}
	if err = s.timed(3, "Quantifying libraries.", func() error {
		quantifyFailed, err := quantify(s, aligned)
		failed = append(failed, quantifyFailed...)
		return err
	}); err != nil {
		return err
	}
	if err = s.timed(4, "Aggregating results.", func() (err error) {
		report, err = runAggregate(s, index.Highest)
		return err
	}); err != nil {
		return err
	}
	if split {
		if err = s.timed(5, "Splitting aggregate tables.", func() error {
			return splitTables(s.config.SplitLibrary, report.HitsFile, report.RPKMFile)
		}); err != nil {
			return err
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("processing failed for libraries %v", strings.Join(failed, ", "))
	}
	return nil
}
