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
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/exascience/rnaseq/config"
	"github.com/exascience/rnaseq/rpkm"
)

// QuantifyHelp is the help string for this command.
const QuantifyHelp = "\nquantify parameters:\n" +
	"rnaseq quantify (alignment-file output-file | --directory /path/to/alignments/)\n" +
	"[--library name]\n" +
	"[--length-file file]\n" +
	"[--length-column n]\n" +
	"[--bowtie-column n]\n" +
	"[--output /path/to/output/]\n" +
	CommonHelp

// Quantify implements the rnaseq quantify command.
func Quantify() (err error) {
	var (
		common                         commonFlags
		directory, libraryName, output string
		lengthFile                     string
		lengthColumn, bowtieColumn     int
		alignmentFile, quantifyFile    string
	)

	var flags flag.FlagSet

	common.register(&flags)
	flags.StringVar(&directory, "directory", "", "quantify all alignment files in a directory")
	flags.StringVar(&libraryName, "library", "", "library name used in the output header")
	flags.StringVar(&output, "output", "", "output folder for --directory, instead of the rpkm-output option")
	flags.StringVar(&lengthFile, "length-file", "", "model table used for the RPKM lengths, instead of the length-file option")
	flags.IntVar(&lengthColumn, "length-column", 0, "column of the length file whose token length is the model length")
	flags.IntVar(&bowtieColumn, "bowtie-column", -1, "column of the bowtie output that contains the model")

	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, QuantifyHelp)
		os.Exit(1)
	}

	positional, rest := positionalArgs(os.Args[2:])
	switch len(positional) {
	case 0:
	case 2:
		alignmentFile = getFilename(positional[0], QuantifyHelp)
		quantifyFile = getFilename(positional[1], QuantifyHelp)
	default:
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, QuantifyHelp)
		os.Exit(1)
	}

	parseFlagArgs(&flags, rest, QuantifyHelp)

	if err := setLogOutput(common.logPath); err != nil {
		return err
	}

	// sanity checks

	var sanityChecksFailed bool

	if (directory == "") == (alignmentFile == "") {
		log.Println("Error: Specify either an alignment file and an output file, or --directory.")
		sanityChecksFailed = true
	}
	if directory != "" && !checkExist("--directory", directory) {
		sanityChecksFailed = true
	}
	if alignmentFile != "" {
		if !checkExist("", alignmentFile) || !checkCreate("", quantifyFile) {
			sanityChecksFailed = true
		}
	}
	if lengthFile != "" && !checkExist("--length-file", lengthFile) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, QuantifyHelp)
		os.Exit(1)
	}

	// building output command line

	var command strings.Builder
	fmt.Fprint(&command, os.Args[0], " quantify")
	if alignmentFile != "" {
		fmt.Fprint(&command, " ", alignmentFile, " ", quantifyFile)
	}
	if directory != "" {
		fmt.Fprint(&command, " --directory ", directory)
	}
	if libraryName != "" {
		fmt.Fprint(&command, " --library ", libraryName)
	}
	if output != "" {
		fmt.Fprint(&command, " --output ", output)
	}
	if lengthFile != "" {
		common.overrides = append(common.overrides, config.LengthFile+"="+lengthFile)
	}
	if lengthColumn > 0 {
		common.overrides = append(common.overrides, config.LengthColumn+"="+strconv.Itoa(lengthColumn))
	}
	if bowtieColumn >= 0 {
		common.overrides = append(common.overrides, config.BowtieColumn+"="+strconv.Itoa(bowtieColumn))
	}
	common.commandLine(&command)

	// executing command

	log.Printf("Executing command: %v\n", command.String())

	s, err := openSession("quantify", &common)
	if err != nil {
		return err
	}
	defer func() { err = s.finish(err) }()

	if err = s.config.Require(config.LengthFile); err != nil {
		return err
	}

	var jobs []rpkm.Job
	if directory != "" {
		if output == "" {
			if err = s.config.Require(config.RPKMOutput); err != nil {
				return err
			}
			output = s.config.RPKMOutput
		}
		if jobs, err = rpkm.DirectoryJobs(directory, output); err != nil {
			return err
		}
	} else {
		job := rpkm.Job{Library: libraryName, Alignment: alignmentFile, Output: quantifyFile}
		if job.Library == "" {
			job.Library = rpkm.LibraryName(alignmentFile)
		}
		jobs = append(jobs, job)
	}

	return s.timed(1, "Quantifying libraries.", func() error {
		lengths, err := rpkm.ReadLengthFile(s.config.LengthFile, s.config.LengthColumn)
		if err != nil {
			return err
		}
		var errs []error
		for _, result := range rpkm.QuantifyAll(jobs, lengths, s.config.BowtieColumn, s.metrics) {
			if result.Err != nil {
				errs = append(errs, fmt.Errorf("%v: %w", result.Job.Library, result.Err))
			}
		}
		return errors.Join(errs...)
	})
}
