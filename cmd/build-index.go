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
	"strings"

	"github.com/exascience/rnaseq/bowtie"
	"github.com/exascience/rnaseq/config"
)

// BuildIndexHelp is the help string for this command.
const BuildIndexHelp = "\nbuild-index parameters:\n" +
	"rnaseq build-index reference /path/to/output/basename\n" +
	CommonHelp

// BuildIndex implements the rnaseq build-index command.
func BuildIndex() (err error) {
	var common commonFlags

	var flags flag.FlagSet

	common.register(&flags)

	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, BuildIndexHelp)
		os.Exit(1)
	}

	reference := getFilename(os.Args[2], BuildIndexHelp)
	output := getFilename(os.Args[3], BuildIndexHelp)

	parseFlags(&flags, 4, BuildIndexHelp)

	if err := setLogOutput(common.logPath); err != nil {
		return err
	}

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", reference) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output+bowtie.IndexSuffix) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, BuildIndexHelp)
		os.Exit(1)
	}

	// building output command line

	var command strings.Builder
	fmt.Fprint(&command, os.Args[0], " build-index ", reference, " ", output)
	common.commandLine(&command)

	// executing command

	log.Printf("Executing command: %v\n", command.String())

	s, err := openSession("build-index", &common)
	if err != nil {
		return err
	}
	defer func() { err = s.finish(err) }()

	if !s.config.IsSet(config.BowtieFolder) {
		log.Println("Option bowtie-folder is not set, looking up bowtie-build in PATH.")
	}

	return s.timed(1, "Building bowtie index.", func() error {
		return bowtie.BuildIndex(bowtie.ExecRunner{}, s.config.BowtieFolder, reference, output)
	})
}
