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

	"github.com/exascience/rnaseq/config"
	"github.com/exascience/rnaseq/library"
)

// AggregateHelp is the help string for this command.
const AggregateHelp = "\naggregate parameters:\n" +
	"rnaseq aggregate\n" +
	"[--highest n]\n" +
	"[--split]\n" +
	CommonHelp

// Aggregate implements the rnaseq aggregate command.
func Aggregate() (err error) {
	var (
		common  commonFlags
		highest int
		split   bool
	)

	var flags flag.FlagSet

	common.register(&flags)
	flags.IntVar(&highest, "highest", 0, "highest library number; missing libraries up to it are reported")
	flags.BoolVar(&split, "split", false, "split the aggregate tables at the split library")

	parseFlags(&flags, 2, AggregateHelp)

	if err := setLogOutput(common.logPath); err != nil {
		return err
	}

	// sanity checks

	if highest < 0 || highest > library.MaxNumber {
		log.Println("Error: Invalid highest library number: ", highest)
		fmt.Fprint(os.Stderr, AggregateHelp)
		os.Exit(1)
	}

	// building output command line

	var command strings.Builder
	fmt.Fprint(&command, os.Args[0], " aggregate")
	if highest > 0 {
		fmt.Fprint(&command, " --highest ", highest)
	}
	if split {
		fmt.Fprint(&command, " --split")
	}
	common.commandLine(&command)

	// executing command

	log.Printf("Executing command: %v\n", command.String())

	s, err := openSession("aggregate", &common)
	if err != nil {
		return err
	}
	defer func() { err = s.finish(err) }()

	if err = s.config.Require(config.AnnotationFolder, config.AggregateOutput); err != nil {
		return err
	}
	if quantifiedFolder(s.config) == "" {
		return s.config.Require(config.RPKMFolder)
	}
	if err = s.config.EnsureOutputFolders(); err != nil {
		return err
	}

	return s.timed(1, "Aggregating results.", func() error {
		report, err := runAggregate(s, highest)
		if err != nil {
			return err
		}
		if split {
			return splitTables(s.config.SplitLibrary, report.HitsFile, report.RPKMFile)
		}
		return nil
	})
}
