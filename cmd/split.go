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
	"strconv"
	"strings"

	"github.com/exascience/rnaseq/config"
)

// SplitHelp is the help string for this command.
const SplitHelp = "\nsplit parameters:\n" +
	"rnaseq split table-file\n" +
	"[--split-library n]\n" +
	CommonHelp

// Split implements the rnaseq split command.
func Split() (err error) {
	var (
		common       commonFlags
		splitLibrary int
	)

	var flags flag.FlagSet

	common.register(&flags)
	flags.IntVar(&splitLibrary, "split-library", 0, "library at which the table is split, instead of the split-library option")

	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, SplitHelp)
		os.Exit(1)
	}

	input := getFilename(os.Args[2], SplitHelp)

	parseFlags(&flags, 3, SplitHelp)

	if err := setLogOutput(common.logPath); err != nil {
		return err
	}

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input) {
		sanityChecksFailed = true
	}

	if splitLibrary < 0 {
		log.Println("Error: Invalid split-library: ", splitLibrary)
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, SplitHelp)
		os.Exit(1)
	}

	// building output command line

	var command strings.Builder
	fmt.Fprint(&command, os.Args[0], " split ", input)
	if splitLibrary > 0 {
		common.overrides = append(common.overrides, config.SplitLibrary+"="+strconv.Itoa(splitLibrary))
	}
	common.commandLine(&command)

	// executing command

	log.Printf("Executing command: %v\n", command.String())

	s, err := openSession("split", &common)
	if err != nil {
		return err
	}
	defer func() { err = s.finish(err) }()

	return s.timed(1, "Splitting table.", func() error {
		return splitTables(s.config.SplitLibrary, input)
	})
}
