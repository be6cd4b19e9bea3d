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
)

// AlignHelp is the help string for this command.
const AlignHelp = "\nalign parameters:\n" +
	"rnaseq align\n" +
	CommonHelp

// Align implements the rnaseq align command.
func Align() (err error) {
	var common commonFlags

	var flags flag.FlagSet

	common.register(&flags)

	parseFlags(&flags, 2, AlignHelp)

	if err := setLogOutput(common.logPath); err != nil {
		return err
	}

	// building output command line

	var command strings.Builder
	fmt.Fprint(&command, os.Args[0], " align")
	common.commandLine(&command)

	// executing command

	log.Printf("Executing command: %v\n", command.String())

	s, err := openSession("align", &common)
	if err != nil {
		return err
	}
	defer func() { err = s.finish(err) }()

	if err = s.config.Require(config.RawFolder, config.Reference, config.BowtieOutput); err != nil {
		return err
	}
	if err = s.config.EnsureOutputFolders(); err != nil {
		return err
	}

	return s.timed(1, "Aligning libraries.", func() error {
		_, work, err := discover(s.config)
		if err != nil {
			return err
		}
		if work.Len() == 0 {
			log.Println("All libraries are quantified already.")
			return nil
		}
		reference, err := resolveReference(s.config, "")
		if err != nil {
			return err
		}
		if _, failed := align(s, work.Libraries(), reference); len(failed) > 0 {
			return fmt.Errorf("alignment failed for libraries %v", strings.Join(failed, ", "))
		}
		return nil
	})
}
