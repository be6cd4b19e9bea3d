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

// rnaseq aligns RNA-Seq libraries with bowtie, computes the RPKM
// values of every transcript model per library, and aggregates all
// libraries together with their annotations into hit and RPKM
// tables.
//
// Please see https://github.com/exascience/rnaseq for a documentation
// of the tool.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/exascience/rnaseq/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: pipeline, align, quantify, aggregate, split, config, build-index, libraries")
	fmt.Fprint(os.Stderr, "\n", cmd.PipelineHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.AlignHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.QuantifyHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.AggregateHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.SplitHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.ConfigHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.BuildIndexHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.LibrariesHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "pipeline":
		err = cmd.Pipeline()
	case "align":
		err = cmd.Align()
	case "quantify":
		err = cmd.Quantify()
	case "aggregate":
		err = cmd.Aggregate()
	case "split":
		err = cmd.Split()
	case "config":
		err = cmd.Config()
	case "build-index":
		err = cmd.BuildIndex()
	case "libraries":
		err = cmd.Libraries()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}
