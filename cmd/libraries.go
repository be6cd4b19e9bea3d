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
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/exascience/rnaseq/config"
	"github.com/exascience/rnaseq/library"
)

// LibrariesHelp is the help string for this command.
const LibrariesHelp = "\nlibraries parameters:\n" +
	"rnaseq libraries\n" +
	"[--pending]\n" +
	"[--config-db file]\n" +
	"[--option name=value]\n"

// Libraries implements the rnaseq libraries command.
func Libraries() (err error) {
	var (
		configDB    string
		overrides   optionOverrides
		pendingOnly bool
	)

	var flags flag.FlagSet

	flags.StringVar(&configDB, "config-db", "", "option store database")
	flags.Var(&overrides, "option", "override an option for this run, as name=value")
	flags.BoolVar(&pendingOnly, "pending", false, "only list libraries that need processing")

	parseFlags(&flags, 2, LibrariesHelp)

	store, err := config.OpenStore(configDB)
	if err != nil {
		return err
	}
	cfg, err := store.Load()
	if cerr := store.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err = overrides.apply(cfg); err != nil {
		return err
	}
	if err = cfg.Require(config.RawFolder); err != nil {
		return err
	}

	index, work, err := library.Discover(cfg.RawFolder, quantifiedFolder(cfg))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tRAW FILE\tRESULT FILE")
	for _, lib := range index.Libraries {
		status := "quantified"
		if work.Contains(lib.ID) {
			status = "pending"
		} else if pendingOnly {
			continue
		}
		result := "-"
		if lib.QuantificationFile != "" {
			result = filepath.Base(lib.QuantificationFile)
		}
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", lib.ID, status, filepath.Base(lib.RawFile), result)
	}
	if err = w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%v libraries, %v pending, highest library %v\n", len(index.Libraries), work.Len(), library.FormatID(index.Highest))
	return nil
}
