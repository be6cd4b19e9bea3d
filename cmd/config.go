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
	"strings"
	"text/tabwriter"
	"time"

	"github.com/exascience/rnaseq/config"
	"github.com/exascience/rnaseq/internal"
)

// ConfigHelp is the help string for this command.
const ConfigHelp = "\nconfig parameters:\n" +
	"rnaseq config view\n" +
	"rnaseq config set name=value [name=value ...]\n" +
	"rnaseq config unset name [name ...]\n" +
	"rnaseq config runs\n" +
	"[--limit n]\n" +
	"[--config-db file]\n"

func setOptions(store *config.Store, assignments []string) error {
	var errs []error
	for _, assignment := range assignments {
		name, value, ok := strings.Cut(assignment, "=")
		if !ok {
			errs = append(errs, fmt.Errorf("%q is not of the form name=value", assignment))
			continue
		}
		if err := store.Set(strings.TrimSpace(name), value); err != nil {
			errs = append(errs, err)
			continue
		}
		log.Printf("Set %v to %v.\n", strings.TrimSpace(name), value)
	}
	return errors.Join(errs...)
}

func unsetOptions(store *config.Store, names []string) error {
	var errs []error
	for _, name := range names {
		if _, ok := config.Lookup(name); !ok {
			errs = append(errs, &config.InvalidOptionError{Option: name, Reason: "unknown option"})
			continue
		}
		if err := store.Unset(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func writeRuns(store *config.Store, limit int) error {
	runs, err := store.Runs(limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOMMAND\tSTARTED\tDURATION\tSTATUS")
	for _, run := range runs {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n", run.ID, run.Command, run.Started.Local().Format(time.DateTime), run.Finished.Sub(run.Started).Round(time.Second), run.Status)
	}
	return w.Flush()
}

// Config implements the rnaseq config command.
func Config() (err error) {
	var (
		configDB string
		limit    int
	)

	var flags flag.FlagSet

	flags.StringVar(&configDB, "config-db", "", "option store database")
	flags.IntVar(&limit, "limit", 20, "number of runs to show")

	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, ConfigHelp)
		os.Exit(1)
	}

	action := getFilename(os.Args[2], ConfigHelp)
	args, rest := positionalArgs(os.Args[3:])

	parseFlagArgs(&flags, rest, ConfigHelp)

	// sanity checks

	switch action {
	case "view", "runs":
		if len(args) > 0 {
			fmt.Fprintln(os.Stderr, "Cannot parse remaining parameters:", args)
			fmt.Fprint(os.Stderr, ConfigHelp)
			os.Exit(1)
		}
	case "set", "unset":
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
			fmt.Fprint(os.Stderr, ConfigHelp)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "Unknown config action", action)
		fmt.Fprint(os.Stderr, ConfigHelp)
		os.Exit(1)
	}
	if limit < 1 {
		log.Println("Error: Invalid limit: ", limit)
		fmt.Fprint(os.Stderr, ConfigHelp)
		os.Exit(1)
	}

	// executing command

	store, err := config.OpenStore(configDB)
	if err != nil {
		return err
	}
	defer internal.Close(store, &err)

	switch action {
	case "view":
		fmt.Println("Option store:", store.Path())
		return store.WriteOptions(os.Stdout)
	case "set":
		return setOptions(store, args)
	case "unset":
		return unsetOptions(store, args)
	default:
		return writeRuns(store, limit)
	}
}
