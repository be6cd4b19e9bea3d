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
	"strings"
	"testing"

	"github.com/exascience/rnaseq/config"
)

func TestPositionalArgs(t *testing.T) {
	positional, rest := positionalArgs([]string{"a=1", "b=2", "--config-db", "x"})
	if strings.Join(positional, " ") != "a=1 b=2" || strings.Join(rest, " ") != "--config-db x" {
		t.Errorf("positionalArgs failed: %v %v", positional, rest)
	}
	positional, rest = positionalArgs([]string{"a", "b"})
	if len(positional) != 2 || rest != nil {
		t.Error("positionalArgs without flags failed")
	}
	positional, rest = positionalArgs(nil)
	if len(positional) != 0 || len(rest) != 0 {
		t.Error("positionalArgs without arguments failed")
	}
}

func TestOptionOverrides(t *testing.T) {
	var common commonFlags
	var flags flag.FlagSet
	common.register(&flags)
	if err := flags.Parse([]string{"--option", "threads=4", "--option", "report-all=no", "--timed"}); err != nil {
		t.Fatal(err)
	}
	if !common.timed || len(common.overrides) != 2 {
		t.Fatalf("flag parsing failed: %+v", common)
	}
	c, err := config.Resolve(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := common.overrides.apply(c); err != nil {
		t.Fatal(err)
	}
	if c.Threads != 4 || c.ReportAll {
		t.Errorf("overrides not applied: %+v", c)
	}

	var overrides optionOverrides
	if err := overrides.Set("no-such-option=1"); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("unknown option accepted: %v", err)
	}
	if err := overrides.Set("threads"); err == nil {
		t.Error("option without value accepted")
	}
	overrides = optionOverrides{"threads=0", "mismatches=9"}
	if err := overrides.apply(c); !errors.Is(err, config.ErrInvalid) || !strings.Contains(err.Error(), "mismatches") || !strings.Contains(err.Error(), "threads") {
		t.Errorf("invalid overrides not reported together: %v", err)
	}
}

func TestQuantifiedFolder(t *testing.T) {
	c := &config.Config{RPKMOutput: "/out"}
	if quantifiedFolder(c) != "/out" {
		t.Error("quantifiedFolder without rpkm-folder failed")
	}
	c.RPKMFolder = "/existing"
	if quantifiedFolder(c) != "/existing" {
		t.Error("quantifiedFolder with rpkm-folder failed")
	}
}

func TestCommandLine(t *testing.T) {
	common := commonFlags{configDB: "db", timed: true, overrides: optionOverrides{"jobs=2"}}
	var command strings.Builder
	common.commandLine(&command)
	if command.String() != " --config-db db --option jobs=2 --timed" {
		t.Errorf("commandLine failed: %q", command.String())
	}
}
