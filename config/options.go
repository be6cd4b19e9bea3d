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

// Package config defines the typed options of the rnaseq pipeline,
// validates them, and keeps them in a persistent option store.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInvalid is matched by every *InvalidOptionError.
var ErrInvalid = errors.New("invalid configuration")

// An InvalidOptionError reports an option value that failed
// validation, or a required option that is not set.
type InvalidOptionError struct {
	Option, Value, Reason string
}

func (e *InvalidOptionError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("option %v: %v", e.Option, e.Reason)
	}
	return fmt.Sprintf("option %v: invalid value %q: %v", e.Option, e.Value, e.Reason)
}

// Is reports whether target is ErrInvalid.
func (e *InvalidOptionError) Is(target error) bool {
	return target == ErrInvalid
}

// A Kind determines how an option value is validated.
type Kind int

const (
	// String options must not be empty.
	String Kind = iota
	// Folder options name an existing directory.
	Folder
	// OutputFolder options name a directory that is created when missing.
	OutputFolder
	// File options name an existing regular file.
	File
	// Int options are decimal integers within [Min, Max].
	Int
	// Bool options accept true/t/yes/y and false/f/no/n.
	Bool
)

// An Option describes one named configuration option.
type Option struct {
	Name        string
	Description string
	Kind        Kind
	Default     string
	Min, Max    int // Max < Min means no upper bound
}

// Option names.
const (
	BowtieFolder     = "bowtie-folder"
	IndexFolder      = "index-folder"
	Reference        = "reference"
	Mismatches       = "mismatches"
	SuppressAbove    = "suppress-above"
	ReportAll        = "report-all"
	Threads          = "threads"
	Jobs             = "jobs"
	BowtieOutput     = "bowtie-output"
	RPKMOutput       = "rpkm-output"
	AggregateOutput  = "aggregate-output"
	AnnotationFolder = "annotation-folder"
	RawFolder        = "raw-folder"
	RPKMFolder       = "rpkm-folder"
	LengthFile       = "length-file"
	LengthColumn     = "length-column"
	BowtieColumn     = "bowtie-column"
	SplitLibrary     = "split-library"
)

// Schema lists all options in display order.
var Schema = []Option{
	{Name: BowtieFolder, Description: "folder containing the bowtie and bowtie-build applications", Kind: Folder},
	{Name: IndexFolder, Description: "folder containing prebuilt bowtie indexes", Kind: Folder},
	{Name: Reference, Description: "reference used for alignment (index basename or fasta file)", Kind: String},
	{Name: Mismatches, Description: "bowtie -v: number of mismatches allowed", Kind: Int, Default: "3", Min: 0, Max: 3},
	{Name: SuppressAbove, Description: "bowtie -m: suppress all alignments above this value", Kind: Int, Default: "25", Min: 1, Max: -1},
	{Name: ReportAll, Description: "bowtie -a: report all valid alignments per read", Kind: Bool, Default: "true"},
	{Name: Threads, Description: "bowtie -p: number of cores used by each bowtie job", Kind: Int, Default: "8", Min: 1, Max: -1},
	{Name: Jobs, Description: "number of bowtie jobs that run at the same time", Kind: Int, Default: "3", Min: 1, Max: -1},
	{Name: BowtieOutput, Description: "folder for the bowtie output", Kind: OutputFolder},
	{Name: RPKMOutput, Description: "folder for the rpkm output", Kind: OutputFolder},
	{Name: AggregateOutput, Description: "folder for the aggregate file output", Kind: OutputFolder},
	{Name: AnnotationFolder, Description: "folder containing the annotation files", Kind: Folder},
	{Name: RawFolder, Description: "folder containing the raw RNA-Seq libraries", Kind: Folder},
	{Name: RPKMFolder, Description: "folder containing pre-existing rpkm files", Kind: Folder},
	{Name: LengthFile, Description: "model table used for the RPKM lengths", Kind: File},
	{Name: LengthColumn, Description: "column in the length file whose token length is the model length", Kind: Int, Default: "1", Min: 1, Max: -1},
	{Name: BowtieColumn, Description: "column in the bowtie output that contains the model", Kind: Int, Default: "2", Min: 0, Max: -1},
	{Name: SplitLibrary, Description: "library at which aggregate files are split", Kind: Int, Default: "100", Min: 1, Max: -1},
}

// Lookup returns the option with the given name.
func Lookup(name string) (Option, bool) {
	for _, option := range Schema {
		if option.Name == name {
			return option, true
		}
	}
	return Option{}, false
}

// Validate checks value against the option's kind, and returns its
// normalized form.
func (option Option) Validate(value string) (string, error) {
	value = strings.TrimSpace(value)
	invalid := func(reason string) (string, error) {
		return "", &InvalidOptionError{Option: option.Name, Value: value, Reason: reason}
	}
	if value == "" {
		return invalid("missing")
	}
	switch option.Kind {
	case Folder:
		info, err := os.Stat(value)
		if err != nil {
			return invalid(err.Error())
		}
		if !info.IsDir() {
			return invalid("not a directory")
		}
	case OutputFolder:
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return invalid("not a directory")
		}
	case File:
		info, err := os.Stat(value)
		if err != nil {
			return invalid(err.Error())
		}
		if !info.Mode().IsRegular() {
			return invalid("not a regular file")
		}
	case Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return invalid("not an integer")
		}
		if n < option.Min || (option.Max >= option.Min && n > option.Max) {
			if option.Max >= option.Min {
				return invalid(fmt.Sprintf("not in range %v..%v", option.Min, option.Max))
			}
			return invalid(fmt.Sprintf("less than %v", option.Min))
		}
		value = strconv.Itoa(n)
	case Bool:
		switch strings.ToLower(value) {
		case "true", "t", "yes", "y":
			value = "true"
		case "false", "f", "no", "n":
			value = "false"
		default:
			return invalid("not a boolean")
		}
	}
	return value, nil
}

// Validate checks the value of the named option.
func Validate(name, value string) (string, error) {
	option, ok := Lookup(name)
	if !ok {
		return "", &InvalidOptionError{Option: name, Reason: "unknown option"}
	}
	return option.Validate(value)
}

// A Config is a fully resolved and validated configuration. It is
// constructed once per run and passed to every component.
type Config struct {
	BowtieFolder     string
	IndexFolder      string
	Reference        string
	Mismatches       int
	SuppressAbove    int
	ReportAll        bool
	Threads          int
	Jobs             int
	BowtieOutput     string
	RPKMOutput       string
	AggregateOutput  string
	AnnotationFolder string
	RawFolder        string
	RPKMFolder       string
	LengthFile       string
	LengthColumn     int
	BowtieColumn     int
	SplitLibrary     int

	set map[string]bool
}

func (c *Config) field(name string) interface{} {
	switch name {
	case BowtieFolder:
		return &c.BowtieFolder
	case IndexFolder:
		return &c.IndexFolder
	case Reference:
		return &c.Reference
	case Mismatches:
		return &c.Mismatches
	case SuppressAbove:
		return &c.SuppressAbove
	case ReportAll:
		return &c.ReportAll
	case Threads:
		return &c.Threads
	case Jobs:
		return &c.Jobs
	case BowtieOutput:
		return &c.BowtieOutput
	case RPKMOutput:
		return &c.RPKMOutput
	case AggregateOutput:
		return &c.AggregateOutput
	case AnnotationFolder:
		return &c.AnnotationFolder
	case RawFolder:
		return &c.RawFolder
	case RPKMFolder:
		return &c.RPKMFolder
	case LengthFile:
		return &c.LengthFile
	case LengthColumn:
		return &c.LengthColumn
	case BowtieColumn:
		return &c.BowtieColumn
	case SplitLibrary:
		return &c.SplitLibrary
	default:
		panic("unknown option " + name)
	}
}

// Resolve validates the given option values, fills in defaults, and
// returns the resulting Config. Unknown names are rejected. All
// invalid options are reported together.
func Resolve(values map[string]string) (*Config, error) {
	for name := range values {
		if _, ok := Lookup(name); !ok {
			return nil, &InvalidOptionError{Option: name, Reason: "unknown option"}
		}
	}
	c := &Config{set: make(map[string]bool)}
	var errs []error
	for _, option := range Schema {
		value, ok := values[option.Name]
		if !ok || strings.TrimSpace(value) == "" {
			value = option.Default
		}
		if value == "" {
			continue
		}
		value, err := option.Validate(value)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch p := c.field(option.Name).(type) {
		case *string:
			*p = value
		case *int:
			*p, _ = strconv.Atoi(value)
		case *bool:
			*p = value == "true"
		}
		c.set[option.Name] = true
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// IsSet reports whether the named option has a value.
func (c *Config) IsSet(name string) bool {
	return c.set[name]
}

// Require reports every named option that has no value.
func (c *Config) Require(names ...string) error {
	var errs []error
	for _, name := range names {
		if !c.set[name] {
			errs = append(errs, &InvalidOptionError{Option: name, Reason: "required but not set"})
		}
	}
	return errors.Join(errs...)
}

// Override validates value and replaces the named option in c. It
// is used for command line flags that take precedence over the
// option store.
func (c *Config) Override(name, value string) error {
	value, err := Validate(name, value)
	if err != nil {
		return err
	}
	switch p := c.field(name).(type) {
	case *string:
		*p = value
	case *int:
		*p, _ = strconv.Atoi(value)
	case *bool:
		*p = value == "true"
	}
	if c.set == nil {
		c.set = make(map[string]bool)
	}
	c.set[name] = true
	return nil
}

// EnsureOutputFolders creates the configured output folders,
// including the Hits and RPKMs subfolders of the aggregate output.
func (c *Config) EnsureOutputFolders() error {
	folders := []string{c.BowtieOutput, c.RPKMOutput}
	if c.AggregateOutput != "" {
		folders = append(folders, filepath.Join(c.AggregateOutput, "Hits"), filepath.Join(c.AggregateOutput, "RPKMs"))
	}
	for _, folder := range folders {
		if folder == "" {
			continue
		}
		if err := os.MkdirAll(folder, 0700); err != nil {
			return err
		}
	}
	return nil
}
