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

// Package bowtie drives the external bowtie short read aligner: it
// locates prebuilt indexes, builds new ones on request, and runs
// alignment jobs for RNA-Seq libraries in bounded batches.
package bowtie

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// IndexSuffix is the suffix of the first file of a built bowtie index.
const IndexSuffix = ".1.ebwt"

// ErrIndexMissing is matched by every *IndexMissingError.
var ErrIndexMissing = errors.New("bowtie index missing")

// An IndexMissingError reports that no built index was found for a
// reference in any of the searched folders.
type IndexMissingError struct {
	Reference string
	Folders   []string
}

func (e *IndexMissingError) Error() string {
	return fmt.Sprintf("no bowtie index %v%v found in %v", filepath.Base(e.Reference), IndexSuffix, strings.Join(e.Folders, ", "))
}

// Is reports whether target is ErrIndexMissing.
func (e *IndexMissingError) Is(target error) bool {
	return target == ErrIndexMissing
}

// A Runner executes an external command and waits for it to finish.
// It returns what the command reported on standard error.
type Runner interface {
	Run(name string, args ...string) (stderr []byte, err error)
}

// ExecRunner runs commands as operating system processes.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// A Resolver finds the built index for a reference. Results are
// cached for the lifetime of the resolver. A Resolver is safe for
// concurrent use.
type Resolver struct {
	folders []string
	mutex   sync.Mutex
	cache   map[string]string
}

// NewResolver returns a resolver that searches the given folders in
// order. Empty folder names are skipped.
func NewResolver(folders ...string) *Resolver {
	r := &Resolver{cache: make(map[string]string)}
	for _, folder := range folders {
		if folder != "" {
			r.folders = append(r.folders, folder)
		}
	}
	return r
}

// DefaultResolver searches indexFolder first, then the folder of the
// reference itself.
func DefaultResolver(indexFolder, reference string) *Resolver {
	return NewResolver(indexFolder, filepath.Dir(reference))
}

// IndexExists reports whether folder contains a built index with
// the given basename.
func IndexExists(folder, basename string) bool {
	info, err := os.Stat(filepath.Join(folder, basename+IndexSuffix))
	return err == nil && !info.IsDir()
}

// Resolve returns the index path to pass to bowtie for reference: the
// first searched folder containing the index, joined with the
// reference's basename.
func (r *Resolver) Resolve(reference string) (string, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if path, ok := r.cache[reference]; ok {
		return path, nil
	}
	basename := filepath.Base(reference)
	for _, folder := range r.folders {
		if IndexExists(folder, basename) {
			path := filepath.Join(folder, basename)
			r.cache[reference] = path
			return path, nil
		}
	}
	return "", &IndexMissingError{Reference: reference, Folders: append([]string(nil), r.folders...)}
}

// Program returns the path of the named bowtie application. Without
// a folder, the application is looked up in PATH.
func Program(bowtieFolder, name string) string {
	if bowtieFolder == "" {
		return name
	}
	return filepath.Join(bowtieFolder, name)
}

// BuildIndex runs bowtie-build for reference, writing an index with
// the output basename, and blocks until it exits.
func BuildIndex(runner Runner, bowtieFolder, reference, output string) error {
	if runner == nil {
		runner = ExecRunner{}
	}
	program := Program(bowtieFolder, "bowtie-build")
	log.Printf("Building bowtie index %v from %v.\n", output, reference)
	stderr, err := runner.Run(program, reference, output)
	if len(stderr) > 0 {
		log.Printf("%v: %s\n", program, bytes.TrimSpace(stderr))
	}
	if err != nil {
		return fmt.Errorf("%v %v %v: %w", program, reference, output, err)
	}
	return nil
}
