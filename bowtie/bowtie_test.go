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

package bowtie

import (
	"compress/gzip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/exascience/rnaseq/internal"
	"github.com/exascience/rnaseq/library"
)

type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func (e exitError) ExitCode() int { return int(e) }

// fakeRunner records every command and fails for inputs mentioned in
// fail, with the given exit code.
type fakeRunner struct {
	mutex   sync.Mutex
	calls   [][]string
	fail    map[string]int
	running int
	maxRun  int
}

func (r *fakeRunner) Run(name string, args ...string) ([]byte, error) {
	r.mutex.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.running++
	if r.running > r.maxRun {
		r.maxRun = r.running
	}
	r.mutex.Unlock()
	time.Sleep(10 * time.Millisecond)
	r.mutex.Lock()
	r.running--
	r.mutex.Unlock()
	for _, arg := range args {
		for key, code := range r.fail {
			if strings.Contains(arg, key) {
				return []byte("bowtie: error\n"), exitError(code)
			}
		}
	}
	return nil, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestResolve(t *testing.T) {
	indexFolder, refFolder := t.TempDir(), t.TempDir()
	reference := filepath.Join(refFolder, "Gmax")
	writeFile(t, filepath.Join(refFolder, "Gmax"+IndexSuffix), "")

	path, err := DefaultResolver(indexFolder, reference).Resolve(reference)
	if err != nil || path != filepath.Join(refFolder, "Gmax") {
		t.Errorf("Resolve in reference folder failed: %v, %v", path, err)
	}

	writeFile(t, filepath.Join(indexFolder, "Gmax"+IndexSuffix), "")
	resolver := DefaultResolver(indexFolder, reference)
	path, err = resolver.Resolve(reference)
	if err != nil || path != filepath.Join(indexFolder, "Gmax") {
		t.Errorf("Resolve in index folder failed: %v, %v", path, err)
	}

	if err := os.Remove(filepath.Join(indexFolder, "Gmax"+IndexSuffix)); err != nil {
		t.Fatal(err)
	}
	if cached, err := resolver.Resolve(reference); err != nil || cached != path {
		t.Error("Resolve cache failed")
	}

	_, err = NewResolver("", indexFolder).Resolve("Other")
	if !errors.Is(err, ErrIndexMissing) {
		t.Fatalf("expected missing index, got %v", err)
	}
	var missing *IndexMissingError
	if !errors.As(err, &missing) || missing.Reference != "Other" || len(missing.Folders) != 1 || missing.Folders[0] != indexFolder {
		t.Errorf("IndexMissingError failed: %v", err)
	}
}

func TestBuildIndex(t *testing.T) {
	runner := &fakeRunner{}
	if err := BuildIndex(runner, "/opt/bowtie", "/data/Gmax.fa", "/data/idx/Gmax"); err != nil {
		t.Fatal(err)
	}
	if len(runner.calls) != 1 || strings.Join(runner.calls[0], " ") != "/opt/bowtie/bowtie-build /data/Gmax.fa /data/idx/Gmax" {
		t.Errorf("BuildIndex command failed: %v", runner.calls)
	}
	runner = &fakeRunner{fail: map[string]int{"Gmax": 1}}
	if err := BuildIndex(runner, "", "Gmax.fa", "Gmax"); err == nil {
		t.Error("BuildIndex error not reported")
	}
}

func TestSniff(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.fa"), ">read1\nACGT\n")
	writeFile(t, filepath.Join(dir, "a.fq"), "@read1\nACGT\n+\nIIII\n")
	writeFile(t, filepath.Join(dir, "a.txt"), "ACGT\n")
	writeFile(t, filepath.Join(dir, "empty"), "")

	gz, err := os.Create(filepath.Join(dir, "a.fq.gz"))
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(gz)
	if _, err := zw.Write([]byte("@read1\nACGT\n+\nIIII\n")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	for _, test := range []struct{ name, flag string }{
		{"a.fa", FastaFlag},
		{"a.fq", FastqFlag},
		{"a.fq.gz", FastqFlag},
	} {
		if flag, err := Sniff(filepath.Join(dir, test.name)); err != nil || flag != test.flag {
			t.Errorf("Sniff %v failed: %v, %v", test.name, flag, err)
		}
	}
	var formatErr *FormatError
	if _, err := Sniff(filepath.Join(dir, "a.txt")); !errors.Is(err, ErrUnrecognizedFormat) || !errors.As(err, &formatErr) || formatErr.First != 'A' {
		t.Errorf("Sniff of unrecognized file failed: %v", err)
	}
	if _, err := Sniff(filepath.Join(dir, "empty")); !errors.Is(err, ErrUnrecognizedFormat) {
		t.Errorf("Sniff of empty file failed: %v", err)
	}
}

func testLibraries(t *testing.T, n int, contents map[int]string) []*library.Library {
	t.Helper()
	dir := t.TempDir()
	var libs []*library.Library
	for i := 1; i <= n; i++ {
		content, ok := contents[i]
		if !ok {
			content = ">read\nACGT\n"
		}
		path := filepath.Join(dir, fmt.Sprintf("R%02d_lib%d.fasta", i, i))
		writeFile(t, path, content)
		libs = append(libs, &library.Library{ID: library.FormatID(i), Number: i, RawFile: path})
	}
	return libs
}

func TestCommand(t *testing.T) {
	libs := testLibraries(t, 2, map[int]string{2: "@read\nACGT\n+\nIIII\n"})
	o := &Orchestrator{Options: Options{
		BowtieFolder:  "/opt/bowtie",
		Reference:     "/idx/Gmax",
		Threads:       8,
		Mismatches:    3,
		ReportAll:     true,
		SuppressAbove: 25,
		OutputFolder:  "/out",
	}}
	job, err := o.Command(libs[0])
	if err != nil {
		t.Fatal(err)
	}
	expected := "/opt/bowtie/bowtie -f -p 8 -v 3 -a -m 25 /idx/Gmax " + libs[0].RawFile + " /out/R01_lib1.fasta.albwt"
	if job.String() != expected {
		t.Errorf("Command failed:\n%v\n%v", job.String(), expected)
	}
	if job.Output != "/out/R01_lib1.fasta.albwt" {
		t.Errorf("Command output failed: %v", job.Output)
	}
	o.Options.ReportAll = false
	job, err = o.Command(libs[1])
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(job.Args[:7], " ") != "-q -p 8 -v 3 -m 25" {
		t.Errorf("Command without -a failed: %v", job.Args)
	}
}

func TestRunAll(t *testing.T) {
	libs := testLibraries(t, 7, map[int]string{5: "not a library\n"})
	runner := &fakeRunner{fail: map[string]int{"R03_": 2}}
	metrics := internal.NewMetrics()
	o := &Orchestrator{
		Options: Options{Reference: "idx", Threads: 1, Mismatches: 0, SuppressAbove: 1, OutputFolder: t.TempDir()},
		Runner:  runner,
		Metrics: metrics,
	}
	outcomes := o.RunAll(libs, 3)
	if len(outcomes) != len(libs) {
		t.Fatalf("RunAll outcome count failed: %v", len(outcomes))
	}
	for _, lib := range libs {
		outcome := outcomes[lib.ID]
		switch lib.ID {
		case "R03":
			if outcome.Status != Failed || outcome.ExitCode != 2 || outcome.Err == nil || lib.AlignmentFile != "" {
				t.Errorf("RunAll failed job: %+v", outcome)
			}
		case "R05":
			if outcome.Status != Rejected || !errors.Is(outcome.Err, ErrUnrecognizedFormat) || lib.AlignmentFile != "" {
				t.Errorf("RunAll rejected job: %+v", outcome)
			}
		default:
			if outcome.Status != Succeeded || lib.AlignmentFile == "" {
				t.Errorf("RunAll succeeded job %v: %+v", lib.ID, outcome)
			}
		}
	}
	if len(runner.calls) != 6 {
		t.Errorf("RunAll executed %v jobs", len(runner.calls))
	}
	if runner.maxRun > 3 {
		t.Errorf("RunAll ran %v jobs at the same time", runner.maxRun)
	}
	failures := Failures(libs, outcomes)
	sort.Strings(failures)
	if strings.Join(failures, ",") != "R03,R05" {
		t.Errorf("Failures failed: %v", failures)
	}
	if testutil.ToFloat64(metrics.AlignmentJobs.WithLabelValues("succeeded")) != 5 ||
		testutil.ToFloat64(metrics.AlignmentJobs.WithLabelValues("failed")) != 1 ||
		testutil.ToFloat64(metrics.AlignmentJobs.WithLabelValues("rejected")) != 1 {
		t.Error("RunAll metrics failed")
	}
}

func TestRunAllEmpty(t *testing.T) {
	o := &Orchestrator{Runner: &fakeRunner{}}
	if outcomes := o.RunAll(nil, 3); len(outcomes) != 0 {
		t.Error("RunAll on no libraries failed")
	}
}
