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

package internal

import (
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEnsureParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "c", "file.tsv")
	for i := 0; i < 2; i++ {
		if err := EnsureParentDirs(path); err != nil {
			t.Fatal(err)
		}
	}
	if info, err := os.Stat(filepath.Dir(path)); err != nil || !info.IsDir() {
		t.Error("EnsureParentDirs failed")
	}
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if err := EnsureParentDirs(filepath.Join(blocker, "file.tsv")); err == nil {
		t.Error("EnsureParentDirs through a file did not fail")
	}
}

func TestFullPathname(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "x.tsv")
	if path, err := FullPathname(abs); err != nil || path != abs {
		t.Errorf("FullPathname(%v) = %v, %v", abs, path, err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if path, err := FullPathname(filepath.Join("a", "x.tsv")); err != nil || path != filepath.Join(wd, "a", "x.tsv") {
		t.Errorf("FullPathname of a relative path = %v, %v", path, err)
	}
}

func TestDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c", "a", "b"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0600); err != nil {
			t.Fatal(err)
		}
	}
	files, err := Directory(dir)
	if err != nil || strings.Join(files, "") != "abc" {
		t.Errorf("Directory failed: %v %v", files, err)
	}
	files, err = Directory(filepath.Join(dir, "b"))
	if err != nil || len(files) != 1 || files[0] != "b" {
		t.Errorf("Directory of a file failed: %v %v", files, err)
	}
}

func readAll(t *testing.T, name string) string {
	t.Helper()
	input, err := Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := input.Close(); err != nil {
			t.Error(err)
		}
	}()
	content, err := io.ReadAll(input)
	if err != nil {
		t.Fatal(err)
	}
	return string(content)
}

func TestOpenAndCreate(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.tsv")
	if err := os.WriteFile(empty, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if readAll(t, empty) != "" {
		t.Error("Open of empty file failed")
	}

	compressed := filepath.Join(dir, "plain.tsv.gz")
	f, err := os.Create(compressed)
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte("a\tb\n")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if readAll(t, compressed) != "a\tb\n" {
		t.Error("Open of gzip file failed")
	}

	created := filepath.Join(dir, "out", "nested", "table.tsv")
	w, err := Create(created)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteString("x\ty\n"); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if readAll(t, created) != "x\ty\n" {
		t.Error("Create failed")
	}

	if _, err := Open(filepath.Join(dir, "missing")); err == nil {
		t.Error("Open of missing file did not fail")
	}
}

type closer struct{ err error }

func (c closer) Close() error { return c.err }

func TestClose(t *testing.T) {
	first, second := errors.New("first"), errors.New("second")
	err := first
	Close(closer{second}, &err)
	if err != first {
		t.Error("Close replaced an earlier error")
	}
	err = nil
	Close(closer{second}, &err)
	if err != second {
		t.Error("Close lost an error")
	}
}

type exitStatus int

func (e exitStatus) Error() string { return "exit" }

func (e exitStatus) ExitCode() int { return int(e) }

func TestExitCode(t *testing.T) {
	if code, ok := ExitCode(nil); code != 0 || !ok {
		t.Error("ExitCode of nil failed")
	}
	if code, ok := ExitCode(exitStatus(3)); code != 3 || !ok {
		t.Error("ExitCode of exit status failed")
	}
	if _, ok := ExitCode(errors.New("boom")); ok {
		t.Error("ExitCode of other error failed")
	}
	if _, ok := ExitCode(exitStatus(-1)); ok {
		t.Error("ExitCode of signaled process failed")
	}
}

func TestMetrics(t *testing.T) {
	var nilMetrics *Metrics
	nilMetrics.ObserveAlignment("succeeded", 0)
	nilMetrics.ObserveQuantification("succeeded", 1)
	nilMetrics.ObserveAggregation(1, 1)

	m := NewMetrics()
	m.ObserveQuantification("succeeded", 3)
	m.ObserveQuantification("succeeded", 2)
	m.ObserveAggregation(20, 1)
	if testutil.ToFloat64(m.ZeroLengthModels) != 5 || testutil.ToFloat64(m.AggregateRows) != 20 {
		t.Error("Metrics failed")
	}
	filename := filepath.Join(t.TempDir(), "metrics", "rnaseq.prom")
	if err := m.WriteFile(filename); err != nil {
		t.Fatal(err)
	}
	content, err := os.ReadFile(filename)
	if err != nil || !strings.Contains(string(content), "rnaseq_quantified_libraries_total") {
		t.Errorf("Metrics WriteFile failed: %v", err)
	}
}
