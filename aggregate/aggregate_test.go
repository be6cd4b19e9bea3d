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

package aggregate

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/exascience/rnaseq/internal"
	"github.com/exascience/rnaseq/library"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func annotationFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Keywords.tsv"), "model\tkeywords\nGlyma01\tkinase\nGlyma01\tmembrane\nGlyma02\ttransport\n")
	writeFile(t, filepath.Join(dir, "nr_annotation.tsv"), "model\tnr\nGlyma01\tnr\thit one\nGlyma02\tnr two\nGlyma01\tnr late\n")
	writeFile(t, filepath.Join(dir, "Swiss_annotation.tsv"), "model\tswiss\n")
	var trembl strings.Builder
	trembl.WriteString("model\ttrembl\n")
	for i := 0; i < 12; i++ {
		trembl.WriteString("Glyma02\tt\n")
	}
	writeFile(t, filepath.Join(dir, "trEMBL_annotation.tsv"), trembl.String())
	writeFile(t, filepath.Join(dir, "v6", "Gmax_109_annotation_info.txt"),
		"model\tpfam\tpanther\tkog\tec\tko\tname\tsymbol\tdefline\n"+
			"Glyma01\tPF1\tPTHR1\tKOG1\t1.1.1.1\tK1\tAT1G01\tABC\tsome protein\n"+
			"Glyma02\tPF2\t\tKOG2\n")
	writeFile(t, filepath.Join(dir, "PFAMAnnotation.tsv"), "model\tpfam\nGlyma03\tPF3\n")
	writeFile(t, filepath.Join(dir, "cds_Length.tsv"), "model\tlength\nGlyma01\t900\nGlyma02\t300\n")
	writeFile(t, filepath.Join(dir, "cDNA_Length.tsv"), "model\tlength\nGlyma01\t1200\n")
	return dir
}

func resultFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "R01_RNASeq1_W43_x.fastq.rpkm"), "Model Name\tR01 rpkm\tR01 hits\nGlyma01\t12.5\t10\nGlyma02\t0\t0\n")
	writeFile(t, filepath.Join(dir, "R03_RNASeq3_W45.fastq.rpkm"), "Model Name\tR03 rpkm\tR03 hits\nGlyma03\t7\t2\nGlyma01\t1.25\t1\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a result\n")
	return dir
}

func TestDisplayName(t *testing.T) {
	for _, test := range []struct{ file, name string }{
		{"R01_RNASeq1_W43.fastq.rpkm", "R01_RNASeq1_W43"},
		{"/a/b/R01_RNASeq1_W43_extra.rpkm", "R01_RNASeq1_W43"},
		{"R02_short.rpkm", "R02_short"},
	} {
		if name := DisplayName(test.file); name != test.name {
			t.Errorf("DisplayName(%v) = %v", test.file, name)
		}
	}
}

func TestLoadAnnotations(t *testing.T) {
	sources := DefaultSources(annotationFolder(t))
	a, err := LoadAnnotations(sources)
	if err != nil {
		t.Fatal(err)
	}
	source := func(name string) Source {
		for _, s := range sources {
			if s.Name == name {
				return s
			}
		}
		t.Fatalf("no source %v", name)
		return Source{}
	}
	check := func(model string, index int, name string, expected ...string) {
		t.Helper()
		fields := a.Lookup(model, index, source(name))
		if strings.Join(fields, "|") != strings.Join(expected, "|") {
			t.Errorf("Lookup(%v, %v, %v) = %v, expected %v", model, index, name, fields, expected)
		}
	}
	check("Glyma01", 1, "keyword", "kinase")
	check("Glyma01", 2, "keyword", "membrane")
	check("Glyma01", 3, "keyword", None)
	check("Glyma02", 1, "keyword", "transport")
	check("Glyma01", 1, "nr", "nr hit one; nr late")
	check("Glyma02", 1, "nr", "nr two")
	check("Glyma01", 1, "swiss", None)
	check("Glyma02", 10, "trembl", "t")
	check("Glyma02", 11, "trembl", None)
	check("Glyma01", 7, "phyto", "PF1", "PTHR1", "KOG1", "1.1.1.1", "K1", "AT1G01", "ABC", "some protein")
	check("Glyma02", 10, "phyto", "PF2", None, "KOG2", None, None, None, None, None)
	check("Glyma03", 1, "phyto", None, None, None, None, None, None, None, None)
	check("Unknown", 1, "pfam", None)
	if a.Dropped["trembl"] != 2 {
		t.Errorf("dropped lines not counted: %v", a.Dropped)
	}
	if a.Width() != 13 || len(a.Headers()) != 13 {
		t.Errorf("annotation width failed: %v", a.Width())
	}
}

func TestLoadAnnotationsMissingSource(t *testing.T) {
	if _, err := LoadAnnotations(DefaultSources(t.TempDir())); err == nil {
		t.Error("missing annotation source not reported")
	}
}

func TestLoadResults(t *testing.T) {
	results, err := LoadResults(resultFolder(t), 2)
	if err != nil {
		t.Fatal(err)
	}
	if results.Highest != 3 || len(results.Libraries) != 2 || strings.Join(results.Missing, ",") != "R02" {
		t.Errorf("LoadResults failed: %+v", results)
	}
	if results.Libraries[0].Name != "R01_RNASeq1_W43" || results.Libraries[1].Name != "R03_RNASeq3_W45" {
		t.Errorf("LoadResults names failed: %v %v", results.Libraries[0].Name, results.Libraries[1].Name)
	}
	if strings.Join(results.Models(), ",") != "Glyma01,Glyma02,Glyma03" {
		t.Errorf("LoadResults models failed: %v", results.Models())
	}
	results, err = LoadResults(resultFolder(t), 5)
	if err != nil || results.Highest != 5 || strings.Join(results.Missing, ",") != "R02,R04,R05" {
		t.Errorf("LoadResults with higher highest failed: %+v", results)
	}

	dir := resultFolder(t)
	writeFile(t, filepath.Join(dir, "R20240115_x.rpkm"), "Model Name\tx\ty\nGlyma01\t1\t1\n")
	results, err = LoadResults(dir, 0)
	if err != nil || results.Highest != 3 || len(results.Missing) != 1 {
		t.Errorf("LoadResults with a date-stamped file failed: %+v", results)
	}
	if _, err := LoadResults(dir, library.MaxNumber+1); err == nil {
		t.Error("LoadResults accepted an out of range highest number")
	}

	writeFile(t, filepath.Join(dir, "R01_again.rpkm"), "Model Name\tx\ty\n")
	if _, err := LoadResults(dir, 0); !errors.Is(err, library.ErrAmbiguousMatch) {
		t.Errorf("duplicate result file not detected: %v", err)
	}
}

func fixedClock() time.Time {
	return time.Date(2021, time.March, 4, 15, 7, 0, 0, time.UTC)
}

func TestOutputNames(t *testing.T) {
	hits, rpkms := OutputNames("/agg", fixedClock(), 7)
	if hits != "/agg/Hits/RNASeq-1507-030421.Hits.R07.tsv" || rpkms != "/agg/RPKMs/RNASeq-1507-030421.RPKM.R07.tsv" {
		t.Errorf("OutputNames failed: %v %v", hits, rpkms)
	}
}

func TestRun(t *testing.T) {
	annotations, results := annotationFolder(t), resultFolder(t)
	writeFile(t, filepath.Join(results, "R03_RNASeq3_W45.fastq.rpkm"),
		"Model Name\tR03 rpkm\tR03 hits\nGlyma03\t7\t2\nGlyma01\t1.25\t1\nGlymaZZ\t3.5\t4\n")
	metrics := internal.NewMetrics()
	run := func() (*Report, []byte, []byte) {
		options := Options{
			AnnotationFolder: annotations,
			ResultFolder:     results,
			OutputFolder:     t.TempDir(),
			Now:              fixedClock,
			Metrics:          metrics,
		}
		report, err := Run(options)
		if err != nil {
			t.Fatal(err)
		}
		hits, err := os.ReadFile(report.HitsFile)
		if err != nil {
			t.Fatal(err)
		}
		rpkms, err := os.ReadFile(report.RPKMFile)
		if err != nil {
			t.Fatal(err)
		}
		return report, hits, rpkms
	}
	report, hits, rpkms := run()
	if report.Rows != 40 || report.Highest != 3 || strings.Join(report.Missing, ",") != "R02" || len(report.Libraries) != 2 {
		t.Errorf("Run report failed: %+v", report)
	}
	if filepath.Base(report.HitsFile) != "RNASeq-1507-030421.Hits.R03.tsv" {
		t.Errorf("Run hits file failed: %v", report.HitsFile)
	}

	hitLines := strings.Split(strings.TrimSuffix(string(hits), "\n"), "\n")
	rpkmLines := strings.Split(strings.TrimSuffix(string(rpkms), "\n"), "\n")
	if len(hitLines) != 41 || len(rpkmLines) != 41 {
		t.Fatalf("Run row count failed: %v %v", len(hitLines), len(rpkmLines))
	}
	expectedHeader := "Model\tcds Length\tcDNA Length\tHit Number\tR01_RNASeq1_W43 Hits\tR03_RNASeq3_W45 Hits\t" +
		"Keywords\tnr Annotation\tSwiss annotation\ttrEMBL annotation\tPFAM annotation\tPanther annotation\t" +
		"KOG annotation\tKEGG ec\tKEGG Orthology\tBest Arabidopsis Hit name\tBest Arabidopsis Hit symbol\t" +
		"Best Arabidopsis Hit defline\tPFAM Annotation"
	if hitLines[0] != expectedHeader {
		t.Errorf("Run header failed:\n%v\n%v", hitLines[0], expectedHeader)
	}
	if rpkmLines[0] != strings.Replace(strings.Replace(expectedHeader, "W43 Hits", "W43 RPKMs", 1), "W45 Hits", "W45 RPKMs", 1) {
		t.Errorf("Run RPKM header failed: %v", rpkmLines[0])
	}
	for i := range hitLines {
		h, r := strings.Split(hitLines[i], "\t"), strings.Split(rpkmLines[i], "\t")
		if len(h) != 19 || len(r) != 19 {
			t.Errorf("Run line %v has %v and %v columns", i, len(h), len(r))
		}
		if i > 0 && (h[0] != r[0] || h[3] != r[3]) {
			t.Errorf("Run rows differ at line %v", i)
		}
	}
	if hitLines[1] != "Glyma01\t900\t1200\t1\t10\t1\tkinase\tnr hit one; nr late\tNone\tNone\tPF1\tPTHR1\tKOG1\t1.1.1.1\tK1\tAT1G01\tABC\tsome protein\tNone" {
		t.Errorf("Run first row failed: %q", hitLines[1])
	}
	if rpkmLines[1] != "Glyma01\t900\t1200\t1\t12.5\t1.25\tkinase\tnr hit one; nr late\tNone\tNone\tPF1\tPTHR1\tKOG1\t1.1.1.1\tK1\tAT1G01\tABC\tsome protein\tNone" {
		t.Errorf("Run first RPKM row failed: %q", rpkmLines[1])
	}
	if !strings.HasPrefix(hitLines[21], "Glyma03\t0\t0\t1\t0\t2\t") {
		t.Errorf("Run defaults failed: %q", hitLines[21])
	}

	for i := 31; i <= 40; i++ {
		for _, line := range []string{hitLines[i], rpkmLines[i]} {
			fields := strings.Split(line, "\t")
			if len(fields) != 19 || fields[0] != "GlymaZZ" || fields[1] != "0" || fields[2] != "0" || fields[3] != strconv.Itoa(i-30) {
				t.Errorf("Run unannotated row failed: %q", line)
				continue
			}
			for _, field := range fields[6:] {
				if field != None {
					t.Errorf("Run unannotated row has annotation %q: %q", field, line)
				}
			}
		}
	}
	if !strings.HasPrefix(hitLines[31], "GlymaZZ\t0\t0\t1\t0\t4\t") || !strings.HasPrefix(rpkmLines[31], "GlymaZZ\t0\t0\t1\t0\t3.5\t") {
		t.Errorf("Run unannotated values failed: %q %q", hitLines[31], rpkmLines[31])
	}

	_, hits2, rpkms2 := run()
	if !bytes.Equal(hits, hits2) || !bytes.Equal(rpkms, rpkms2) {
		t.Error("Run is not idempotent")
	}
	if testutil.ToFloat64(metrics.AggregateMissingLibs) != 1 || testutil.ToFloat64(metrics.AggregateRows) != 40 {
		t.Error("Run metrics failed")
	}
}
