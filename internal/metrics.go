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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects the counters of one rnaseq run. They can be
// written to a file in the Prometheus text exposition format, for
// example for a node exporter textfile collector.
type Metrics struct {
	registry *prometheus.Registry

	AlignmentJobs        *prometheus.CounterVec
	AlignmentDuration    prometheus.Histogram
	QuantifiedLibraries  *prometheus.CounterVec
	ZeroLengthModels     prometheus.Counter
	AggregateRows        prometheus.Gauge
	AggregateMissingLibs prometheus.Gauge
}

// NewMetrics returns a fresh set of metrics with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AlignmentJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rnaseq_alignment_jobs_total",
			Help: "Number of bowtie jobs by outcome.",
		}, []string{"status"}),
		AlignmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rnaseq_alignment_job_duration_seconds",
			Help:    "Wall clock time of bowtie jobs.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		QuantifiedLibraries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rnaseq_quantified_libraries_total",
			Help: "Number of libraries quantified by outcome.",
		}, []string{"status"}),
		ZeroLengthModels: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rnaseq_zero_length_models_total",
			Help: "Number of models whose RPKM was set to 0 because their length is 0.",
		}),
		AggregateRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rnaseq_aggregate_rows",
			Help: "Number of rows in the last aggregate tables.",
		}),
		AggregateMissingLibs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rnaseq_aggregate_missing_libraries",
			Help: "Number of libraries without quantification results in the last aggregation.",
		}),
	}
	m.registry.MustRegister(
		m.AlignmentJobs,
		m.AlignmentDuration,
		m.QuantifiedLibraries,
		m.ZeroLengthModels,
		m.AggregateRows,
		m.AggregateMissingLibs,
	)
	return m
}

// ObserveAlignment records the outcome of one bowtie job.
// It is safe to call on a nil *Metrics.
func (m *Metrics) ObserveAlignment(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AlignmentJobs.WithLabelValues(status).Inc()
	m.AlignmentDuration.Observe(duration.Seconds())
}

// ObserveQuantification records the outcome of one quantification,
// and the number of zero-length models it encountered.
// It is safe to call on a nil *Metrics.
func (m *Metrics) ObserveQuantification(status string, zeroLength int) {
	if m == nil {
		return
	}
	m.QuantifiedLibraries.WithLabelValues(status).Inc()
	m.ZeroLengthModels.Add(float64(zeroLength))
}

// ObserveAggregation records the shape of the last aggregation.
// It is safe to call on a nil *Metrics.
func (m *Metrics) ObserveAggregation(rows, missing int) {
	if m == nil {
		return
	}
	m.AggregateRows.Set(float64(rows))
	m.AggregateMissingLibs.Set(float64(missing))
}

// WriteFile writes all metrics to filename in the text exposition
// format. The file is replaced atomically.
func (m *Metrics) WriteFile(filename string) error {
	if err := EnsureParentDirs(filename); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(filename, m.registry)
}
