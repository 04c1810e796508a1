// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exports the statistics of the analyses as prometheus metrics. Metrics are registered in a
// registry owned by a Metrics value, and can be written to a file in the text exposition format.
package metrics

import (
	"errors"
	"fmt"

	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "jargot"

// Outcomes of an analysis run
const (
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
	OutcomeFailed   = "failed"
)

// Metrics holds the collectors of the analyses
type Metrics struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	flows       *prometheus.CounterVec
	pathEdges   *prometheus.HistogramVec
	duration    *prometheus.HistogramVec
	summaries   *prometheus.CounterVec
	methods     *prometheus.GaugeVec
	unresolved  *prometheus.CounterVec
	cacheSize   prometheus.Gauge
	failures    prometheus.Gauge
	resolutions *prometheus.GaugeVec
	stateErrors prometheus.Gauge
}

// New returns metrics registered in a new registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "taint",
			Name:      "runs_total",
			Help:      "Total number of taint analysis runs",
		}, []string{"problem", "outcome"}),
		flows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "taint",
			Name:      "flows_total",
			Help:      "Total number of flows reported",
		}, []string{"problem"}),
		pathEdges: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "path_edges",
			Help:      "Number of path edges processed per run",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 10), // 16 to ~4M
		}, []string{"problem"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "duration_seconds",
			Help:      "Duration of the solver runs",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~30s
		}, []string{"problem"}),
		summaries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "summary_edges_total",
			Help:      "Total number of summary edges computed",
		}, []string{"problem"}),
		methods: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "methods_visited",
			Help:      "Number of methods visited by the last run",
		}, []string{"problem"}),
		unresolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "unresolved_calls_total",
			Help:      "Total number of call statements reached without a known callee",
		}, []string{"problem"}),
		cacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ir",
			Name:      "methods_cached",
			Help:      "Number of methods whose control flow graph has been built or attempted",
		}),
		failures: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ir",
			Name:      "build_failures",
			Help:      "Number of methods whose control flow graph could not be built",
		}),
		resolutions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "callgraph",
			Name:      "resolutions",
			Help:      "Number of call resolutions, memoized or computed",
		}, []string{"result"}),
		stateErrors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "errors",
			Help:      "Number of errors recorded in the analyzer state",
		}),
	}
}

// Registry returns the registry of the metrics
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRun records the statistics of a solver run for problem. flows is the number of flows reported and err the
// error of the run.
func (m *Metrics) ObserveRun(problem string, stats dataflow.Stats, flows int, err error) {
	outcome := OutcomeComplete
	switch {
	case errors.Is(err, dataflow.ErrAnalysisIncomplete):
		outcome = OutcomePartial
	case err != nil:
		outcome = OutcomeFailed
	}
	m.runs.WithLabelValues(problem, outcome).Inc()
	if outcome == OutcomeFailed {
		return
	}
	m.flows.WithLabelValues(problem).Add(float64(flows))
	m.pathEdges.WithLabelValues(problem).Observe(float64(stats.PathEdges))
	m.duration.WithLabelValues(problem).Observe(stats.Duration.Seconds())
	m.summaries.WithLabelValues(problem).Add(float64(stats.SummaryEdges))
	m.methods.WithLabelValues(problem).Set(float64(stats.MethodsVisited))
	m.unresolved.WithLabelValues(problem).Add(float64(stats.UnresolvedCalls))
}

// ObserveState records the size of the method cache, the call resolutions and the errors of state
func (m *Metrics) ObserveState(state *dataflow.AnalyzerState) {
	m.cacheSize.Set(float64(state.Cache.Size()))
	m.failures.Set(float64(len(state.Cache.Failures())))
	hits, misses := state.Resolver.Stats()
	m.resolutions.WithLabelValues("memoized").Set(float64(hits))
	m.resolutions.WithLabelValues("computed").Set(float64(misses))
	n := 0
	for _, errs := range state.Errors() {
		n += len(errs)
	}
	m.stateErrors.Set(float64(n))
}

// WriteToTextfile writes the metrics to filename in the text exposition format
func (m *Metrics) WriteToTextfile(filename string) error {
	if err := prometheus.WriteToTextfile(filename, m.registry); err != nil {
		return fmt.Errorf("could not write metrics: %w", err)
	}
	return nil
}
