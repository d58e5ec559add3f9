// Package metrics exposes Prometheus collectors wired into the engine's
// lifecycle hooks.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gantry-ci/gantry/pkg/domain"
)

// Collector aggregates run, job, and stage outcomes.
type Collector struct {
	runs          *prometheus.CounterVec
	jobs          *prometheus.CounterVec
	stages        *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// NewCollector creates the collectors and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_runs_total",
			Help: "Completed pipeline runs by terminal status.",
		}, []string{"status"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_jobs_total",
			Help: "Completed matrix jobs by terminal status.",
		}, []string{"status"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_stages_total",
			Help: "Executed stages by name and outcome.",
		}, []string{"stage", "failed"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gantry_stage_duration_seconds",
			Help:    "Wall-clock duration of executed stages.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
	}
	reg.MustRegister(c.runs, c.jobs, c.stages, c.stageDuration)
	return c
}

// Hooks returns lifecycle hooks feeding the collectors.
func (c *Collector) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunFinish: func(_ context.Context, e *domain.RunEvent) {
			c.runs.WithLabelValues(string(e.Status)).Inc()
		},
		OnJobFinish: func(_ context.Context, e *domain.JobEvent) {
			c.jobs.WithLabelValues(string(e.Status)).Inc()
		},
		OnStageFinish: func(_ context.Context, e *domain.StageEvent) {
			c.stages.WithLabelValues(e.Stage, strconv.FormatBool(e.Failed)).Inc()
			c.stageDuration.WithLabelValues(e.Stage).Observe(e.Duration.Seconds())
		},
	}
}
