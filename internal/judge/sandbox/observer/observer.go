// Package observer defines metrics hooks for sandbox execution.
package observer

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// MetricsRecorder records sandbox metrics.
type MetricsRecorder interface {
	ObserveBuild(ctx context.Context, ok bool)
	ObserveContainerRun(ctx context.Context, command, outcome string, elapsed time.Duration)
	ObserveVerdict(ctx context.Context, outcome string)
	AddInflight(delta int)
}

// Noop discards everything.
type Noop struct{}

func (Noop) ObserveBuild(context.Context, bool)                                 {}
func (Noop) ObserveContainerRun(context.Context, string, string, time.Duration) {}
func (Noop) ObserveVerdict(context.Context, string)                             {}
func (Noop) AddInflight(int)                                                    {}

// Prometheus exports the judgebox_* collectors.
type Prometheus struct {
	builds      *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	verdicts    *prometheus.CounterVec
	inflight    prometheus.Gauge
}

// NewPrometheus registers the collectors with reg. A nil reg means the default registry.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Prometheus{
		builds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "judgebox_image_builds_total",
			Help: "Sandbox image builds by outcome",
		}, []string{"outcome"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "judgebox_container_runs_total",
			Help: "Sandbox container runs by command and outcome",
		}, []string{"command", "outcome"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "judgebox_container_run_seconds",
			Help:    "Wall time of one sandbox container run",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"command"}),
		verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "judgebox_verdicts_total",
			Help: "Stored verdicts by simplified outcome",
		}, []string{"outcome"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "judgebox_pool_inflight",
			Help: "Sandbox jobs currently holding a worker",
		}),
	}
}

func (p *Prometheus) ObserveBuild(_ context.Context, ok bool) {
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeError
	}
	p.builds.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ObserveContainerRun(_ context.Context, command, outcome string, elapsed time.Duration) {
	p.runs.WithLabelValues(command, outcome).Inc()
	p.runDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (p *Prometheus) ObserveVerdict(_ context.Context, outcome string) {
	p.verdicts.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) AddInflight(delta int) {
	p.inflight.Add(float64(delta))
}
