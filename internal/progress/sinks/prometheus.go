package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/yacrawler/internal/progress"
)

// PrometheusSink exports crawl progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   prometheus.Histogram

	activeTasks   prometheus.Gauge
	fetches       *prometheus.CounterVec
	fetchErrors   prometheus.Counter
	fetchBytes    prometheus.Counter
	fetchDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
	linksEnqueued prometheus.Counter
	canceledTasks prometheus.Counter
}

// NewPrometheusSink registers the collectors on reg, or on the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yacrawler_runs_started_total",
			Help: "Crawl runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yacrawler_runs_completed_total",
			Help: "Crawl runs finished, partitioned by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "yacrawler_run_duration_seconds",
			Help:    "Wall time per crawl run.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 3600},
		}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yacrawler_active_tasks",
			Help: "Tasks currently in flight.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yacrawler_fetches_total",
			Help: "Completed fetches partitioned by status class.",
		}, []string{"status_class"}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yacrawler_fetch_errors_total",
			Help: "Fetches that failed at the network level.",
		}),
		fetchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yacrawler_fetch_bytes_total",
			Help: "Response body bytes downloaded.",
		}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "yacrawler_fetch_duration_seconds",
			Help:    "Fetch latency partitioned by status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"status_class"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yacrawler_stage_errors_total",
			Help: "Pipeline stage failures partitioned by stage.",
		}, []string{"stage"}),
		linksEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yacrawler_links_enqueued_total",
			Help: "Discovered links admitted to the frontier.",
		}),
		canceledTasks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yacrawler_tasks_canceled_total",
			Help: "Tasks that observed cancellation and discarded their result.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runDuration,
		s.activeTasks,
		s.fetches,
		s.fetchErrors,
		s.fetchBytes,
		s.fetchDuration,
		s.stageErrors,
		s.linksEnqueued,
		s.canceledTasks,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume implements progress.Sink.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageRunDone:
		outcome := evt.Note
		if outcome == "" {
			outcome = progress.OutcomeCompleted
		}
		s.runsCompleted.WithLabelValues(outcome).Inc()
		if evt.Dur > 0 {
			s.runDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageFetchDone:
		class := string(evt.StatusClass)
		s.fetches.WithLabelValues(class).Inc()
		if evt.Bytes > 0 {
			s.fetchBytes.Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.fetchDuration.WithLabelValues(class).Observe(evt.Dur.Seconds())
		}
		if evt.Enqueued > 0 {
			s.linksEnqueued.Add(float64(evt.Enqueued))
		}
	case progress.StageFetchError:
		s.fetchErrors.Inc()
	case progress.StageStageError:
		s.stageErrors.WithLabelValues(evt.PipelineStage).Inc()
	case progress.StageTaskCanceled:
		s.canceledTasks.Inc()
	}
	if evt.Stage != progress.StageStageError {
		s.activeTasks.Set(float64(evt.Active))
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
