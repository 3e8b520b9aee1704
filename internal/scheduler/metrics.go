package scheduler

import (
	"context"

	"simplane/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	submitted metric.Int64Counter
	finished  metric.Int64Counter
	duration  metric.Float64Histogram
	wait      metric.Float64Histogram
}

func metricAttrs(kv ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(kv...)
}

func newMetrics(s *Scheduler) (*metrics, error) {
	meter := otel.Meter("simplane-scheduler")
	m := &metrics{}
	var err error

	if m.submitted, err = meter.Int64Counter("simplane.jobs.submitted",
		metric.WithDescription("Jobs accepted by the scheduler")); err != nil {
		return nil, err
	}
	if m.finished, err = meter.Int64Counter("simplane.jobs.completed",
		metric.WithDescription("Jobs that reached a terminal status, by status")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("simplane.job.duration",
		metric.WithDescription("Time from worker launch to terminal status"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.wait, err = meter.Float64Histogram("simplane.job.queue_wait",
		metric.WithDescription("Time a job spent queued before launch"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}

	if _, err = meter.Int64ObservableGauge("simplane.queue.depth",
		metric.WithDescription("Jobs waiting behind the active one"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(s.depth.Load())
			return nil
		})); err != nil {
		return nil, err
	}
	if _, err = meter.Int64ObservableGauge("simplane.worker.rss",
		metric.WithDescription("Resident memory of the active worker process"),
		metric.WithUnit("By"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			pid := s.activePid.Load()
			if pid <= 0 {
				return nil
			}
			rss, err := observability.ProcessRSS(ctx, int32(pid))
			if err != nil {
				// the worker may exit between launch and collection
				return nil
			}
			o.Observe(int64(rss))
			return nil
		})); err != nil {
		return nil, err
	}

	return m, nil
}
