package metrics

import (
	"context"

	"github.com/optiscale/pulse/internal/provider"
	"github.com/optiscale/pulse/internal/record"
)

// InstrumentedWriter wraps a MetricWriter and counts rows written per
// record kind. It is wired in at startup so neither the store nor the
// adapters know about the metrics sink.
type InstrumentedWriter struct {
	next     provider.MetricWriter
	pipeline *Pipeline
}

func NewInstrumentedWriter(next provider.MetricWriter, pipeline *Pipeline) *InstrumentedWriter {
	return &InstrumentedWriter{next: next, pipeline: pipeline}
}

func (w *InstrumentedWriter) WriteCost(ctx context.Context, metrics []record.CostMetric) (int, error) {
	n, err := w.next.WriteCost(ctx, metrics)
	w.pipeline.RecordsWritten.WithLabelValues(string(record.KindCost)).Add(float64(n))
	return n, err
}

func (w *InstrumentedWriter) WritePerformance(ctx context.Context, metrics []record.PerformanceMetric) (int, error) {
	n, err := w.next.WritePerformance(ctx, metrics)
	w.pipeline.RecordsWritten.WithLabelValues(string(record.KindPerformance)).Add(float64(n))
	return n, err
}

func (w *InstrumentedWriter) WriteResource(ctx context.Context, metrics []record.ResourceMetric) (int, error) {
	n, err := w.next.WriteResource(ctx, metrics)
	w.pipeline.RecordsWritten.WithLabelValues(string(record.KindResource)).Add(float64(n))
	return n, err
}

func (w *InstrumentedWriter) WriteApplication(ctx context.Context, metrics []record.ApplicationMetric) (int, error) {
	n, err := w.next.WriteApplication(ctx, metrics)
	w.pipeline.RecordsWritten.WithLabelValues(string(record.KindApplication)).Add(float64(n))
	return n, err
}
