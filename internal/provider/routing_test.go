package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiscale/pulse/internal/record"
)

// fakeWriter counts typed writes and optionally fails one kind.
type fakeWriter struct {
	cost, perf, res, app int
	failKind             record.Kind
}

var errWrite = errors.New("write failed")

func (w *fakeWriter) WriteCost(ctx context.Context, m []record.CostMetric) (int, error) {
	if w.failKind == record.KindCost {
		return 0, errWrite
	}
	w.cost += len(m)
	return len(m), nil
}

func (w *fakeWriter) WritePerformance(ctx context.Context, m []record.PerformanceMetric) (int, error) {
	if w.failKind == record.KindPerformance {
		return 0, errWrite
	}
	w.perf += len(m)
	return len(m), nil
}

func (w *fakeWriter) WriteResource(ctx context.Context, m []record.ResourceMetric) (int, error) {
	if w.failKind == record.KindResource {
		return 0, errWrite
	}
	w.res += len(m)
	return len(m), nil
}

func (w *fakeWriter) WriteApplication(ctx context.Context, m []record.ApplicationMetric) (int, error) {
	if w.failKind == record.KindApplication {
		return 0, errWrite
	}
	w.app += len(m)
	return len(m), nil
}

func TestWriteRecordsRoutesByKind(t *testing.T) {
	w := &fakeWriter{}
	records := []record.Record{
		record.PerformanceMetric{MetricName: "latency_sum"},
		record.CostMetric{Amount: 1},
		record.ResourceMetric{ResourceName: "cpu_utilization"},
		record.PerformanceMetric{MetricName: "request_count"},
		record.ApplicationMetric{Score: 99},
	}

	n, err := WriteRecords(context.Background(), w, records)

	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 1, w.cost)
	assert.Equal(t, 2, w.perf)
	assert.Equal(t, 1, w.res)
	assert.Equal(t, 1, w.app)
}

func TestWriteRecordsEmpty(t *testing.T) {
	w := &fakeWriter{}
	n, err := WriteRecords(context.Background(), w, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWriteRecordsPartialFailure(t *testing.T) {
	// Fail the resource batch; cost and performance write first in
	// routing order and stay persisted.
	w := &fakeWriter{failKind: record.KindResource}
	records := []record.Record{
		record.CostMetric{Amount: 1},
		record.PerformanceMetric{MetricName: "latency_sum"},
		record.ResourceMetric{ResourceName: "cpu_utilization"},
		record.ApplicationMetric{Score: 99},
	}

	n, err := WriteRecords(context.Background(), w, records)

	require.ErrorIs(t, err, errWrite)
	assert.Equal(t, 2, n, "count reflects rows written before the failing batch")
	assert.Equal(t, 1, w.cost)
	assert.Equal(t, 1, w.perf)
	assert.Zero(t, w.app, "routing stops at the first failing kind")
}
