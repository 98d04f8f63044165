package provider

import (
	"context"

	"github.com/optiscale/pulse/internal/record"
)

// WriteRecords routes a mixed batch to the writer's typed methods, one
// batched write per record kind. The switch over record.Kind replaces the
// reflection-based type inspection the writer would otherwise need.
func WriteRecords(ctx context.Context, w MetricWriter, records []record.Record) (int, error) {
	groups := record.GroupByKind(records)
	written := 0
	for _, kind := range record.Kinds() {
		group := groups[kind]
		if len(group) == 0 {
			continue
		}
		var (
			n   int
			err error
		)
		switch kind {
		case record.KindCost:
			batch := make([]record.CostMetric, 0, len(group))
			for _, r := range group {
				batch = append(batch, r.(record.CostMetric))
			}
			n, err = w.WriteCost(ctx, batch)
		case record.KindPerformance:
			batch := make([]record.PerformanceMetric, 0, len(group))
			for _, r := range group {
				batch = append(batch, r.(record.PerformanceMetric))
			}
			n, err = w.WritePerformance(ctx, batch)
		case record.KindResource:
			batch := make([]record.ResourceMetric, 0, len(group))
			for _, r := range group {
				batch = append(batch, r.(record.ResourceMetric))
			}
			n, err = w.WriteResource(ctx, batch)
		case record.KindApplication:
			batch := make([]record.ApplicationMetric, 0, len(group))
			for _, r := range group {
				batch = append(batch, r.(record.ApplicationMetric))
			}
			n, err = w.WriteApplication(ctx, batch)
		}
		written += n
		if err != nil {
			// Report what was written before the failing batch; sibling
			// kinds already persisted are kept.
			return written, err
		}
	}
	return written, nil
}
