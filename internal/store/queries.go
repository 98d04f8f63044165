package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/optiscale/pulse/internal/record"
)

var kindTables = map[record.Kind]string{
	record.KindCost:        "cost_metrics",
	record.KindPerformance: "performance_metrics",
	record.KindResource:    "resource_metrics",
	record.KindApplication: "application_metrics",
}

// CountByKind returns the number of rows stored for a record kind.
func (s *Store) CountByKind(ctx context.Context, kind record.Kind) (int, error) {
	table, ok := kindTables[kind]
	if !ok {
		return 0, fmt.Errorf("unknown record kind %q", kind)
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func decodeMetadata(raw string) map[string]string {
	if raw == "" || raw == "{}" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

// customerFilter builds the optional customer predicate shared by the
// read-back queries.
func customerFilter(customerID string) (string, []any) {
	if customerID == "" {
		return "", nil
	}
	return " WHERE customer_id = ?", []any{customerID}
}

// RecentCost returns the most recent cost metrics, newest first.
func (s *Store) RecentCost(ctx context.Context, customerID string, limit int) ([]record.CostMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	where, args := customerFilter(customerID)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, customer_id, provider, instance_id, cost_type, amount, currency
		FROM cost_metrics`+where+` ORDER BY timestamp DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query cost_metrics: %w", err)
	}
	defer rows.Close()

	var out []record.CostMetric
	for rows.Next() {
		var m record.CostMetric
		var costType string
		if err := rows.Scan(&m.Timestamp, &m.CustomerID, &m.Provider, &m.InstanceID, &costType, &m.Amount, &m.Currency); err != nil {
			return nil, fmt.Errorf("scan cost metric: %w", err)
		}
		m.CostType = record.CostType(costType)
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentPerformance returns the most recent performance metrics, newest first.
func (s *Store) RecentPerformance(ctx context.Context, customerID string, limit int) ([]record.PerformanceMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	where, args := customerFilter(customerID)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, customer_id, provider, resource_id, resource_name, metric_name, metric_value, unit, workload_type, metadata
		FROM performance_metrics`+where+` ORDER BY timestamp DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query performance_metrics: %w", err)
	}
	defer rows.Close()

	var out []record.PerformanceMetric
	for rows.Next() {
		var m record.PerformanceMetric
		var meta string
		if err := rows.Scan(&m.Timestamp, &m.CustomerID, &m.Provider, &m.ResourceID, &m.ResourceName,
			&m.MetricName, &m.MetricValue, &m.Unit, &m.WorkloadType, &meta); err != nil {
			return nil, fmt.Errorf("scan performance metric: %w", err)
		}
		m.Metadata = decodeMetadata(meta)
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentResource returns the most recent resource metrics, newest first.
func (s *Store) RecentResource(ctx context.Context, customerID string, limit int) ([]record.ResourceMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	where, args := customerFilter(customerID)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, customer_id, provider, resource_id, resource_name, resource_type, status, region, utilization, capacity, unit, metadata
		FROM resource_metrics`+where+` ORDER BY timestamp DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query resource_metrics: %w", err)
	}
	defer rows.Close()

	var out []record.ResourceMetric
	for rows.Next() {
		var m record.ResourceMetric
		var meta string
		if err := rows.Scan(&m.Timestamp, &m.CustomerID, &m.Provider, &m.ResourceID, &m.ResourceName,
			&m.ResourceType, &m.Status, &m.Region, &m.Utilization, &m.Capacity, &m.Unit, &meta); err != nil {
			return nil, fmt.Errorf("scan resource metric: %w", err)
		}
		m.Metadata = decodeMetadata(meta)
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentApplication returns the most recent application metrics, newest first.
func (s *Store) RecentApplication(ctx context.Context, customerID string, limit int) ([]record.ApplicationMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	where, args := customerFilter(customerID)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, customer_id, provider, application_id, application_name, metric_type, score, model_name, metadata
		FROM application_metrics`+where+` ORDER BY timestamp DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query application_metrics: %w", err)
	}
	defer rows.Close()

	var out []record.ApplicationMetric
	for rows.Next() {
		var m record.ApplicationMetric
		var metricType, meta string
		if err := rows.Scan(&m.Timestamp, &m.CustomerID, &m.Provider, &m.ApplicationID, &m.ApplicationName,
			&metricType, &m.Score, &m.ModelName, &meta); err != nil {
			return nil, fmt.Errorf("scan application metric: %w", err)
		}
		m.MetricType = record.ApplicationMetricType(metricType)
		m.Metadata = decodeMetadata(meta)
		out = append(out, m)
	}
	return out, rows.Err()
}
