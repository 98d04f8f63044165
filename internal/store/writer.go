package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/optiscale/pulse/internal/record"
)

// encodeMetadata renders a metadata map as the JSON text stored in the
// free-form metadata column.
func encodeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// withBatchTx runs one batched insert inside a single transaction. The
// store serializes writes; DuckDB performs best with a single writer.
func (s *Store) withBatchTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	committed = true
	return nil
}

// WriteCost appends a batch of cost metrics in a single insert
// transaction and returns the number of rows written. An empty batch is a
// no-op.
func (s *Store) WriteCost(ctx context.Context, metrics []record.CostMetric) (int, error) {
	if len(metrics) == 0 {
		return 0, nil
	}
	err := s.withBatchTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO cost_metrics
			(timestamp, customer_id, provider, instance_id, cost_type, amount, currency)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, m := range metrics {
			if _, err := stmt.ExecContext(ctx,
				m.Timestamp, m.CustomerID, m.Provider, m.InstanceID,
				string(m.CostType), m.Amount, m.Currency,
			); err != nil {
				return fmt.Errorf("insert cost metric: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(metrics), nil
}

// WritePerformance appends a batch of performance metrics.
func (s *Store) WritePerformance(ctx context.Context, metrics []record.PerformanceMetric) (int, error) {
	if len(metrics) == 0 {
		return 0, nil
	}
	err := s.withBatchTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO performance_metrics
			(timestamp, customer_id, provider, resource_id, resource_name, metric_name, metric_value, unit, workload_type, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, m := range metrics {
			if _, err := stmt.ExecContext(ctx,
				m.Timestamp, m.CustomerID, m.Provider, m.ResourceID, m.ResourceName,
				m.MetricName, m.MetricValue, m.Unit, m.WorkloadType, encodeMetadata(m.Metadata),
			); err != nil {
				return fmt.Errorf("insert performance metric: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(metrics), nil
}

// WriteResource appends a batch of resource metrics.
func (s *Store) WriteResource(ctx context.Context, metrics []record.ResourceMetric) (int, error) {
	if len(metrics) == 0 {
		return 0, nil
	}
	err := s.withBatchTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO resource_metrics
			(timestamp, customer_id, provider, resource_id, resource_name, resource_type, status, region, utilization, capacity, unit, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, m := range metrics {
			if _, err := stmt.ExecContext(ctx,
				m.Timestamp, m.CustomerID, m.Provider, m.ResourceID, m.ResourceName,
				m.ResourceType, m.Status, m.Region, m.Utilization, m.Capacity, m.Unit,
				encodeMetadata(m.Metadata),
			); err != nil {
				return fmt.Errorf("insert resource metric: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(metrics), nil
}

// WriteApplication appends a batch of application-quality metrics.
func (s *Store) WriteApplication(ctx context.Context, metrics []record.ApplicationMetric) (int, error) {
	if len(metrics) == 0 {
		return 0, nil
	}
	err := s.withBatchTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO application_metrics
			(timestamp, customer_id, provider, application_id, application_name, metric_type, score, model_name, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, m := range metrics {
			if _, err := stmt.ExecContext(ctx,
				m.Timestamp, m.CustomerID, m.Provider, m.ApplicationID, m.ApplicationName,
				string(m.MetricType), m.Score, m.ModelName, encodeMetadata(m.Metadata),
			); err != nil {
				return fmt.Errorf("insert application metric: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(metrics), nil
}
