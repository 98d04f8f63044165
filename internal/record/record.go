package record

import "time"

// Kind identifies the concrete metric record type so mixed batches can be
// routed to the matching store table with a switch instead of reflection.
type Kind string

const (
	KindCost        Kind = "cost"
	KindPerformance Kind = "performance"
	KindResource    Kind = "resource"
	KindApplication Kind = "application"
)

// Kinds lists every record kind in routing order.
func Kinds() []Kind {
	return []Kind{KindCost, KindPerformance, KindResource, KindApplication}
}

// Record is implemented by every metric record variant. Records are
// immutable value objects: they are created by a source adapter, batched,
// and appended to the store, never updated or deleted.
type Record interface {
	Kind() Kind
}

// CostType classifies what a cost amount was incurred for.
type CostType string

const (
	CostCompute  CostType = "compute"
	CostStorage  CostType = "storage"
	CostNetwork  CostType = "network"
	CostDatabase CostType = "database"
	CostOther    CostType = "other"
)

// ApplicationMetricType classifies application-quality scores.
type ApplicationMetricType string

const (
	AppQuality       ApplicationMetricType = "quality"
	AppHallucination ApplicationMetricType = "hallucination"
	AppToxicity      ApplicationMetricType = "toxicity"
)

// CostMetric is one cost observation for a customer on a provider.
type CostMetric struct {
	Timestamp  time.Time `json:"timestamp"`
	CustomerID string    `json:"customer_id"`
	Provider   string    `json:"provider"`
	InstanceID string    `json:"instance_id,omitempty"`
	CostType   CostType  `json:"cost_type"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
}

func (CostMetric) Kind() Kind { return KindCost }

// PerformanceMetric is one named performance measurement for a resource.
type PerformanceMetric struct {
	Timestamp    time.Time         `json:"timestamp"`
	CustomerID   string            `json:"customer_id"`
	Provider     string            `json:"provider"`
	ResourceID   string            `json:"resource_id"`
	ResourceName string            `json:"resource_name"`
	MetricName   string            `json:"metric_name"`
	MetricValue  float64           `json:"metric_value"`
	Unit         string            `json:"unit"`
	WorkloadType string            `json:"workload_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (PerformanceMetric) Kind() Kind { return KindPerformance }

// ResourceMetric is one utilization/capacity observation for a resource.
type ResourceMetric struct {
	Timestamp    time.Time         `json:"timestamp"`
	CustomerID   string            `json:"customer_id"`
	Provider     string            `json:"provider"`
	ResourceID   string            `json:"resource_id"`
	ResourceName string            `json:"resource_name"`
	ResourceType string            `json:"resource_type"`
	Status       string            `json:"status"`
	Region       string            `json:"region,omitempty"`
	Utilization  float64           `json:"utilization"`
	Capacity     float64           `json:"capacity"`
	Unit         string            `json:"unit"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (ResourceMetric) Kind() Kind { return KindResource }

// ApplicationMetric is one application-quality score (success rate,
// hallucination score, toxicity score) for a deployed application.
type ApplicationMetric struct {
	Timestamp       time.Time             `json:"timestamp"`
	CustomerID      string                `json:"customer_id"`
	Provider        string                `json:"provider"`
	ApplicationID   string                `json:"application_id"`
	ApplicationName string                `json:"application_name"`
	MetricType      ApplicationMetricType `json:"metric_type"`
	Score           float64               `json:"score"`
	ModelName       string                `json:"model_name,omitempty"`
	Metadata        map[string]string     `json:"metadata,omitempty"`
}

func (ApplicationMetric) Kind() Kind { return KindApplication }

// GroupByKind splits a mixed batch into per-kind slices, preserving order
// within each kind.
func GroupByKind(records []Record) map[Kind][]Record {
	if len(records) == 0 {
		return nil
	}
	groups := make(map[Kind][]Record)
	for _, r := range records {
		groups[r.Kind()] = append(groups[r.Kind()], r)
	}
	return groups
}
