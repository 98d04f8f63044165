package source

import (
	"math"
	"time"

	"github.com/optiscale/pulse/internal/record"
)

// DeriveCost computes the accrued compute cost for a running pod as
// hourlyRate x elapsed hours, rounded to 4 decimals. It returns false when
// no hourly rate is configured: the absence of cost inputs is a
// configuration choice, not a failure. The caller supplies "now" so the
// derived amount is deterministic for a frozen clock.
func DeriveCost(now time.Time, customerID, provider, instanceID string, hourlyRate float64, podStart time.Time) (record.CostMetric, bool) {
	if hourlyRate <= 0 {
		return record.CostMetric{}, false
	}

	elapsed := now.Sub(podStart).Seconds()
	if podStart.IsZero() || elapsed < 0 {
		elapsed = 0
	}
	amount := math.Round(hourlyRate*elapsed/3600*10000) / 10000

	return record.CostMetric{
		Timestamp:  now,
		CustomerID: customerID,
		Provider:   provider,
		InstanceID: instanceID,
		CostType:   record.CostCompute,
		Amount:     amount,
		Currency:   "USD",
	}, true
}
