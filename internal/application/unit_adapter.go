package application

import (
	"context"
	"time"

	"github.com/ahrav/go-ternary/internal/domain"
	"github.com/ahrav/go-ternary/internal/ports"
)

var _ ports.Executable = (*UnitAdapter)(nil)

// UnitAdapter lets a ports.Unit run as a pipeline stage. When a
// MetricsCollector is set, every execution is timed.
type UnitAdapter struct {
	unit    ports.Unit
	id      string
	metrics ports.MetricsCollector
}

// NewUnitAdapter wraps unit under id. metrics may be nil.
func NewUnitAdapter(unit ports.Unit, id string, metrics ports.MetricsCollector) *UnitAdapter {
	return &UnitAdapter{unit: unit, id: id, metrics: metrics}
}

// Execute delegates to the unit.
func (ua *UnitAdapter) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	if ua.metrics == nil {
		return ua.unit.Execute(ctx, state)
	}

	start := time.Now()
	out, err := ua.unit.Execute(ctx, state)
	status := "ok"
	if err != nil {
		status = "error"
	}
	ua.metrics.RecordLatency("unit_execute", time.Since(start), map[string]string{
		"unit":   ua.id,
		"status": status,
	})
	return out, err
}

// ID returns the adapter id.
func (ua *UnitAdapter) ID() string { return ua.id }

// Unit returns the wrapped unit.
func (ua *UnitAdapter) Unit() ports.Unit { return ua.unit }
