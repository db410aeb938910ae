package status

import (
	"context"
	"fmt"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/db"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/health"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TelemetrySource supplies the single most recent telemetry row per machine.
type TelemetrySource interface {
	FetchLatestPerMachine(ctx context.Context) ([]db.TelemetryReading, error)
}

// MachineStore reads machine metadata and writes classified statuses in one
// batch.
type MachineStore interface {
	All(ctx context.Context) ([]db.Machine, error)
	SetStatuses(ctx context.Context, statuses map[uuid.UUID]string) error
}

// Classifier derives the RUNNING/IDLE operating status from the latest
// telemetry per machine. Last-value-wins: no history, no debounce.
type Classifier struct {
	telemetry  TelemetrySource
	machines   MachineStore
	runningRPM float64
	logger     *zap.Logger
}

// NewClassifier creates a status classifier. runningRPM is the operating
// point above which a machine counts as RUNNING.
func NewClassifier(telemetry TelemetrySource, machines MachineStore, runningRPM float64, logger *zap.Logger) *Classifier {
	return &Classifier{
		telemetry:  telemetry,
		machines:   machines,
		runningRPM: runningRPM,
		logger:     logger,
	}
}

// Classify maps an RPM value to an operating status. The boundary is
// exclusive on the high side: rpm equal to the operating point is IDLE.
func (c *Classifier) Classify(rpm float64) string {
	if rpm > c.runningRPM {
		return db.StatusRunning
	}
	return db.StatusIdle
}

// Run executes one classification pass and returns the number of machines
// whose status changed. Unchanged statuses are not rewritten.
func (c *Classifier) Run(ctx context.Context) (int, error) {
	machines, err := c.machines.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load machines: %w", err)
	}
	byID := make(map[uuid.UUID]db.Machine, len(machines))
	for _, m := range machines {
		byID[m.MachineID] = m
	}

	latest, err := c.telemetry.FetchLatestPerMachine(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch latest telemetry: %w", err)
	}

	changes := make(map[uuid.UUID]string)
	for _, t := range latest {
		machine, ok := byID[t.MachineID]
		if !ok {
			continue
		}
		next := c.Classify(health.RPM(t.Mechanical))
		if machine.Status != next {
			changes[t.MachineID] = next
		}
	}

	if len(changes) == 0 {
		return 0, nil
	}
	if err := c.machines.SetStatuses(ctx, changes); err != nil {
		return 0, fmt.Errorf("failed to update machine statuses: %w", err)
	}
	return len(changes), nil
}
