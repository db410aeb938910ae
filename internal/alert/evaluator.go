package alert

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/db"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/health"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/metrics"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/threshold"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Lifecycle event types published after each tick commits.
const (
	EventOpened       = "opened"
	EventCleared      = "cleared"
	EventAcknowledged = "acknowledged"
)

// Event is one alert lifecycle update for downstream consumers.
type Event struct {
	Type  string        `json:"type"`
	Alert db.AlertEvent `json:"alert"`
}

// Notifier publishes alert lifecycle events. Notifications are best effort;
// failures must not affect the committed state.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// TelemetrySource supplies telemetry rows after the evaluator's watermark in
// ascending time order.
type TelemetrySource interface {
	FetchUnprocessed(ctx context.Context, since time.Time, limit int) ([]db.TelemetryReading, error)
}

// HealthSource supplies the derived health records for the same window, used
// for the load parameters.
type HealthSource interface {
	Window(ctx context.Context, since time.Time, limit int) ([]db.HealthRecord, error)
}

// MachineSource supplies machine metadata (tenant, machine type).
type MachineSource interface {
	All(ctx context.Context) ([]db.Machine, error)
}

// Store is the alert persistence collaborator. Apply must commit the whole
// change set and the watermark advance atomically, and must never move an
// ACKNOWLEDGED alert to any other status. AcknowledgedAlertIDs must be read
// fresh each tick: a human acknowledgement may land mid-tick.
type Store interface {
	Watermark(ctx context.Context) (time.Time, error)
	OpenAlerts(ctx context.Context) ([]db.AlertEvent, error)
	AcknowledgedAlertIDs(ctx context.Context) (map[uuid.UUID]struct{}, error)
	Apply(ctx context.Context, changes ChangeSet) error
}

// ChangeSet is the atomic outcome of one evaluation tick.
type ChangeSet struct {
	Created      []db.AlertEvent
	Pending      []uuid.UUID
	Acknowledged []uuid.UUID
	// Watermark is the new last-processed telemetry timestamp. Zero means
	// no rows were processed and the stored watermark stays put.
	Watermark time.Time
}

// Stats summarizes one evaluation tick.
type Stats struct {
	Processed    int
	Created      int
	Cleared      int
	Acknowledged int
}

// Evaluator drives each (machine, parameter) alert through its lifecycle
// state machine and reconciles externally recorded acknowledgements.
type Evaluator struct {
	telemetry  TelemetrySource
	healths    HealthSource
	machines   MachineSource
	store      Store
	resolver   *threshold.Resolver
	notifier   Notifier
	runningRPM float64
	batchSize  int
	logger     *zap.Logger
}

// Option customizes the evaluator.
type Option func(*Evaluator)

// WithNotifier assigns a lifecycle event notifier.
func WithNotifier(n Notifier) Option {
	return func(e *Evaluator) { e.notifier = n }
}

// NewEvaluator creates an alert evaluator.
func NewEvaluator(
	telemetry TelemetrySource,
	healths HealthSource,
	machines MachineSource,
	store Store,
	resolver *threshold.Resolver,
	runningRPM float64,
	batchSize int,
	logger *zap.Logger,
	opts ...Option,
) *Evaluator {
	e := &Evaluator{
		telemetry:  telemetry,
		healths:    healths,
		machines:   machines,
		store:      store,
		resolver:   resolver,
		runningRPM: runningRPM,
		batchSize:  batchSize,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type alertKey struct {
	machineID uuid.UUID
	parameter string
}

// openAlert tracks the in-memory state of one open condition during a tick.
type openAlert struct {
	event  db.AlertEvent
	stored bool
}

type healthKey struct {
	machineID  uuid.UUID
	recordedAt time.Time
}

// Run executes one evaluation tick. Re-running over an overlapping window is
// safe: creation is keyed on "no open ACTIVE alert for (machine, parameter)",
// not on sample timestamps.
func (e *Evaluator) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	watermark, err := e.store.Watermark(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to read alert watermark: %w", err)
	}

	readings, err := e.telemetry.FetchUnprocessed(ctx, watermark, e.batchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch telemetry window: %w", err)
	}

	open, err := e.store.OpenAlerts(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load open alerts: %w", err)
	}

	active := make(map[alertKey]*openAlert)
	storedOpen := make([]*openAlert, 0, len(open))
	for _, a := range open {
		oa := &openAlert{event: a, stored: true}
		storedOpen = append(storedOpen, oa)
		if a.Status == db.AlertActive {
			active[alertKey{machineID: a.MachineID, parameter: a.Parameter}] = oa
		}
	}

	var created []*openAlert
	var pendingIDs []uuid.UUID

	raise := func(key alertKey, severity string, value float64, at time.Time, thresholdID *uuid.UUID) {
		if _, exists := active[key]; exists {
			// An open ACTIVE alert suppresses duplicates. Severity is not
			// escalated in place; the original severity stands until the
			// alert clears.
			return
		}
		oa := &openAlert{event: db.AlertEvent{
			AlertID:     uuid.New(),
			MachineID:   key.machineID,
			Parameter:   key.parameter,
			Severity:    severity,
			ActualValue: value,
			Status:      db.AlertActive,
			GeneratedAt: at,
			ThresholdID: thresholdID,
		}}
		active[key] = oa
		created = append(created, oa)
	}

	clearOpen := func(key alertKey) {
		oa, exists := active[key]
		if !exists {
			return
		}
		if oa.stored {
			pendingIDs = append(pendingIDs, oa.event.AlertID)
		}
		oa.event.Status = db.AlertPending
		delete(active, key)
	}

	if len(readings) > 0 {
		machines, err := e.machines.All(ctx)
		if err != nil {
			return stats, fmt.Errorf("failed to load machines: %w", err)
		}
		machineByID := make(map[uuid.UUID]db.Machine, len(machines))
		for _, m := range machines {
			machineByID[m.MachineID] = m
		}

		loads, err := e.loadWindow(ctx, watermark)
		if err != nil {
			return stats, err
		}

		rulesets := make(map[uuid.UUID]*threshold.Ruleset)
		latestPerMachine := make(map[uuid.UUID]db.TelemetryReading)

		for _, t := range readings {
			machine, ok := machineByID[t.MachineID]
			if !ok {
				continue
			}
			latestPerMachine[t.MachineID] = t

			ruleset, ok := rulesets[machine.TenantID]
			if !ok {
				ruleset, err = e.resolver.Load(ctx, machine.TenantID)
				if err != nil {
					e.logger.Error("failed to load threshold rules for tenant",
						zap.String("tenant_id", machine.TenantID.String()),
						zap.Error(err),
					)
					rulesets[machine.TenantID] = nil
					continue
				}
				rulesets[machine.TenantID] = ruleset
			}
			if ruleset == nil {
				continue
			}

			for _, m := range measurements(&t, loads) {
				limit, err := ruleset.Resolve(machine.MachineType, m.parameter, t.RecordedAt)
				if err != nil {
					if errors.Is(err, threshold.ErrNoGlobalDefault) {
						e.logger.Warn("no threshold rule for parameter, skipping",
							zap.String("machine_id", t.MachineID.String()),
							zap.String("parameter", m.parameter),
						)
						continue
					}
					e.logger.Error("threshold resolution failed",
						zap.String("parameter", m.parameter),
						zap.Error(err),
					)
					continue
				}

				key := alertKey{machineID: t.MachineID, parameter: m.parameter}
				triggered, severity := evaluate(m.parameter, m.value, limit)
				if triggered {
					thresholdID := limit.ThresholdID
					raise(key, severity, m.value, t.RecordedAt, &thresholdID)
				} else {
					clearOpen(key)
				}
			}
		}

		// MachineStatus pseudo-parameter: the latest sample per machine in
		// this window decides. IDLE raises a WARNING with no threshold rule
		// behind it; returning to RUNNING clears it.
		for machineID, t := range latestPerMachine {
			key := alertKey{machineID: machineID, parameter: db.ParamMachineStatus}
			if health.RPM(t.Mechanical) <= e.runningRPM {
				raise(key, db.SeverityWarning, 0, t.RecordedAt, nil)
			} else {
				clearOpen(key)
			}
		}

		stats.Processed = len(readings)
	}

	// Reconciliation: the human acknowledgement is authoritative. Read the
	// set fresh each tick and force-transition any still-open alert in it,
	// superseding a PENDING transition from this same tick.
	ackIDs, err := e.store.AcknowledgedAlertIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load acknowledgements: %w", err)
	}
	var ackedIDs []uuid.UUID
	acked := make(map[uuid.UUID]struct{})
	for _, oa := range storedOpen {
		if _, ok := ackIDs[oa.event.AlertID]; ok {
			ackedIDs = append(ackedIDs, oa.event.AlertID)
			acked[oa.event.AlertID] = struct{}{}
			oa.event.Status = db.AlertAcknowledged
			delete(active, alertKey{machineID: oa.event.MachineID, parameter: oa.event.Parameter})
		}
	}
	if len(acked) > 0 {
		filtered := pendingIDs[:0]
		for _, id := range pendingIDs {
			if _, ok := acked[id]; !ok {
				filtered = append(filtered, id)
			}
		}
		pendingIDs = filtered
	}

	changes := ChangeSet{
		Pending:      pendingIDs,
		Acknowledged: ackedIDs,
	}
	for _, oa := range created {
		changes.Created = append(changes.Created, oa.event)
	}
	for _, t := range readings {
		if t.RecordedAt.After(changes.Watermark) {
			changes.Watermark = t.RecordedAt
		}
	}

	if len(changes.Created) == 0 && len(changes.Pending) == 0 &&
		len(changes.Acknowledged) == 0 && changes.Watermark.IsZero() {
		return stats, nil
	}

	if err := e.store.Apply(ctx, changes); err != nil {
		return stats, fmt.Errorf("failed to apply alert changes: %w", err)
	}

	stats.Created = len(changes.Created)
	stats.Cleared = len(changes.Pending)
	stats.Acknowledged = len(changes.Acknowledged)

	for _, a := range changes.Created {
		metrics.AlertOpened(a.Severity)
	}
	metrics.AlertsCleared(stats.Cleared)
	metrics.AlertsAcknowledged(stats.Acknowledged)

	e.publish(ctx, changes, storedOpen)

	return stats, nil
}

// loadWindow indexes this window's derived avg loads by (machine, timestamp).
func (e *Evaluator) loadWindow(ctx context.Context, since time.Time) (map[healthKey]float64, error) {
	records, err := e.healths.Window(ctx, since, e.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch health window: %w", err)
	}
	loads := make(map[healthKey]float64, len(records))
	for _, r := range records {
		loads[healthKey{machineID: r.MachineID, recordedAt: r.RecordedAt}] = r.AvgLoad
	}
	return loads, nil
}

func (e *Evaluator) publish(ctx context.Context, changes ChangeSet, storedOpen []*openAlert) {
	if e.notifier == nil {
		return
	}
	for _, a := range changes.Created {
		if a.Status == db.AlertActive {
			e.notifier.Notify(ctx, Event{Type: EventOpened, Alert: a})
		} else {
			e.notifier.Notify(ctx, Event{Type: EventCleared, Alert: a})
		}
	}
	pending := make(map[uuid.UUID]struct{}, len(changes.Pending))
	for _, id := range changes.Pending {
		pending[id] = struct{}{}
	}
	acked := make(map[uuid.UUID]struct{}, len(changes.Acknowledged))
	for _, id := range changes.Acknowledged {
		acked[id] = struct{}{}
	}
	for _, oa := range storedOpen {
		if _, ok := acked[oa.event.AlertID]; ok {
			e.notifier.Notify(ctx, Event{Type: EventAcknowledged, Alert: oa.event})
			continue
		}
		if _, ok := pending[oa.event.AlertID]; ok {
			e.notifier.Notify(ctx, Event{Type: EventCleared, Alert: oa.event})
		}
	}
}

// measurement is one parameter value extracted from a sample.
type measurement struct {
	parameter string
	value     float64
}

// measurements extracts the monitored parameter values from one telemetry
// row. Absent sub-readings degrade to zero rather than failing the row;
// LOAD_HIGH is only evaluable once the matching health record exists.
// Non-finite values drop the individual parameter.
func measurements(t *db.TelemetryReading, loads map[healthKey]float64) []measurement {
	rpm := health.RPM(t.Mechanical)
	out := []measurement{
		{parameter: db.ParamVibration, value: health.VibrationRMS(t.Mechanical)},
		{parameter: db.ParamCurrent, value: maxPhaseCurrent(t.Electrical)},
		{parameter: db.ParamRPMLow, value: rpm},
		{parameter: db.ParamRPMHigh, value: rpm},
		{parameter: db.ParamTemperature, value: temperature(t.Environmental)},
	}
	if load, ok := loads[healthKey{machineID: t.MachineID, recordedAt: t.RecordedAt}]; ok {
		out = append(out, measurement{parameter: db.ParamLoadHigh, value: load})
	}
	filtered := out[:0]
	for _, m := range out {
		if math.IsNaN(m.value) || math.IsInf(m.value, 0) {
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered
}

// evaluate reports whether a value crosses into the parameter's alert band
// and at which severity. The RPM parameters watch disjoint low-side and
// high-side bands; everything else alerts on the high side at or above the
// warning value.
func evaluate(parameter string, value float64, limit threshold.Limit) (bool, string) {
	switch parameter {
	case db.ParamRPMLow:
		if value < limit.CriticalValue {
			return true, db.SeverityCritical
		}
		if value < limit.WarningValue {
			return true, db.SeverityWarning
		}
	case db.ParamRPMHigh:
		if value > limit.CriticalValue {
			return true, db.SeverityCritical
		}
		if value > limit.WarningValue {
			return true, db.SeverityWarning
		}
	default:
		if value >= limit.CriticalValue {
			return true, db.SeverityCritical
		}
		if value >= limit.WarningValue {
			return true, db.SeverityWarning
		}
	}
	return false, ""
}

func maxPhaseCurrent(e *db.ElectricalReading) float64 {
	if e == nil {
		return 0
	}
	max := 0.0
	for _, v := range []*float64{e.RCurrent, e.YCurrent, e.BCurrent} {
		if v != nil && *v > max {
			max = *v
		}
	}
	return max
}

func temperature(e *db.EnvironmentalReading) float64 {
	if e == nil || e.Temperature == nil {
		return 0
	}
	return *e.Temperature
}
