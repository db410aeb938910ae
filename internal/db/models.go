package db

import (
	"time"

	"github.com/google/uuid"
)

// Machine operating statuses written by the status classifier.
const (
	StatusRunning = "RUNNING"
	StatusIdle    = "IDLE"
)

// Alert severities.
const (
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

// Alert lifecycle statuses.
const (
	AlertActive       = "ACTIVE"
	AlertPending      = "PENDING"
	AlertAcknowledged = "ACKNOWLEDGED"
)

// Monitored threshold parameters. A global-default threshold row must be
// seeded for each of these except MachineStatus, which has no threshold.
const (
	ParamVibration     = "Vibration"
	ParamCurrent       = "Current"
	ParamRPMLow        = "RPM_LOW"
	ParamRPMHigh       = "RPM_HIGH"
	ParamTemperature   = "Temperature"
	ParamLoadHigh      = "LOAD_HIGH"
	ParamLoadLow       = "LOAD_LOW"
	ParamMachineStatus = "MachineStatus"
)

// MechanicalReading holds the mechanical sub-record of a telemetry row.
type MechanicalReading struct {
	VibrationX *float64
	VibrationY *float64
	VibrationZ *float64
	RPM        *float64
}

// ElectricalReading holds the three-phase electrical sub-record.
type ElectricalReading struct {
	RVoltage    *float64
	YVoltage    *float64
	BVoltage    *float64
	RCurrent    *float64
	YCurrent    *float64
	BCurrent    *float64
	Frequency   *float64
	PowerFactor *float64
}

// EnvironmentalReading holds the environmental sub-record.
type EnvironmentalReading struct {
	Temperature *float64
	Humidity    *float64
	Pressure    *float64
	FlowRate    *float64
}

// EnergyReading holds the cumulative energy counter sub-record.
type EnergyReading struct {
	ImportKWh  *float64
	ExportKWh  *float64
	ImportKVAh *float64
}

// TelemetryReading is one ingestion event for a machine at a timestamp.
// Any of the sub-records may be absent. Immutable once ingested;
// (MachineID, RecordedAt) is unique per source.
type TelemetryReading struct {
	IngestionID   int64
	MachineID     uuid.UUID
	GatewayID     uuid.UUID
	RecordedAt    time.Time
	Mechanical    *MechanicalReading
	Electrical    *ElectricalReading
	Environmental *EnvironmentalReading
	Energy        *EnergyReading
}

// HealthRecord is a derived, append-only fact: at most one per (MachineID,
// RecordedAt), written exclusively by the health deriver.
type HealthRecord struct {
	MachineID    uuid.UUID
	RecordedAt   time.Time
	HealthScore  int
	AvgLoad      float64
	RuntimeHours float64
}

// Machine carries the metadata the pipeline needs: the owning tenant
// (resolved through the plant), the machine type for threshold resolution,
// and the last classified operating status.
type Machine struct {
	MachineID   uuid.UUID
	PlantID     uuid.UUID
	TenantID    uuid.UUID
	MachineCode string
	MachineName string
	MachineType string
	Status      string
}

// Threshold is one warning/critical rule at a binding level. TenantID and
// MachineType are nil at the wider levels; both nil means global default.
type Threshold struct {
	ThresholdID   uuid.UUID
	TenantID      *uuid.UUID
	MachineType   *string
	Parameter     string
	WarningValue  float64
	CriticalValue float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EffectiveAt is the timestamp this threshold version became active: the
// later of CreatedAt and UpdatedAt.
func (t Threshold) EffectiveAt() time.Time {
	if t.UpdatedAt.After(t.CreatedAt) {
		return t.UpdatedAt
	}
	return t.CreatedAt
}

// AlertEvent is one triggered condition instance for a (machine, parameter)
// pair. Status transitions are owned by the alert evaluator, except
// ACTIVE/PENDING -> ACKNOWLEDGED which is driven by a human and only
// reconciled here.
type AlertEvent struct {
	AlertID     uuid.UUID
	MachineID   uuid.UUID
	Parameter   string
	Severity    string
	ActualValue float64
	Status      string
	GeneratedAt time.Time
	ThresholdID *uuid.UUID
}

// Acknowledgement is the human resolution attached 1:1 to an alert. Written
// by the external workflow, read here for reconciliation only.
type Acknowledgement struct {
	AlertID        uuid.UUID
	TechnicianName string
	Reason         string
	ActionTaken    string
	AcknowledgedAt time.Time
}
