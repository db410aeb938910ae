package validator

import (
	"fmt"
	"time"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/tools/timeparser"
	"github.com/google/uuid"
)

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid      bool
	RejectReason string
}

// Envelope carries the identifying fields of an incoming telemetry message
type Envelope struct {
	MachineID  string
	GatewayID  string
	RecordedAt string
}

// Validator handles telemetry envelope validation with configurable parameters
type Validator struct {
	timestampToleranceMinutes int
}

// NewValidator creates a new validator with the specified tolerance
func NewValidator(timestampToleranceMinutes int) *Validator {
	return &Validator{
		timestampToleranceMinutes: timestampToleranceMinutes,
	}
}

// ValidateEnvelope validates the identifying fields of a telemetry message
// and returns the parsed machine id, gateway id and reading timestamp.
func (v *Validator) ValidateEnvelope(env Envelope, receivedAt time.Time) (uuid.UUID, uuid.UUID, time.Time, ValidationResult) {
	result := ValidationResult{IsValid: true}

	machineID, err := uuid.Parse(env.MachineID)
	if err != nil {
		result.IsValid = false
		result.RejectReason = fmt.Sprintf("invalid machine id: %v", err)
		return uuid.Nil, uuid.Nil, time.Time{}, result
	}

	gatewayID, err := uuid.Parse(env.GatewayID)
	if err != nil {
		result.IsValid = false
		result.RejectReason = fmt.Sprintf("invalid gateway id: %v", err)
		return machineID, uuid.Nil, time.Time{}, result
	}

	recordedAt, err := timeparser.ParseGatewayTimestamp(env.RecordedAt)
	if err != nil {
		result.IsValid = false
		result.RejectReason = fmt.Sprintf("invalid timestamp format: %v", err)
		return machineID, gatewayID, time.Time{}, result
	}

	if !timeparser.IsWithinTolerance(recordedAt, receivedAt, v.timestampToleranceMinutes) {
		result.IsValid = false
		result.RejectReason = fmt.Sprintf("timestamp outside tolerance window (±%d minutes)", v.timestampToleranceMinutes)
		return machineID, gatewayID, recordedAt, result
	}

	return machineID, gatewayID, recordedAt, result
}
