package validator_test

import (
	"testing"
	"time"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/validator"
)

const testTimestampToleranceMinutes = 60

func TestValidateEnvelope_Valid(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	env := validator.Envelope{
		MachineID:  "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		GatewayID:  "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
		RecordedAt: "2026-03-01T10:30:00Z",
	}
	receivedAt := time.Date(2026, 3, 1, 10, 32, 0, 0, time.UTC)

	machineID, gatewayID, recordedAt, result := v.ValidateEnvelope(env, receivedAt)

	if !result.IsValid {
		t.Fatalf("Expected valid result, got invalid: %s", result.RejectReason)
	}
	if machineID.String() != env.MachineID {
		t.Errorf("Expected machine id %s, got %s", env.MachineID, machineID)
	}
	if gatewayID.String() != env.GatewayID {
		t.Errorf("Expected gateway id %s, got %s", env.GatewayID, gatewayID)
	}
	expected := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	if !recordedAt.Equal(expected) {
		t.Errorf("Expected timestamp %v, got %v", expected, recordedAt)
	}
}

func TestValidateEnvelope_InvalidMachineID(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	env := validator.Envelope{
		MachineID:  "not-a-uuid",
		GatewayID:  "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
		RecordedAt: "2026-03-01T10:30:00Z",
	}

	_, _, _, result := v.ValidateEnvelope(env, time.Now())

	if result.IsValid {
		t.Error("Expected invalid result for malformed machine id")
	}
}

func TestValidateEnvelope_InvalidTimestamp(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	env := validator.Envelope{
		MachineID:  "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		GatewayID:  "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
		RecordedAt: "yesterday",
	}

	_, _, _, result := v.ValidateEnvelope(env, time.Now())

	if result.IsValid {
		t.Error("Expected invalid result for unparseable timestamp")
	}
}

func TestValidateEnvelope_OutsideTolerance(t *testing.T) {
	v := validator.NewValidator(testTimestampToleranceMinutes)

	env := validator.Envelope{
		MachineID:  "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		GatewayID:  "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
		RecordedAt: "2026-03-01T10:30:00Z",
	}
	receivedAt := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC) // a day later

	_, _, recordedAt, result := v.ValidateEnvelope(env, receivedAt)

	if result.IsValid {
		t.Error("Expected invalid result for timestamp outside tolerance")
	}
	if recordedAt.IsZero() {
		t.Error("Expected parsed timestamp to be returned even when out of tolerance")
	}
}
