package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/db"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/logging"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/metrics"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/validator"
	"go.uber.org/zap"
)

// Message represents the incoming telemetry message from RabbitMQ. Gateways
// send one message per machine per sample; any subset of the sensor blocks
// may be present.
type Message struct {
	RequestID  string    `json:"request_id"`
	GatewayID  string    `json:"gateway_id"`
	MachineID  string    `json:"machine_id"`
	RecordedAt string    `json:"recorded_at"`
	ReceivedAt time.Time `json:"received_at"`

	Mechanical    *MechanicalPayload    `json:"mechanical,omitempty"`
	Electrical    *ElectricalPayload    `json:"electrical,omitempty"`
	Environmental *EnvironmentalPayload `json:"environmental,omitempty"`
	Energy        *EnergyPayload        `json:"energy,omitempty"`
}

// MechanicalPayload carries vibration and rotation readings
type MechanicalPayload struct {
	VibrationX *float64 `json:"vibration_x"`
	VibrationY *float64 `json:"vibration_y"`
	VibrationZ *float64 `json:"vibration_z"`
	RPM        *float64 `json:"rpm"`
}

// ElectricalPayload carries three-phase electrical readings
type ElectricalPayload struct {
	RVoltage    *float64 `json:"r_voltage"`
	YVoltage    *float64 `json:"y_voltage"`
	BVoltage    *float64 `json:"b_voltage"`
	RCurrent    *float64 `json:"r_current"`
	YCurrent    *float64 `json:"y_current"`
	BCurrent    *float64 `json:"b_current"`
	Frequency   *float64 `json:"frequency"`
	PowerFactor *float64 `json:"power_factor"`
}

// EnvironmentalPayload carries ambient readings
type EnvironmentalPayload struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Pressure    *float64 `json:"pressure"`
	FlowRate    *float64 `json:"flowrate"`
}

// EnergyPayload carries cumulative energy counters
type EnergyPayload struct {
	ImportKWh  *float64 `json:"energy_import_kwh"`
	ExportKWh  *float64 `json:"energy_export_kwh"`
	ImportKVAh *float64 `json:"energy_import_kvah"`
}

// TelemetryWriter persists one telemetry reading. The bool result reports
// whether the row was new; false means a duplicate was skipped.
type TelemetryWriter interface {
	InsertReading(ctx context.Context, t *db.TelemetryReading) (bool, error)
}

// Service handles telemetry message processing logic
type Service struct {
	repo      TelemetryWriter
	validator *validator.Validator
	logger    *zap.Logger
}

// NewService creates a new ingest service
func NewService(repo TelemetryWriter, validator *validator.Validator, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		validator: validator,
		logger:    logger,
	}
}

// ProcessMessage processes an incoming telemetry message. A non-nil error
// sends the message to the DLQ; duplicates are acknowledged silently.
func (s *Service) ProcessMessage(ctx context.Context, body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		metrics.IngestMessage("rejected")
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	reqLogger := logging.WithRequestID(s.logger, msg.RequestID)

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	machineID, gatewayID, recordedAt, result := s.validator.ValidateEnvelope(validator.Envelope{
		MachineID:  msg.MachineID,
		GatewayID:  msg.GatewayID,
		RecordedAt: msg.RecordedAt,
	}, receivedAt)
	if !result.IsValid {
		metrics.IngestMessage("rejected")
		reqLogger.Warn("rejecting telemetry message",
			zap.String("machine_id", msg.MachineID),
			zap.String("reason", result.RejectReason),
		)
		return fmt.Errorf("invalid telemetry message: %s", result.RejectReason)
	}

	if msg.Mechanical == nil && msg.Electrical == nil && msg.Environmental == nil && msg.Energy == nil {
		metrics.IngestMessage("rejected")
		reqLogger.Warn("rejecting telemetry message", zap.String("reason", "no sensor blocks present"))
		return fmt.Errorf("invalid telemetry message: no sensor blocks present")
	}

	reading := db.TelemetryReading{
		MachineID:  machineID,
		GatewayID:  gatewayID,
		RecordedAt: recordedAt,
	}
	if m := msg.Mechanical; m != nil {
		reading.Mechanical = &db.MechanicalReading{
			VibrationX: m.VibrationX,
			VibrationY: m.VibrationY,
			VibrationZ: m.VibrationZ,
			RPM:        m.RPM,
		}
	}
	if e := msg.Electrical; e != nil {
		reading.Electrical = &db.ElectricalReading{
			RVoltage:    e.RVoltage,
			YVoltage:    e.YVoltage,
			BVoltage:    e.BVoltage,
			RCurrent:    e.RCurrent,
			YCurrent:    e.YCurrent,
			BCurrent:    e.BCurrent,
			Frequency:   e.Frequency,
			PowerFactor: e.PowerFactor,
		}
	}
	if env := msg.Environmental; env != nil {
		reading.Environmental = &db.EnvironmentalReading{
			Temperature: env.Temperature,
			Humidity:    env.Humidity,
			Pressure:    env.Pressure,
			FlowRate:    env.FlowRate,
		}
	}
	if en := msg.Energy; en != nil {
		reading.Energy = &db.EnergyReading{
			ImportKWh:  en.ImportKWh,
			ExportKWh:  en.ExportKWh,
			ImportKVAh: en.ImportKVAh,
		}
	}

	inserted, err := s.repo.InsertReading(ctx, &reading)
	if err != nil {
		metrics.IngestMessage("error")
		reqLogger.Error("failed to store telemetry reading",
			zap.String("machine_id", machineID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to store telemetry reading: %w", err)
	}
	if !inserted {
		metrics.IngestMessage("duplicate")
		reqLogger.Debug("duplicate telemetry reading skipped",
			zap.String("machine_id", machineID.String()),
			zap.Time("recorded_at", recordedAt),
		)
		return nil
	}

	metrics.IngestMessage("accepted")
	reqLogger.Debug("telemetry reading stored",
		zap.String("machine_id", machineID.String()),
		zap.Int64("ingestion_id", reading.IngestionID),
		zap.Time("recorded_at", recordedAt),
	)
	return nil
}
