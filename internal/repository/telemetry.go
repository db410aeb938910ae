package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/db"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/health"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const telemetryColumns = `
	t.ingestion_id, t.machine_id, t.gateway_id, t.recorded_at,
	m.ingestion_id, m.vibration_x, m.vibration_y, m.vibration_z, m.rpm,
	e.ingestion_id, e.r_voltage, e.y_voltage, e.b_voltage,
	e.r_current, e.y_current, e.b_current, e.frequency, e.power_factor,
	env.ingestion_id, env.temperature, env.humidity, env.pressure, env.flowrate,
	en.ingestion_id, en.energy_import_kwh, en.energy_export_kwh, en.energy_import_kvah
`

const telemetryJoins = `
	FROM telemetry_ingestion t
	LEFT JOIN telemetry_mechanical m ON m.ingestion_id = t.ingestion_id
	LEFT JOIN telemetry_electrical e ON e.ingestion_id = t.ingestion_id
	LEFT JOIN telemetry_environmental env ON env.ingestion_id = t.ingestion_id
	LEFT JOIN telemetry_energy en ON en.ingestion_id = t.ingestion_id
`

// TelemetryRepository handles telemetry ingestion reads and writes.
type TelemetryRepository struct {
	pool *pgxpool.Pool
}

// NewTelemetryRepository creates a new telemetry repository
func NewTelemetryRepository(pool *pgxpool.Pool) *TelemetryRepository {
	return &TelemetryRepository{pool: pool}
}

// FetchUnprocessed returns telemetry rows recorded after the watermark in
// ascending time order, bounded by limit.
func (r *TelemetryRepository) FetchUnprocessed(ctx context.Context, since time.Time, limit int) ([]db.TelemetryReading, error) {
	query := `SELECT` + telemetryColumns + telemetryJoins + `
		WHERE t.recorded_at > $1
		ORDER BY t.recorded_at ASC, t.ingestion_id ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed telemetry: %w", err)
	}
	defer rows.Close()

	return scanTelemetryRows(rows)
}

// FetchLatestPerMachine returns the single most recent telemetry row for
// each machine.
func (r *TelemetryRepository) FetchLatestPerMachine(ctx context.Context) ([]db.TelemetryReading, error) {
	query := `SELECT DISTINCT ON (t.machine_id)` + telemetryColumns + telemetryJoins + `
		ORDER BY t.machine_id, t.recorded_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest telemetry: %w", err)
	}
	defer rows.Close()

	return scanTelemetryRows(rows)
}

// Maxima returns the historical per-machine peaks of phase current and RPM,
// computed over full telemetry history.
func (r *TelemetryRepository) Maxima(ctx context.Context) (map[uuid.UUID]health.Maxima, error) {
	query := `
		SELECT t.machine_id,
			COALESCE(MAX(GREATEST(
				COALESCE(e.r_current, 0),
				COALESCE(e.y_current, 0),
				COALESCE(e.b_current, 0))), 0),
			COALESCE(MAX(COALESCE(m.rpm, 0)), 0)
		FROM telemetry_ingestion t
		LEFT JOIN telemetry_electrical e ON e.ingestion_id = t.ingestion_id
		LEFT JOIN telemetry_mechanical m ON m.ingestion_id = t.ingestion_id
		GROUP BY t.machine_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query machine maxima: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID]health.Maxima)
	for rows.Next() {
		var machineID uuid.UUID
		var m health.Maxima
		if err := rows.Scan(&machineID, &m.MaxCurrent, &m.MaxRPM); err != nil {
			return nil, fmt.Errorf("failed to scan machine maxima: %w", err)
		}
		result[machineID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return result, nil
}

// InsertReading inserts one telemetry row with its present sub-records in a
// single transaction. Returns false when a row for the same
// (machine, recorded_at) already exists.
func (r *TelemetryRepository) InsertReading(ctx context.Context, t *db.TelemetryReading) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var ingestionID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO telemetry_ingestion (machine_id, gateway_id, recorded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (machine_id, recorded_at) DO NOTHING
		RETURNING ingestion_id
	`, t.MachineID, t.GatewayID, t.RecordedAt).Scan(&ingestionID)
	if err == pgx.ErrNoRows {
		// Already ingested; idempotent no-op.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert telemetry row: %w", err)
	}

	if m := t.Mechanical; m != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO telemetry_mechanical (ingestion_id, vibration_x, vibration_y, vibration_z, rpm)
			VALUES ($1, $2, $3, $4, $5)
		`, ingestionID, m.VibrationX, m.VibrationY, m.VibrationZ, m.RPM)
		if err != nil {
			return false, fmt.Errorf("failed to insert mechanical reading: %w", err)
		}
	}
	if e := t.Electrical; e != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO telemetry_electrical (
				ingestion_id, r_voltage, y_voltage, b_voltage,
				r_current, y_current, b_current, frequency, power_factor
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, ingestionID, e.RVoltage, e.YVoltage, e.BVoltage,
			e.RCurrent, e.YCurrent, e.BCurrent, e.Frequency, e.PowerFactor)
		if err != nil {
			return false, fmt.Errorf("failed to insert electrical reading: %w", err)
		}
	}
	if env := t.Environmental; env != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO telemetry_environmental (ingestion_id, temperature, humidity, pressure, flowrate)
			VALUES ($1, $2, $3, $4, $5)
		`, ingestionID, env.Temperature, env.Humidity, env.Pressure, env.FlowRate)
		if err != nil {
			return false, fmt.Errorf("failed to insert environmental reading: %w", err)
		}
	}
	if en := t.Energy; en != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO telemetry_energy (ingestion_id, energy_import_kwh, energy_export_kwh, energy_import_kvah)
			VALUES ($1, $2, $3, $4)
		`, ingestionID, en.ImportKWh, en.ExportKWh, en.ImportKVAh)
		if err != nil {
			return false, fmt.Errorf("failed to insert energy reading: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.IngestionID = ingestionID
	return true, nil
}

func scanTelemetryRows(rows pgx.Rows) ([]db.TelemetryReading, error) {
	var readings []db.TelemetryReading
	for rows.Next() {
		var t db.TelemetryReading
		var mech db.MechanicalReading
		var elec db.ElectricalReading
		var envr db.EnvironmentalReading
		var ener db.EnergyReading
		var mechID, elecID, envID, enerID *int64

		err := rows.Scan(
			&t.IngestionID, &t.MachineID, &t.GatewayID, &t.RecordedAt,
			&mechID, &mech.VibrationX, &mech.VibrationY, &mech.VibrationZ, &mech.RPM,
			&elecID, &elec.RVoltage, &elec.YVoltage, &elec.BVoltage,
			&elec.RCurrent, &elec.YCurrent, &elec.BCurrent, &elec.Frequency, &elec.PowerFactor,
			&envID, &envr.Temperature, &envr.Humidity, &envr.Pressure, &envr.FlowRate,
			&enerID, &ener.ImportKWh, &ener.ExportKWh, &ener.ImportKVAh,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan telemetry row: %w", err)
		}

		if mechID != nil {
			t.Mechanical = &mech
		}
		if elecID != nil {
			t.Electrical = &elec
		}
		if envID != nil {
			t.Environmental = &envr
		}
		if enerID != nil {
			t.Energy = &ener
		}
		readings = append(readings, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return readings, nil
}
