package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/alert"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// alertPhase is the pipeline_watermark key for the alert evaluator.
const alertPhase = "alerts"

// AlertRepository handles alert events, acknowledgements, and the alert
// evaluator's watermark.
type AlertRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(pool *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

// Watermark returns the alert evaluator's last-processed telemetry
// timestamp, or the zero time before the first tick.
func (r *AlertRepository) Watermark(ctx context.Context) (time.Time, error) {
	var watermark *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT last_processed_at FROM pipeline_watermark WHERE phase = $1
	`, alertPhase).Scan(&watermark)
	if err == pgx.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query alert watermark: %w", err)
	}
	if watermark == nil {
		return time.Time{}, nil
	}
	return *watermark, nil
}

// OpenAlerts returns all ACTIVE and PENDING alerts.
func (r *AlertRepository) OpenAlerts(ctx context.Context) ([]db.AlertEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT alert_id, machine_id, parameter, severity, actual_value,
			alert_status, generated_at, threshold_id
		FROM alert_event
		WHERE alert_status IN ($1, $2)
	`, db.AlertActive, db.AlertPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query open alerts: %w", err)
	}
	defer rows.Close()

	var alerts []db.AlertEvent
	for rows.Next() {
		var a db.AlertEvent
		err := rows.Scan(&a.AlertID, &a.MachineID, &a.Parameter, &a.Severity,
			&a.ActualValue, &a.Status, &a.GeneratedAt, &a.ThresholdID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return alerts, nil
}

// AcknowledgedAlertIDs returns the ids of all externally acknowledged
// alerts. Read fresh each tick; acknowledgements may land mid-tick.
func (r *AlertRepository) AcknowledgedAlertIDs(ctx context.Context) (map[uuid.UUID]struct{}, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT alert_id FROM alert_acknowledgement
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query acknowledgements: %w", err)
	}
	defer rows.Close()

	ids := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan acknowledgement id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return ids, nil
}

// Apply commits one evaluation tick atomically: new alerts, PENDING and
// ACKNOWLEDGED transitions, and the watermark advance. Status updates never
// touch a row already ACKNOWLEDGED; the human action is terminal even when
// it races this transaction.
func (r *AlertRepository) Apply(ctx context.Context, changes alert.ChangeSet) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, a := range changes.Created {
		_, err := tx.Exec(ctx, `
			INSERT INTO alert_event (
				alert_id, machine_id, parameter, severity, actual_value,
				alert_status, generated_at, threshold_id
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, a.AlertID, a.MachineID, a.Parameter, a.Severity, a.ActualValue,
			a.Status, a.GeneratedAt, a.ThresholdID)
		if err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
	}

	for _, id := range changes.Pending {
		_, err := tx.Exec(ctx, `
			UPDATE alert_event SET alert_status = $1
			WHERE alert_id = $2 AND alert_status <> $3
		`, db.AlertPending, id, db.AlertAcknowledged)
		if err != nil {
			return fmt.Errorf("failed to mark alert pending: %w", err)
		}
	}

	for _, id := range changes.Acknowledged {
		_, err := tx.Exec(ctx, `
			UPDATE alert_event SET alert_status = $1 WHERE alert_id = $2
		`, db.AlertAcknowledged, id)
		if err != nil {
			return fmt.Errorf("failed to mark alert acknowledged: %w", err)
		}
	}

	if !changes.Watermark.IsZero() {
		_, err := tx.Exec(ctx, `
			INSERT INTO pipeline_watermark (phase, last_processed_at)
			VALUES ($1, $2)
			ON CONFLICT (phase) DO UPDATE
			SET last_processed_at = GREATEST(pipeline_watermark.last_processed_at, EXCLUDED.last_processed_at)
		`, alertPhase, changes.Watermark)
		if err != nil {
			return fmt.Errorf("failed to advance alert watermark: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
