package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/db"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/health"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthRepository handles derived machine health records. machine_health
// carries a unique constraint on (machine_id, recorded_at); that constraint
// is the idempotency guard for the deriver.
type HealthRepository struct {
	pool *pgxpool.Pool
}

// NewHealthRepository creates a new health repository
func NewHealthRepository(pool *pgxpool.Pool) *HealthRepository {
	return &HealthRepository{pool: pool}
}

// Watermark returns the most recent recorded_at present in machine_health,
// or the zero time when no records exist yet.
func (r *HealthRepository) Watermark(ctx context.Context) (time.Time, error) {
	var watermark *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT MAX(recorded_at) FROM machine_health
	`).Scan(&watermark)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query health watermark: %w", err)
	}
	if watermark == nil {
		return time.Time{}, nil
	}
	return *watermark, nil
}

// LatestRuntimes returns each machine's latest runtime counter and its
// timestamp.
func (r *HealthRepository) LatestRuntimes(ctx context.Context) (map[uuid.UUID]health.RuntimePoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (machine_id) machine_id, runtime_hours, recorded_at
		FROM machine_health
		ORDER BY machine_id, recorded_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest runtimes: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID]health.RuntimePoint)
	for rows.Next() {
		var machineID uuid.UUID
		var point health.RuntimePoint
		if err := rows.Scan(&machineID, &point.RuntimeHours, &point.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan runtime point: %w", err)
		}
		result[machineID] = point
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return result, nil
}

// AppendBatch inserts the derived records in one transaction. Duplicate
// (machine_id, recorded_at) keys are swallowed by the unique constraint, so
// re-running a window is safe. Returns the number of rows actually inserted.
func (r *HealthRepository) AppendBatch(ctx context.Context, records []db.HealthRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, record := range records {
		tag, err := tx.Exec(ctx, `
			INSERT INTO machine_health (machine_id, recorded_at, health_score, avg_load, runtime_hours)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (machine_id, recorded_at) DO NOTHING
		`, record.MachineID, record.RecordedAt, record.HealthScore, record.AvgLoad, record.RuntimeHours)
		if err != nil {
			return 0, fmt.Errorf("failed to insert health record: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// Window returns health records recorded after the watermark in ascending
// time order, bounded by limit.
func (r *HealthRepository) Window(ctx context.Context, since time.Time, limit int) ([]db.HealthRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT machine_id, recorded_at, health_score, avg_load, runtime_hours
		FROM machine_health
		WHERE recorded_at > $1
		ORDER BY recorded_at ASC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query health window: %w", err)
	}
	defer rows.Close()

	var records []db.HealthRecord
	for rows.Next() {
		var record db.HealthRecord
		err := rows.Scan(&record.MachineID, &record.RecordedAt,
			&record.HealthScore, &record.AvgLoad, &record.RuntimeHours)
		if err != nil {
			return nil, fmt.Errorf("failed to scan health record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return records, nil
}
