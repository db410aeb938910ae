package repository

import (
	"context"
	"fmt"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ThresholdRepository loads alert threshold rules.
type ThresholdRepository struct {
	pool *pgxpool.Pool
}

// NewThresholdRepository creates a new threshold repository
func NewThresholdRepository(pool *pgxpool.Pool) *ThresholdRepository {
	return &ThresholdRepository{pool: pool}
}

// FetchCandidates returns the rows eligible for a tenant: its own rows plus
// the global defaults, newest version first by effective timestamp.
func (r *ThresholdRepository) FetchCandidates(ctx context.Context, tenantID uuid.UUID) ([]db.Threshold, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT threshold_id, tenant_id, machine_type, parameter,
			warning_value, critical_value, created_at, updated_at
		FROM alert_threshold
		WHERE tenant_id = $1 OR tenant_id IS NULL
		ORDER BY GREATEST(created_at, updated_at) DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query threshold candidates: %w", err)
	}
	defer rows.Close()

	var thresholds []db.Threshold
	for rows.Next() {
		var t db.Threshold
		err := rows.Scan(&t.ThresholdID, &t.TenantID, &t.MachineType, &t.Parameter,
			&t.WarningValue, &t.CriticalValue, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan threshold: %w", err)
		}
		thresholds = append(thresholds, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return thresholds, nil
}
