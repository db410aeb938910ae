package repository

import (
	"context"
	"fmt"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MachineRepository handles machine metadata and status updates.
type MachineRepository struct {
	pool *pgxpool.Pool
}

// NewMachineRepository creates a new machine repository
func NewMachineRepository(pool *pgxpool.Pool) *MachineRepository {
	return &MachineRepository{pool: pool}
}

// All returns every machine with its tenant resolved through the plant.
func (r *MachineRepository) All(ctx context.Context) ([]db.Machine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.machine_id, m.plant_id, p.tenant_id,
			COALESCE(m.machine_code, ''), COALESCE(m.machine_name, ''),
			COALESCE(m.machine_type, ''), COALESCE(m.status, '')
		FROM machine m
		JOIN plant p ON p.plant_id = m.plant_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query machines: %w", err)
	}
	defer rows.Close()

	var machines []db.Machine
	for rows.Next() {
		var m db.Machine
		err := rows.Scan(&m.MachineID, &m.PlantID, &m.TenantID,
			&m.MachineCode, &m.MachineName, &m.MachineType, &m.Status)
		if err != nil {
			return nil, fmt.Errorf("failed to scan machine: %w", err)
		}
		machines = append(machines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return machines, nil
}

// SetStatuses writes the classified statuses in one transaction.
func (r *MachineRepository) SetStatuses(ctx context.Context, statuses map[uuid.UUID]string) error {
	if len(statuses) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for machineID, status := range statuses {
		_, err := tx.Exec(ctx, `
			UPDATE machine SET status = $1 WHERE machine_id = $2
		`, status, machineID)
		if err != nil {
			return fmt.Errorf("failed to update machine status: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
