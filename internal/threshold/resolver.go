package threshold

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/db"
	"github.com/google/uuid"
)

// ErrNoGlobalDefault is returned when no global fallback rule exists for a
// requested parameter. The global row is a seeded invariant; its absence is
// a configuration error and the caller must skip that parameter for the tick.
var ErrNoGlobalDefault = errors.New("threshold: no global default rule")

// Parameters is the full set resolved into a config for a machine type.
var Parameters = []string{
	db.ParamVibration,
	db.ParamCurrent,
	db.ParamRPMLow,
	db.ParamRPMHigh,
	db.ParamTemperature,
	db.ParamLoadHigh,
	db.ParamLoadLow,
}

// Limit is the resolved warning/critical pair for one parameter, together
// with the id of the rule version that produced it.
type Limit struct {
	WarningValue  float64
	CriticalValue float64
	ThresholdID   uuid.UUID
}

// Config is a batch-resolved limit per parameter name.
type Config map[string]Limit

// CandidateStore loads the threshold rows eligible for a tenant: the
// tenant's own rows plus the global (tenant-less) rows.
type CandidateStore interface {
	FetchCandidates(ctx context.Context, tenantID uuid.UUID) ([]db.Threshold, error)
}

// Resolver resolves effective warning/critical limits using the three-tier
// fallback: tenant+machine-type override, tenant-wide default, global
// default.
type Resolver struct {
	store CandidateStore
}

// NewResolver creates a resolver backed by the given candidate store.
func NewResolver(store CandidateStore) *Resolver {
	return &Resolver{store: store}
}

// Load fetches all candidate rows for a tenant once and returns a Ruleset
// for repeated in-memory resolution. Callers load once per tenant per tick.
func (r *Resolver) Load(ctx context.Context, tenantID uuid.UUID) (*Ruleset, error) {
	rows, err := r.store.FetchCandidates(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch threshold candidates: %w", err)
	}
	return NewRuleset(tenantID, rows), nil
}

// Ruleset is the candidate rows for one tenant, ordered newest-first by
// effective timestamp.
type Ruleset struct {
	tenantID uuid.UUID
	rows     []db.Threshold
}

// NewRuleset builds a Ruleset from candidate rows. Ordering of the input
// does not matter; rows are sorted here.
func NewRuleset(tenantID uuid.UUID, rows []db.Threshold) *Ruleset {
	sorted := make([]db.Threshold, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EffectiveAt().After(sorted[j].EffectiveAt())
	})
	return &Ruleset{tenantID: tenantID, rows: sorted}
}

// Resolve returns the effective limit for one parameter. When effectiveTime
// is non-zero, only rule versions effective at or before that instant are
// considered, so historical samples resolve against the rules active when
// they were recorded. Within the eligible rows the most specific binding
// level wins; ties within a level go to the most recent version.
func (rs *Ruleset) Resolve(machineType, parameter string, effectiveTime time.Time) (Limit, error) {
	var tenantDefault, global *db.Threshold

	for i := range rs.rows {
		row := &rs.rows[i]
		if row.Parameter != parameter {
			continue
		}
		if !effectiveTime.IsZero() && row.EffectiveAt().After(effectiveTime) {
			continue
		}
		switch {
		case row.TenantID != nil && *row.TenantID == rs.tenantID &&
			row.MachineType != nil && *row.MachineType == machineType:
			// Most specific level; rows are newest-first, so the first
			// match is the winning version.
			return limitOf(row), nil
		case row.TenantID != nil && *row.TenantID == rs.tenantID && row.MachineType == nil:
			if tenantDefault == nil {
				tenantDefault = row
			}
		case row.TenantID == nil && row.MachineType == nil:
			if global == nil {
				global = row
			}
		}
	}

	if tenantDefault != nil {
		return limitOf(tenantDefault), nil
	}
	if global != nil {
		return limitOf(global), nil
	}
	return Limit{}, fmt.Errorf("%w: parameter %q", ErrNoGlobalDefault, parameter)
}

// Config batch-resolves the full parameter set for a machine type.
// Parameters without any eligible rule are omitted from the returned map and
// reported through the error; the partial config is still usable.
func (rs *Ruleset) Config(machineType string, effectiveTime time.Time) (Config, error) {
	cfg := make(Config, len(Parameters))
	var missing []string
	for _, parameter := range Parameters {
		limit, err := rs.Resolve(machineType, parameter, effectiveTime)
		if err != nil {
			missing = append(missing, parameter)
			continue
		}
		cfg[parameter] = limit
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("%w: parameters %v", ErrNoGlobalDefault, missing)
	}
	return cfg, nil
}

func limitOf(row *db.Threshold) Limit {
	return Limit{
		WarningValue:  row.WarningValue,
		CriticalValue: row.CriticalValue,
		ThresholdID:   row.ThresholdID,
	}
}
