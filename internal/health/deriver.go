package health

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/db"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Weights of the load-ratio formula. The ratio blends how hard the machine
// draws current, how fast it spins relative to its own history, and the
// power factor.
const (
	currentWeight     = 0.6
	rpmWeight         = 0.2
	powerFactorWeight = 0.2

	maxLoad  = 150
	maxScore = 100
)

// RuntimePoint is the latest runtime counter and its timestamp for a machine.
type RuntimePoint struct {
	RuntimeHours float64
	RecordedAt   time.Time
}

// Maxima are the historical per-machine peaks used to normalize load.
type Maxima struct {
	MaxCurrent float64
	MaxRPM     float64
}

// TelemetrySource supplies raw telemetry and the per-machine historical
// maxima. Maxima cover full history, not just the current batch, so load
// normalizes consistently across ticks.
type TelemetrySource interface {
	FetchUnprocessed(ctx context.Context, since time.Time, limit int) ([]db.TelemetryReading, error)
	Maxima(ctx context.Context) (map[uuid.UUID]Maxima, error)
}

// Store persists derived health records. The store is the source of truth
// for the processing watermark; nothing survives in process memory across
// ticks. AppendBatch must be atomic and must swallow duplicate
// (machine, timestamp) keys.
type Store interface {
	Watermark(ctx context.Context) (time.Time, error)
	LatestRuntimes(ctx context.Context) (map[uuid.UUID]RuntimePoint, error)
	AppendBatch(ctx context.Context, records []db.HealthRecord) (int, error)
}

// Deriver computes per-reading health records from unprocessed telemetry.
type Deriver struct {
	telemetry TelemetrySource
	store     Store
	batchSize int
	logger    *zap.Logger
}

// NewDeriver creates a health deriver.
func NewDeriver(telemetry TelemetrySource, store Store, batchSize int, logger *zap.Logger) *Deriver {
	return &Deriver{
		telemetry: telemetry,
		store:     store,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run executes one derivation pass: read telemetry past the stored
// watermark, derive one health record per (machine, timestamp), and append
// them in a single batch. Safe to re-run over the same window. Returns the
// number of records written.
func (d *Deriver) Run(ctx context.Context) (int, error) {
	watermark, err := d.store.Watermark(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read health watermark: %w", err)
	}

	readings, err := d.telemetry.FetchUnprocessed(ctx, watermark, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch unprocessed telemetry: %w", err)
	}
	if len(readings) == 0 {
		return 0, nil
	}

	maxima, err := d.telemetry.Maxima(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch machine maxima: %w", err)
	}

	runtimes, err := d.store.LatestRuntimes(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch latest runtimes: %w", err)
	}

	type recordKey struct {
		machineID  uuid.UUID
		recordedAt time.Time
	}
	seen := make(map[recordKey]struct{}, len(readings))

	records := make([]db.HealthRecord, 0, len(readings))
	for _, t := range readings {
		key := recordKey{machineID: t.MachineID, recordedAt: t.RecordedAt}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		rms := VibrationRMS(t.Mechanical)
		load := loadRatio(&t, maxima[t.MachineID])
		if !finite(rms) || !finite(load) {
			d.logger.Warn("skipping telemetry row with non-finite derived values",
				zap.String("machine_id", t.MachineID.String()),
				zap.Time("recorded_at", t.RecordedAt),
			)
			continue
		}

		score := int(clamp(maxScore-3*rms-0.1*load, 0, maxScore))

		prev, known := runtimes[t.MachineID]
		runtime := prev.RuntimeHours
		if known {
			delta := t.RecordedAt.Sub(prev.RecordedAt).Hours()
			if RPM(t.Mechanical) > 0 && delta > 0 {
				runtime += delta
			}
		}
		if t.RecordedAt.After(prev.RecordedAt) {
			prev.RecordedAt = t.RecordedAt
		}
		prev.RuntimeHours = runtime
		runtimes[t.MachineID] = prev

		records = append(records, db.HealthRecord{
			MachineID:    t.MachineID,
			RecordedAt:   t.RecordedAt,
			HealthScore:  score,
			AvgLoad:      load,
			RuntimeHours: runtime,
		})
	}

	if len(records) == 0 {
		return 0, nil
	}

	inserted, err := d.store.AppendBatch(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("failed to append health records: %w", err)
	}
	return inserted, nil
}

// VibrationRMS aggregates the three vibration axes into one severity
// signal: sqrt((x^2 + y^2 + z^2) / 3). Zero when the mechanical sub-reading
// is absent.
func VibrationRMS(m *db.MechanicalReading) float64 {
	if m == nil {
		return 0
	}
	x := deref(m.VibrationX)
	y := deref(m.VibrationY)
	z := deref(m.VibrationZ)
	return math.Sqrt((x*x + y*y + z*z) / 3)
}

// RPM returns the reading's RPM, zero when absent.
func RPM(m *db.MechanicalReading) float64 {
	if m == nil {
		return 0
	}
	return deref(m.RPM)
}

// loadRatio is the percent-like measure of how hard the machine works
// relative to its observed historical maxima, clamped to [0, 150]. Zero
// unless both electrical and mechanical sub-readings are present.
func loadRatio(t *db.TelemetryReading, m Maxima) float64 {
	if t.Electrical == nil || t.Mechanical == nil {
		return 0
	}
	avgCurrent := (deref(t.Electrical.RCurrent) +
		deref(t.Electrical.YCurrent) +
		deref(t.Electrical.BCurrent)) / 3

	var currentRatio, rpmRatio float64
	if m.MaxCurrent > 0 {
		currentRatio = avgCurrent / m.MaxCurrent
	}
	if m.MaxRPM > 0 {
		rpmRatio = RPM(t.Mechanical) / m.MaxRPM
	}
	powerFactor := deref(t.Electrical.PowerFactor)

	load := (currentWeight*currentRatio + rpmWeight*rpmRatio + powerFactorWeight*powerFactor) * 100
	return clamp(load, 0, maxLoad)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
