package pipeline

import (
	"context"
	"time"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/alert"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/metrics"
	"go.uber.org/zap"
)

// Phase names reported in logs and metrics.
const (
	PhaseHealth = "health"
	PhaseStatus = "status"
	PhaseAlerts = "alerts"
)

// HealthPhase derives health records; returns how many were written.
type HealthPhase interface {
	Run(ctx context.Context) (int, error)
}

// StatusPhase classifies machine statuses; returns how many changed.
type StatusPhase interface {
	Run(ctx context.Context) (int, error)
}

// AlertPhase evaluates alerts and reports tick statistics.
type AlertPhase interface {
	Run(ctx context.Context) (alert.Stats, error)
}

// Pipeline runs the derivation phases sequentially at a fixed cadence.
// Each phase keeps its own watermark in the store, so a failed or skipped
// tick is caught up by the next one. A failing phase never stops the loop
// or the remaining phases of the tick.
type Pipeline struct {
	health   HealthPhase
	status   StatusPhase
	alerts   AlertPhase
	interval time.Duration
	logger   *zap.Logger
}

// New creates the pipeline driver.
func New(health HealthPhase, status StatusPhase, alerts AlertPhase, interval time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		health:   health,
		status:   status,
		alerts:   alerts,
		interval: interval,
		logger:   logger,
	}
}

// Start blocks running the tick loop until ctx is cancelled. The in-flight
// tick finishes before Start returns; no new ticks begin after cancellation.
func (p *Pipeline) Start(ctx context.Context) {
	p.logger.Info("pipeline started", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First tick immediately rather than one interval in.
	p.RunTick(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopped")
			return
		case <-ticker.C:
			p.RunTick(ctx)
		}
	}
}

// RunTick executes one full pass: health derivation, status classification,
// alert evaluation. Exported so a single pass is drivable from tests.
func (p *Pipeline) RunTick(ctx context.Context) {
	p.runPhase(ctx, PhaseHealth, func(ctx context.Context) (int, error) {
		n, err := p.health.Run(ctx)
		metrics.AddHealthRecords(n)
		return n, err
	})
	p.runPhase(ctx, PhaseStatus, p.status.Run)
	p.runPhase(ctx, PhaseAlerts, func(ctx context.Context) (int, error) {
		stats, err := p.alerts.Run(ctx)
		return stats.Created, err
	})
}

func (p *Pipeline) runPhase(ctx context.Context, name string, run func(context.Context) (int, error)) {
	start := time.Now()
	n, err := run(ctx)
	elapsed := time.Since(start)
	metrics.ObservePhase(name, err, elapsed)
	if err != nil {
		p.logger.Error("pipeline phase failed",
			zap.String("phase", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}
	if n > 0 {
		p.logger.Info("pipeline phase completed",
			zap.String("phase", name),
			zap.Int("affected", n),
			zap.Duration("elapsed", elapsed),
		)
	}
}
