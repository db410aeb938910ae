package alert_test

import (
	"context"
	"testing"
	"time"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/alert"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/db"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/threshold"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const testRunningRPM = 200

var (
	testMachineID = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	testTenantID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
)

type fakeTelemetry struct {
	readings []db.TelemetryReading
}

func (f *fakeTelemetry) FetchUnprocessed(ctx context.Context, since time.Time, limit int) ([]db.TelemetryReading, error) {
	var out []db.TelemetryReading
	for _, r := range f.readings {
		if r.RecordedAt.After(since) {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeHealths struct {
	records []db.HealthRecord
}

func (f *fakeHealths) Window(ctx context.Context, since time.Time, limit int) ([]db.HealthRecord, error) {
	var out []db.HealthRecord
	for _, r := range f.records {
		if r.RecordedAt.After(since) {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeMachines struct {
	machines []db.Machine
}

func (f *fakeMachines) All(ctx context.Context) ([]db.Machine, error) {
	return f.machines, nil
}

// fakeAlertStore keeps alert state across Run calls so multi-tick scenarios
// behave like the real database.
type fakeAlertStore struct {
	alerts    map[uuid.UUID]db.AlertEvent
	acks      map[uuid.UUID]struct{}
	watermark time.Time
	applies   int
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{
		alerts: make(map[uuid.UUID]db.AlertEvent),
		acks:   make(map[uuid.UUID]struct{}),
	}
}

func (f *fakeAlertStore) Watermark(ctx context.Context) (time.Time, error) {
	return f.watermark, nil
}

func (f *fakeAlertStore) OpenAlerts(ctx context.Context) ([]db.AlertEvent, error) {
	var open []db.AlertEvent
	for _, a := range f.alerts {
		if a.Status == db.AlertActive || a.Status == db.AlertPending {
			open = append(open, a)
		}
	}
	return open, nil
}

func (f *fakeAlertStore) AcknowledgedAlertIDs(ctx context.Context) (map[uuid.UUID]struct{}, error) {
	ids := make(map[uuid.UUID]struct{}, len(f.acks))
	for id := range f.acks {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (f *fakeAlertStore) Apply(ctx context.Context, changes alert.ChangeSet) error {
	f.applies++
	for _, a := range changes.Created {
		f.alerts[a.AlertID] = a
	}
	for _, id := range changes.Pending {
		a := f.alerts[id]
		if a.Status != db.AlertAcknowledged {
			a.Status = db.AlertPending
			f.alerts[id] = a
		}
	}
	for _, id := range changes.Acknowledged {
		a := f.alerts[id]
		a.Status = db.AlertAcknowledged
		f.alerts[id] = a
	}
	if changes.Watermark.After(f.watermark) {
		f.watermark = changes.Watermark
	}
	return nil
}

func (f *fakeAlertStore) byParameter(parameter string) []db.AlertEvent {
	var out []db.AlertEvent
	for _, a := range f.alerts {
		if a.Parameter == parameter {
			out = append(out, a)
		}
	}
	return out
}

type fakeCandidateStore struct {
	rows []db.Threshold
}

func (s *fakeCandidateStore) FetchCandidates(ctx context.Context, tenantID uuid.UUID) ([]db.Threshold, error) {
	return s.rows, nil
}

type recordingNotifier struct {
	events []alert.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event alert.Event) {
	n.events = append(n.events, event)
}

func (n *recordingNotifier) typesSeen() []string {
	var out []string
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

func globalRule(parameter string, warning, critical float64) db.Threshold {
	return db.Threshold{
		ThresholdID:   uuid.New(),
		Parameter:     parameter,
		WarningValue:  warning,
		CriticalValue: critical,
		CreatedAt:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func ptr(v float64) *float64 { return &v }

// vibrationReading sets all three axes to the same value so the RMS equals it.
func vibrationReading(at time.Time, vib, rpm float64) db.TelemetryReading {
	return db.TelemetryReading{
		MachineID:  testMachineID,
		RecordedAt: at,
		Mechanical: &db.MechanicalReading{
			VibrationX: ptr(vib),
			VibrationY: ptr(vib),
			VibrationZ: ptr(vib),
			RPM:        ptr(rpm),
		},
	}
}

func testMachine() db.Machine {
	return db.Machine{
		MachineID:   testMachineID,
		TenantID:    testTenantID,
		MachineType: "CNC",
		Status:      db.StatusRunning,
	}
}

func newTestEvaluator(telemetry *fakeTelemetry, healths *fakeHealths, store *fakeAlertStore, rules []db.Threshold, opts ...alert.Option) *alert.Evaluator {
	return alert.NewEvaluator(
		telemetry,
		healths,
		&fakeMachines{machines: []db.Machine{testMachine()}},
		store,
		threshold.NewResolver(&fakeCandidateStore{rows: rules}),
		testRunningRPM,
		300,
		zap.NewNop(),
		opts...,
	)
}

func TestRun_VibrationAlertLifecycle(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rules := []db.Threshold{globalRule(db.ParamVibration, 5, 8)}
	store := newFakeAlertStore()
	telemetry := &fakeTelemetry{}
	notifier := &recordingNotifier{}
	e := newTestEvaluator(telemetry, &fakeHealths{}, store, rules, alert.WithNotifier(notifier))
	ctx := context.Background()

	// Tick 1: vibration above warning opens an ACTIVE WARNING alert.
	telemetry.readings = []db.TelemetryReading{vibrationReading(base, 6, 1000)}
	stats, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Expected tick 1 to succeed, got %v", err)
	}
	if stats.Created != 1 {
		t.Fatalf("Expected 1 alert created, got %d", stats.Created)
	}
	alerts := store.byParameter(db.ParamVibration)
	if len(alerts) != 1 || alerts[0].Status != db.AlertActive || alerts[0].Severity != db.SeverityWarning {
		t.Fatalf("Expected one ACTIVE WARNING alert, got %+v", alerts)
	}
	if alerts[0].ActualValue < 5.99 || alerts[0].ActualValue > 6.01 {
		t.Errorf("Expected actual value near 6, got %v", alerts[0].ActualValue)
	}
	if alerts[0].ThresholdID == nil {
		t.Error("Expected alert to reference the threshold rule that triggered it")
	}

	// Tick 2: worse reading does not duplicate or escalate the open alert.
	telemetry.readings = append(telemetry.readings, vibrationReading(base.Add(time.Minute), 9, 1000))
	stats, err = e.Run(ctx)
	if err != nil {
		t.Fatalf("Expected tick 2 to succeed, got %v", err)
	}
	if stats.Created != 0 {
		t.Errorf("Expected no new alert while one is open, got %d", stats.Created)
	}
	alerts = store.byParameter(db.ParamVibration)
	if len(alerts) != 1 || alerts[0].Severity != db.SeverityWarning {
		t.Errorf("Expected original WARNING severity to stand, got %+v", alerts)
	}

	// Tick 3: vibration back under the warning value moves the alert to PENDING.
	telemetry.readings = append(telemetry.readings, vibrationReading(base.Add(2*time.Minute), 2, 1000))
	stats, err = e.Run(ctx)
	if err != nil {
		t.Fatalf("Expected tick 3 to succeed, got %v", err)
	}
	if stats.Cleared != 1 {
		t.Errorf("Expected 1 alert cleared, got %d", stats.Cleared)
	}
	alerts = store.byParameter(db.ParamVibration)
	if len(alerts) != 1 || alerts[0].Status != db.AlertPending {
		t.Fatalf("Expected alert in PENDING, got %+v", alerts)
	}

	// A technician acknowledges; the next tick reconciles it even with no
	// fresh telemetry.
	store.acks[alerts[0].AlertID] = struct{}{}
	stats, err = e.Run(ctx)
	if err != nil {
		t.Fatalf("Expected reconciliation tick to succeed, got %v", err)
	}
	if stats.Acknowledged != 1 {
		t.Errorf("Expected 1 alert acknowledged, got %d", stats.Acknowledged)
	}
	alerts = store.byParameter(db.ParamVibration)
	if alerts[0].Status != db.AlertAcknowledged {
		t.Fatalf("Expected alert ACKNOWLEDGED, got %+v", alerts)
	}

	// Tick 5: the condition returns; the acknowledged alert does not block a
	// fresh one.
	telemetry.readings = append(telemetry.readings, vibrationReading(base.Add(3*time.Minute), 6, 1000))
	stats, err = e.Run(ctx)
	if err != nil {
		t.Fatalf("Expected tick 5 to succeed, got %v", err)
	}
	if stats.Created != 1 {
		t.Errorf("Expected a new alert after acknowledgement, got %d", stats.Created)
	}
	alerts = store.byParameter(db.ParamVibration)
	if len(alerts) != 2 {
		t.Errorf("Expected acknowledged alert plus a new one, got %+v", alerts)
	}

	want := []string{alert.EventOpened, alert.EventCleared, alert.EventAcknowledged, alert.EventOpened}
	got := notifier.typesSeen()
	if len(got) != len(want) {
		t.Fatalf("Expected lifecycle events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected event %d to be %q, got %q", i, want[i], got[i])
		}
	}
}

func TestRun_RPMLowBands(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rules := []db.Threshold{globalRule(db.ParamRPMLow, 300, 100)}
	ctx := context.Background()

	// 250 sits under the warning value but above critical: WARNING.
	store := newFakeAlertStore()
	telemetry := &fakeTelemetry{readings: []db.TelemetryReading{vibrationReading(base, 0, 250)}}
	e := newTestEvaluator(telemetry, &fakeHealths{}, store, rules)
	if _, err := e.Run(ctx); err != nil {
		t.Fatalf("Expected run to succeed, got %v", err)
	}
	alerts := store.byParameter(db.ParamRPMLow)
	if len(alerts) != 1 || alerts[0].Severity != db.SeverityWarning {
		t.Errorf("Expected WARNING for rpm 250, got %+v", alerts)
	}

	// 50 is under the critical value: CRITICAL.
	store = newFakeAlertStore()
	telemetry = &fakeTelemetry{readings: []db.TelemetryReading{vibrationReading(base, 0, 50)}}
	e = newTestEvaluator(telemetry, &fakeHealths{}, store, rules)
	if _, err := e.Run(ctx); err != nil {
		t.Fatalf("Expected run to succeed, got %v", err)
	}
	alerts = store.byParameter(db.ParamRPMLow)
	if len(alerts) != 1 || alerts[0].Severity != db.SeverityCritical {
		t.Errorf("Expected CRITICAL for rpm 50, got %+v", alerts)
	}

	// 500 is healthy.
	store = newFakeAlertStore()
	telemetry = &fakeTelemetry{readings: []db.TelemetryReading{vibrationReading(base, 0, 500)}}
	e = newTestEvaluator(telemetry, &fakeHealths{}, store, rules)
	if _, err := e.Run(ctx); err != nil {
		t.Fatalf("Expected run to succeed, got %v", err)
	}
	if alerts := store.byParameter(db.ParamRPMLow); len(alerts) != 0 {
		t.Errorf("Expected no alert for rpm 500, got %+v", alerts)
	}
}

func TestRun_RPMHighBands(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rules := []db.Threshold{globalRule(db.ParamRPMHigh, 1500, 1800)}
	ctx := context.Background()

	store := newFakeAlertStore()
	telemetry := &fakeTelemetry{readings: []db.TelemetryReading{vibrationReading(base, 0, 1600)}}
	e := newTestEvaluator(telemetry, &fakeHealths{}, store, rules)
	if _, err := e.Run(ctx); err != nil {
		t.Fatalf("Expected run to succeed, got %v", err)
	}
	alerts := store.byParameter(db.ParamRPMHigh)
	if len(alerts) != 1 || alerts[0].Severity != db.SeverityWarning {
		t.Errorf("Expected WARNING for rpm 1600, got %+v", alerts)
	}

	store = newFakeAlertStore()
	telemetry = &fakeTelemetry{readings: []db.TelemetryReading{vibrationReading(base, 0, 2000)}}
	e = newTestEvaluator(telemetry, &fakeHealths{}, store, rules)
	if _, err := e.Run(ctx); err != nil {
		t.Fatalf("Expected run to succeed, got %v", err)
	}
	alerts = store.byParameter(db.ParamRPMHigh)
	if len(alerts) != 1 || alerts[0].Severity != db.SeverityCritical {
		t.Errorf("Expected CRITICAL for rpm 2000, got %+v", alerts)
	}
}

func TestRun_MachineStatusAlert(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeAlertStore()
	telemetry := &fakeTelemetry{readings: []db.TelemetryReading{vibrationReading(base, 0, 50)}}
	e := newTestEvaluator(telemetry, &fakeHealths{}, store, nil)
	ctx := context.Background()

	if _, err := e.Run(ctx); err != nil {
		t.Fatalf("Expected run to succeed, got %v", err)
	}
	alerts := store.byParameter(db.ParamMachineStatus)
	if len(alerts) != 1 || alerts[0].Severity != db.SeverityWarning || alerts[0].Status != db.AlertActive {
		t.Fatalf("Expected ACTIVE WARNING status alert for idle machine, got %+v", alerts)
	}
	if alerts[0].ThresholdID != nil {
		t.Error("Expected no threshold reference on the status alert")
	}

	// Machine spins back up; the status alert clears.
	telemetry.readings = append(telemetry.readings, vibrationReading(base.Add(time.Minute), 0, 1000))
	if _, err := e.Run(ctx); err != nil {
		t.Fatalf("Expected second run to succeed, got %v", err)
	}
	alerts = store.byParameter(db.ParamMachineStatus)
	if len(alerts) != 1 || alerts[0].Status != db.AlertPending {
		t.Errorf("Expected status alert cleared to PENDING, got %+v", alerts)
	}
}

func TestRun_AcknowledgementBeatsPendingInSameTick(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rules := []db.Threshold{globalRule(db.ParamVibration, 5, 8)}
	store := newFakeAlertStore()

	existingID := uuid.New()
	store.alerts[existingID] = db.AlertEvent{
		AlertID:     existingID,
		MachineID:   testMachineID,
		Parameter:   db.ParamVibration,
		Severity:    db.SeverityWarning,
		Status:      db.AlertActive,
		GeneratedAt: base.Add(-time.Hour),
	}
	store.acks[existingID] = struct{}{}

	// The same tick both clears the condition and sees the acknowledgement.
	telemetry := &fakeTelemetry{readings: []db.TelemetryReading{vibrationReading(base, 1, 1000)}}
	e := newTestEvaluator(telemetry, &fakeHealths{}, store, rules)

	stats, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Expected run to succeed, got %v", err)
	}
	if stats.Acknowledged != 1 {
		t.Errorf("Expected 1 acknowledgement, got %d", stats.Acknowledged)
	}
	if stats.Cleared != 0 {
		t.Errorf("Expected acknowledgement to supersede the PENDING transition, got %d cleared", stats.Cleared)
	}
	if a := store.alerts[existingID]; a.Status != db.AlertAcknowledged {
		t.Errorf("Expected ACKNOWLEDGED, got %s", a.Status)
	}
}

func TestRun_LoadAlertFromHealthWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rules := []db.Threshold{globalRule(db.ParamLoadHigh, 100, 140)}
	store := newFakeAlertStore()
	telemetry := &fakeTelemetry{readings: []db.TelemetryReading{vibrationReading(base, 0, 1000)}}
	healths := &fakeHealths{records: []db.HealthRecord{{
		MachineID:  testMachineID,
		RecordedAt: base,
		AvgLoad:    120,
	}}}
	e := newTestEvaluator(telemetry, healths, store, rules)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Expected run to succeed, got %v", err)
	}
	alerts := store.byParameter(db.ParamLoadHigh)
	if len(alerts) != 1 || alerts[0].Severity != db.SeverityWarning || alerts[0].ActualValue != 120 {
		t.Errorf("Expected WARNING load alert at 120, got %+v", alerts)
	}
}

func TestRun_WatermarkAdvancesAndSticks(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rules := []db.Threshold{globalRule(db.ParamVibration, 5, 8)}
	store := newFakeAlertStore()
	telemetry := &fakeTelemetry{readings: []db.TelemetryReading{
		vibrationReading(base, 1, 1000),
		vibrationReading(base.Add(time.Minute), 1, 1000),
	}}
	e := newTestEvaluator(telemetry, &fakeHealths{}, store, rules)
	ctx := context.Background()

	if _, err := e.Run(ctx); err != nil {
		t.Fatalf("Expected run to succeed, got %v", err)
	}
	if !store.watermark.Equal(base.Add(time.Minute)) {
		t.Errorf("Expected watermark at latest sample, got %v", store.watermark)
	}

	applies := store.applies
	stats, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Expected idle re-run to succeed, got %v", err)
	}
	if stats.Processed != 0 || store.applies != applies {
		t.Errorf("Expected idle tick to process nothing and skip Apply, got %+v applies=%d", stats, store.applies-applies)
	}
}

func TestRun_UnknownMachineSkipped(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rules := []db.Threshold{globalRule(db.ParamVibration, 5, 8)}
	store := newFakeAlertStore()
	orphan := vibrationReading(base, 9, 1000)
	orphan.MachineID = uuid.MustParse("cccccccc-cccc-cccc-cccc-cccccccccccc")
	telemetry := &fakeTelemetry{readings: []db.TelemetryReading{orphan}}
	e := newTestEvaluator(telemetry, &fakeHealths{}, store, rules)

	stats, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Expected run to succeed, got %v", err)
	}
	if stats.Created != 0 {
		t.Errorf("Expected no alerts for a machine without metadata, got %d", stats.Created)
	}
	// The watermark still advances past the unusable row.
	if !store.watermark.Equal(base) {
		t.Errorf("Expected watermark to advance, got %v", store.watermark)
	}
}
