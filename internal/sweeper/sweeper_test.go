package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mr1hm/go-panic-alerts/internal/config"
	"github.com/mr1hm/go-panic-alerts/internal/models"
	"github.com/mr1hm/go-panic-alerts/internal/notify"
	"github.com/mr1hm/go-panic-alerts/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockAlertRepo struct {
	mu        sync.Mutex
	alerts    map[string]*models.Alert
	listErr   error
	updateErr map[string]error
}

func newMockAlertRepo(alerts ...*models.Alert) *mockAlertRepo {
	m := &mockAlertRepo{alerts: make(map[string]*models.Alert)}
	for _, a := range alerts {
		cp := *a
		m.alerts[a.ID] = &cp
	}
	return m
}

func (m *mockAlertRepo) Save(ctx context.Context, a *models.Alert) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	return nil, nil
}

func (m *mockAlertRepo) FindOpenByDevice(ctx context.Context, deviceEUI string) (*models.Alert, error) {
	return nil, nil
}

func (m *mockAlertRepo) CountClosedByDevice(ctx context.Context, deviceEUI string) (int, error) {
	return 0, nil
}

func (m *mockAlertRepo) List(ctx context.Context, opts repository.Filter) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.Alert
	for _, a := range m.alerts {
		for _, s := range opts.States {
			if a.State == s {
				out = append(out, *a)
				break
			}
		}
	}
	return out, nil
}

func (m *mockAlertRepo) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateErr[id]; err != nil {
		return err
	}
	a, ok := m.alerts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if s, ok := fields["state"]; ok {
		a.State = models.AlertState(s.(string))
	}
	return nil
}

func (m *mockAlertRepo) state(id string) models.AlertState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alerts[id].State
}

type mockSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *mockSink) Dispatch(ev notify.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *mockSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func testSweepConfig() config.SweepConfig {
	return config.SweepConfig{
		Interval:            2 * time.Minute,
		InactivityThreshold: 10 * time.Minute,
	}
}

func alertAt(id string, state models.AlertState, lastActivation time.Time) *models.Alert {
	return &models.Alert{
		ID:               id,
		DeviceEUI:        "EUI-" + id,
		State:            state,
		LastActivationAt: lastActivation,
	}
}

func TestSweep_ExpiresStaleAvailable(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	repo := newMockAlertRepo(
		alertAt("stale", models.AlertStateAvailable, now.Add(-11*time.Minute)),
		alertAt("fresh", models.AlertStateAvailable, now.Add(-1*time.Minute)),
	)
	sink := &mockSink{}

	sw := New(repo, sink, testSweepConfig())
	sw.now = func() time.Time { return now }

	if err := sw.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if got := repo.state("stale"); got != models.AlertStateExpired {
		t.Errorf("expected stale alert expired, got %s", got)
	}
	if got := repo.state("fresh"); got != models.AlertStateAvailable {
		t.Errorf("expected fresh alert untouched, got %s", got)
	}

	if sink.count() != 1 {
		t.Fatalf("expected 1 expiration event, got %d", sink.count())
	}
	if sink.events[0].Type != notify.EventAlertExpired {
		t.Errorf("expected expired event type, got %s", sink.events[0].Type)
	}
}

func TestSweep_HandledAlertsKeptByDefault(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	repo := newMockAlertRepo(
		alertAt("taken", models.AlertStateTaken, now.Add(-30*time.Minute)),
		alertAt("moving", models.AlertStateEnRoute, now.Add(-30*time.Minute)),
	)

	sw := New(repo, nil, testSweepConfig())
	sw.now = func() time.Time { return now }

	if err := sw.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if got := repo.state("taken"); got != models.AlertStateTaken {
		t.Errorf("taken alert must survive the sweep, got %s", got)
	}
	if got := repo.state("moving"); got != models.AlertStateEnRoute {
		t.Errorf("en_route alert must survive the sweep, got %s", got)
	}
}

func TestSweep_ExpireHandledOptIn(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	repo := newMockAlertRepo(
		alertAt("taken", models.AlertStateTaken, now.Add(-30*time.Minute)),
	)

	cfg := testSweepConfig()
	cfg.ExpireHandled = true

	sw := New(repo, nil, cfg)
	sw.now = func() time.Time { return now }

	if err := sw.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if got := repo.state("taken"); got != models.AlertStateExpired {
		t.Errorf("expected taken alert expired with opt-in, got %s", got)
	}
}

func TestSweep_Idempotent(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	repo := newMockAlertRepo(
		alertAt("stale", models.AlertStateAvailable, now.Add(-20*time.Minute)),
	)
	sink := &mockSink{}

	sw := New(repo, sink, testSweepConfig())
	sw.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if err := sw.Sweep(context.Background()); err != nil {
			t.Fatalf("Sweep %d failed: %v", i, err)
		}
	}

	if sink.count() != 1 {
		t.Errorf("expected a single expiration event across repeated sweeps, got %d", sink.count())
	}
}

func TestSweep_ContinuesPastUpdateErrors(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	repo := newMockAlertRepo(
		alertAt("bad", models.AlertStateAvailable, now.Add(-20*time.Minute)),
		alertAt("good", models.AlertStateAvailable, now.Add(-20*time.Minute)),
	)
	repo.updateErr = map[string]error{"bad": errors.New("disk full")}
	sink := &mockSink{}

	sw := New(repo, sink, testSweepConfig())
	sw.now = func() time.Time { return now }

	if err := sw.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep must not fail on a single update error: %v", err)
	}

	if got := repo.state("good"); got != models.AlertStateExpired {
		t.Errorf("expected good alert expired despite sibling failure, got %s", got)
	}
	if sink.count() != 1 {
		t.Errorf("expected 1 event, got %d", sink.count())
	}
}

func TestSweep_ListErrorPropagates(t *testing.T) {
	repo := newMockAlertRepo()
	repo.listErr = errors.New("db gone")

	sw := New(repo, nil, testSweepConfig())
	if err := sw.Sweep(context.Background()); err == nil {
		t.Fatal("expected error when listing fails")
	}
}

func TestSweeper_StartStop(t *testing.T) {
	repo := newMockAlertRepo()
	cfg := testSweepConfig()
	cfg.Interval = 10 * time.Millisecond

	sw := New(repo, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	sw.Start(ctx)

	time.Sleep(30 * time.Millisecond)
	cancel()
	sw.Stop()
}
