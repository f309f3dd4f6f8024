// Package sweeper expires open alerts that have gone quiet. It is the only
// component allowed to move an alert into the expired state.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mr1hm/go-panic-alerts/internal/config"
	"github.com/mr1hm/go-panic-alerts/internal/models"
	"github.com/mr1hm/go-panic-alerts/internal/notify"
	"github.com/mr1hm/go-panic-alerts/internal/repository"
)

// EventSink receives expiration events for fan-out.
type EventSink interface {
	Dispatch(ev notify.Event)
}

type Sweeper struct {
	alerts repository.AlertRepository
	sink   EventSink
	cfg    config.SweepConfig

	now func() time.Time
	wg  sync.WaitGroup
}

func New(alerts repository.AlertRepository, sink EventSink, cfg config.SweepConfig) *Sweeper {
	return &Sweeper{
		alerts: alerts,
		sink:   sink,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Start launches the sweep loop. A failed cycle is logged and retried on the
// next tick; it never stops the loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		slog.Info("starting expiration sweeper", "interval", s.cfg.Interval,
			"inactivity_threshold", s.cfg.InactivityThreshold, "expire_handled", s.cfg.ExpireHandled)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("expiration sweeper shutting down")
				return
			case <-ticker.C:
				if err := s.Sweep(ctx); err != nil {
					slog.Error("sweep cycle failed", "error", err)
					sentry.CaptureException(err)
				}
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	s.wg.Wait()
}

// Sweep runs one expiration cycle. Each alert update is applied in isolation
// as a partial-field write, so an interrupted cycle leaves no half-applied
// alert, and re-running over already-expired alerts is a no-op because they
// no longer match the open-state scan.
func (s *Sweeper) Sweep(ctx context.Context) error {
	states := []models.AlertState{models.AlertStateAvailable}
	if s.cfg.ExpireHandled {
		states = models.OpenStates
	}

	alerts, err := s.alerts.List(ctx, repository.Filter{States: states})
	if err != nil {
		return fmt.Errorf("error listing open alerts: %w", err)
	}

	cutoff := s.now().UTC().Add(-s.cfg.InactivityThreshold)
	expired := 0

	for _, a := range alerts {
		if !a.LastActivationAt.Before(cutoff) {
			continue
		}

		err := s.alerts.UpdateFields(ctx, a.ID, map[string]any{
			"state": string(models.AlertStateExpired),
		})
		if err != nil {
			slog.Error("error expiring alert", "id", a.ID, "error", err)
			continue
		}

		a.State = models.AlertStateExpired
		if s.sink != nil {
			s.sink.Dispatch(notify.NewEvent(notify.EventAlertExpired, &a))
		}

		expired++
		slog.Info("alert expired", "id", a.ID, "device_eui", a.DeviceEUI,
			"last_activation_at", a.LastActivationAt)
	}

	if expired > 0 {
		slog.Debug("sweep complete", "scanned", len(alerts), "expired", expired)
	}
	return nil
}
