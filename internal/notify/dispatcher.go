package notify

import (
	"context"
	"log/slog"

	"github.com/mr1hm/go-panic-alerts/internal/worker"
)

// Dispatcher fans lifecycle events out to the real-time channel and, through
// a worker pool, to the push publisher. Dispatch never blocks the caller and
// delivery failures are logged, not propagated.
type Dispatcher struct {
	broadcaster *Broadcaster
	publisher   Publisher
	pool        *worker.Pool
}

func NewDispatcher(broadcaster *Broadcaster, publisher Publisher, poolWorkers, poolBuffer int) *Dispatcher {
	d := &Dispatcher{
		broadcaster: broadcaster,
		publisher:   publisher,
	}
	d.pool = worker.NewPool(poolWorkers, poolBuffer, d.process)
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

func (d *Dispatcher) Stop() {
	d.pool.Stop()
}

func (d *Dispatcher) Dispatch(ev Event) {
	if d.broadcaster != nil {
		d.broadcaster.Broadcast(ev)
	}

	if d.publisher == nil {
		return
	}
	if !d.pool.Submit(ev) {
		slog.Warn("notification buffer full, event dropped", "type", ev.Type, "alert_id", ev.Alert.ID)
	}
}

func (d *Dispatcher) process(ctx context.Context, job worker.Job) error {
	ev := job.(Event)
	if err := d.publisher.Publish(ctx, ev); err != nil {
		slog.Error("push delivery failed", "type", ev.Type, "alert_id", ev.Alert.ID, "error", err)
	}
	return nil
}
