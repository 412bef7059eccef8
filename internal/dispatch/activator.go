package dispatch

import (
	"context"
	"time"

	"github.com/example/ride-dispatch/internal/ride"
)

// RunActivator sweeps scheduled rides at a fixed interval and promotes
// everything due within the activation window. One ride failing does not
// abort the sweep. Blocks until ctx is cancelled.
func (o *Orchestrator) RunActivator(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	o.log.Info("scheduled ride activator running", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			o.log.Info("scheduled ride activator stopped")
			return
		case <-ticker.C:
			o.activateDue()
		}
	}
}

func (o *Orchestrator) activateDue() {
	now := o.now()
	due, err := o.machine.Store().ScheduledDue(now.Add(ride.ActivationWindow))
	if err != nil {
		o.log.Error("scheduled sweep failed", "error", err)
		return
	}
	activated := 0
	for _, r := range due {
		if _, err := o.ActivateScheduled(r.ID); err != nil {
			o.log.Warn("activation failed", "ride_id", r.ID, "error", err)
			continue
		}
		activated++
	}
	if len(due) > 0 {
		o.log.Info("scheduled sweep complete", "due", len(due), "activated", activated)
	}
}
