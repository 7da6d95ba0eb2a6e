// Package worker runs the background refresher that keeps tracked addresses
// warm, so a returning user's first page is served from the store without a
// cold scan.
package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	apperrors "github.com/wallet-explorer/internal/errors"
	"github.com/wallet-explorer/internal/logging"
)

// AddressLister yields the addresses worth keeping warm. The graph
// repository implements it over the tracked-address table.
type AddressLister interface {
	TrackedAddresses(ctx context.Context) ([]string, error)
}

// Syncer re-syncs one address against the chain. The sync service
// implements it.
type Syncer interface {
	EnsureFresh(ctx context.Context, address string) error
}

// Refresher re-syncs every tracked address on a cron schedule.
type Refresher struct {
	lister   AddressLister
	syncer   Syncer
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	logger   *logging.Logger
}

// NewRefresher creates a refresher; call Start to begin the schedule.
func NewRefresher(lister AddressLister, syncer Syncer, schedule string, logger *logging.Logger) *Refresher {
	return &Refresher{
		lister:   lister,
		syncer:   syncer,
		schedule: schedule,
		timeout:  10 * time.Minute,
		cron:     cron.New(),
		logger:   logger.WithField("component", "refresher"),
	}
}

// Start schedules the refresh loop. It fails only when the cron expression
// does not parse.
func (r *Refresher) Start() error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.RefreshAll(ctx)
	})
	if err != nil {
		return apperrors.NewInternalError("invalid refresh schedule", err)
	}

	r.cron.Start()
	r.logger.WithField("schedule", r.schedule).Info("Refresher started")
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("Refresher stopped")
}

// RefreshAll re-syncs every tracked address sequentially. One address
// failing never blocks the rest; sync pacing already throttles the provider
// calls.
func (r *Refresher) RefreshAll(ctx context.Context) {
	addresses, err := r.lister.TrackedAddresses(ctx)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list tracked addresses")
		return
	}
	if len(addresses) == 0 {
		return
	}

	r.logger.WithField("count", len(addresses)).Info("Refreshing tracked addresses")

	refreshed := 0
	for _, address := range addresses {
		if ctx.Err() != nil {
			r.logger.Warn("Refresh cancelled")
			return
		}
		if err := r.syncer.EnsureFresh(ctx, address); err != nil {
			r.logger.WithError(err).WithField("address", address).
				Warn("Refresh failed for address")
			continue
		}
		refreshed++
	}

	r.logger.WithField("refreshed", refreshed).Info("Refresh pass complete")
}
