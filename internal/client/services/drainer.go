package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/client/client"
	"github.com/dmitrijs2005/fleetzen/internal/client/models"
	"github.com/dmitrijs2005/fleetzen/internal/client/network"
	"github.com/dmitrijs2005/fleetzen/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/fleetzen/internal/logging"
)

const (
	// DefaultBatchSize stays well under the server's per-request item limit.
	DefaultBatchSize = 50

	// StaleSyncingAfter is how long a submission may sit in syncing before a
	// drain assumes the previous run died.
	StaleSyncingAfter = 5 * time.Minute

	errMissingFromResponse = "missing from server response"
	errSyncInterrupted     = "sync interrupted"
)

// ErrOffline is returned by Drain when the connectivity gate reports the
// server unreachable.
var ErrOffline = errors.New("server unreachable")

// DrainReport summarizes one drain.
type DrainReport struct {
	Released  int // stale syncing entries marked failed
	Requeued  int // failed entries moved back to pending
	Attempted int
	Synced    int
	Failed    int
}

// Drainer pushes queued submissions to the server in FIFO batches.
type Drainer struct {
	client client.Client
	queue  outbox.Repository
	policy RetryPolicy
	logger logging.Logger
	now    func() time.Time
	rand   func() float64

	BatchSize int
	// Online, when set, gates drains: nothing is attempted while it reports
	// offline, so retries are not spent on a dead link.
	Online ConnectivityChecker
	// OnPendingCount receives the pending count after each drain.
	OnPendingCount func(n int)

	trigger chan struct{}
	run     sync.Mutex

	mu        sync.Mutex
	forceNext bool
}

func NewDrainer(c client.Client, queue outbox.Repository, policy RetryPolicy, logger logging.Logger) *Drainer {
	return &Drainer{
		client:    c,
		queue:     queue,
		policy:    policy,
		logger:    logger.With("module", "drainer"),
		now:       time.Now,
		rand:      rand.Float64,
		BatchSize: DefaultBatchSize,
		trigger:   make(chan struct{}, 1),
	}
}

// Trigger asks Run for a drain. It never blocks; triggers coalesce.
func (d *Drainer) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Register implements SyncRegistrar.
func (d *Drainer) Register(tag string) error {
	d.logger.Debug(context.Background(), "background sync registered", "tag", tag)
	d.Trigger()
	return nil
}

// OnNetworkChange is a network.Detector listener. A reconnect requeues failed
// submissions without waiting for their backoff and starts a drain.
func (d *Drainer) OnNetworkChange(st network.State) {
	if !st.JustReconnected {
		return
	}
	d.RetryFailedNow()
	d.Trigger()
}

// RetryFailedNow makes the next drain requeue failed submissions under the
// attempt cap without waiting for their backoff.
func (d *Drainer) RetryFailedNow() {
	d.mu.Lock()
	d.forceNext = true
	d.mu.Unlock()
}

// Drain runs one pass over the queue. Only one pass runs at a time.
func (d *Drainer) Drain(ctx context.Context) (DrainReport, error) {
	d.run.Lock()
	defer d.run.Unlock()

	var rep DrainReport
	now := d.now()

	released, err := d.queue.FailStale(ctx, now.Add(-StaleSyncingAfter), errSyncInterrupted)
	if err != nil {
		return rep, err
	}
	rep.Released = released

	if d.Online != nil && !d.Online.IsOnline() {
		return rep, ErrOffline
	}

	d.mu.Lock()
	force := d.forceNext
	d.forceNext = false
	d.mu.Unlock()

	if rep.Requeued, err = d.requeueDue(ctx, now, force); err != nil {
		return rep, err
	}

	pending, err := d.queue.GetPendingInterventions(ctx)
	if err != nil {
		return rep, err
	}

	size := d.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	for start := 0; start < len(pending); start += size {
		end := min(start+size, len(pending))
		if err := d.drainBatch(ctx, pending[start:end], &rep); err != nil {
			d.reportPending(ctx)
			return rep, err
		}
	}

	if rep.Attempted > 0 {
		d.logger.Info(ctx, "queue drained", "attempted", rep.Attempted, "synced", rep.Synced, "failed", rep.Failed)
	}
	d.reportPending(ctx)
	return rep, nil
}

func (d *Drainer) requeueDue(ctx context.Context, now time.Time, force bool) (int, error) {
	all, err := d.queue.ListInterventions(ctx)
	if err != nil {
		return 0, err
	}
	var due []int64
	for _, q := range all {
		if d.policy.Due(q, now, force, d.rand()) {
			due = append(due, q.Seq)
		}
	}
	if len(due) == 0 {
		return 0, nil
	}
	return d.queue.RequeueFailed(ctx, due)
}

// drainBatch returns an error only when the batch could not be delivered at
// all; per-item failures are recorded on the entries.
func (d *Drainer) drainBatch(ctx context.Context, batch []*models.QueuedSubmission, rep *DrainReport) error {
	items := make([]api.InterventionPayload, 0, len(batch))
	for _, q := range batch {
		if err := d.queue.UpdateInterventionStatus(ctx, q.Seq, models.QueueStatusSyncing, ""); err != nil {
			return err
		}
		items = append(items, q.Payload)
	}
	rep.Attempted += len(batch)

	resp, err := d.client.SyncBatch(ctx, items)
	if err != nil {
		d.logger.Warn(ctx, "batch sync failed", "items", len(batch), "error", err)
		for _, q := range batch {
			d.fail(ctx, q, err.Error())
		}
		rep.Failed += len(batch)
		return fmt.Errorf("sync batch: %w", err)
	}

	succeeded := make(map[string]api.BatchSuccess, len(resp.Data.Success))
	for _, s := range resp.Data.Success {
		succeeded[s.LocalID] = s
	}
	failed := make(map[string]string, len(resp.Data.Failed))
	for _, f := range resp.Data.Failed {
		failed[f.LocalID] = f.Error
	}

	for _, q := range batch {
		if s, ok := succeeded[q.TempID]; ok {
			if err := uploadPhotos(ctx, d.client, s.Intervention.ID, q.Photos); err != nil {
				d.fail(ctx, q, err.Error())
				rep.Failed++
				continue
			}
			if err := d.queue.DeleteIntervention(ctx, q.Seq); err != nil {
				return err
			}
			rep.Synced++
			continue
		}

		msg, ok := failed[q.TempID]
		if !ok {
			msg = errMissingFromResponse
		}
		d.fail(ctx, q, msg)
		rep.Failed++
	}
	return nil
}

func (d *Drainer) fail(ctx context.Context, q *models.QueuedSubmission, msg string) {
	if err := d.queue.UpdateInterventionStatus(ctx, q.Seq, models.QueueStatusFailed, msg); err != nil {
		d.logger.Error(ctx, "failed to record sync failure", "seq", q.Seq, "error", err)
	}
}

func (d *Drainer) reportPending(ctx context.Context) {
	if d.OnPendingCount == nil {
		return
	}
	if n, err := d.queue.GetPendingCount(ctx); err == nil {
		d.OnPendingCount(n)
	}
}

// Run drains on every trigger and every interval until ctx is done.
func (d *Drainer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.trigger:
		}

		if _, err := d.Drain(ctx); err != nil && !errors.Is(err, ErrOffline) && ctx.Err() == nil {
			d.logger.Warn(ctx, "drain failed", "error", err)
		}
	}
}
