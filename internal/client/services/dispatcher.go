package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/client/client"
	"github.com/dmitrijs2005/fleetzen/internal/client/models"
	"github.com/dmitrijs2005/fleetzen/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/fleetzen/internal/common"
	"github.com/dmitrijs2005/fleetzen/internal/logging"
)

// Outcome is how a submission left the dispatcher.
type Outcome string

const (
	OutcomeSent   Outcome = "sent"
	OutcomeQueued Outcome = "queued"
)

// Result describes one dispatched submission. Err holds the reason a
// submission was queued instead of sent, if any.
type Result struct {
	Outcome      Outcome
	TempID       string
	Intervention *api.Intervention
	Err          error
}

// ConnectivityChecker reports the last known reachability of the server.
type ConnectivityChecker interface {
	IsOnline() bool
}

// SyncRegistrar asks for a background drain under the given tag.
type SyncRegistrar interface {
	Register(tag string) error
}

// Dispatcher sends a submission directly when online and queues it
// otherwise. A queued submission is never lost: only a queue failure is
// reported as an error.
type Dispatcher struct {
	client  client.Client
	queue   outbox.Repository
	network ConnectivityChecker
	logger  logging.Logger
	newID   func() string

	// Registrar, when set, is asked for a drain after each queued submission.
	Registrar SyncRegistrar
	// OnPendingCount receives the pending count after each queued submission.
	OnPendingCount func(n int)
}

func NewDispatcher(c client.Client, queue outbox.Repository, network ConnectivityChecker, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		client:  c,
		queue:   queue,
		network: network,
		logger:  logger.With("module", "dispatcher"),
		newID:   uuid.NewString,
	}
}

// Submit assigns a fresh local id to payload and delivers it with its photos.
// Invalid payloads are rejected with common.ErrValidation before anything is
// sent or stored.
func (d *Dispatcher) Submit(ctx context.Context, payload api.InterventionPayload, photos []models.QueuedPhoto) (Result, error) {
	tempID := d.newID()
	payload.LocalID = tempID

	if err := api.ValidatePayload(&payload); err != nil {
		return Result{}, fmt.Errorf("%w: %w", common.ErrValidation, err)
	}

	res := Result{TempID: tempID}

	if d.network.IsOnline() {
		rec, err := d.send(ctx, &payload, photos)
		if err == nil {
			res.Outcome = OutcomeSent
			res.Intervention = rec
			d.logger.Info(ctx, "intervention sent", "local_id", tempID, "id", rec.ID)
			return res, nil
		}
		d.logger.Warn(ctx, "direct send failed, queueing", "local_id", tempID, "error", err)
		res.Err = err
	}

	if _, err := d.queue.QueueIntervention(ctx, tempID, payload, photos); err != nil {
		return Result{}, fmt.Errorf("failed to queue intervention: %w", err)
	}
	res.Outcome = OutcomeQueued
	d.logger.Info(ctx, "intervention queued", "local_id", tempID, "photos", len(photos))

	if d.Registrar != nil {
		if err := d.Registrar.Register(common.BackgroundSyncTag); err != nil {
			d.logger.Warn(ctx, "background sync registration failed", "error", err)
		}
	}
	d.reportPending(ctx)

	return res, nil
}

func (d *Dispatcher) send(ctx context.Context, payload *api.InterventionPayload, photos []models.QueuedPhoto) (*api.Intervention, error) {
	rec, _, err := d.client.CreateIntervention(ctx, payload)
	if err != nil {
		return nil, err
	}
	if err := uploadPhotos(ctx, d.client, rec.ID, photos); err != nil {
		return nil, err
	}
	return rec, nil
}

func (d *Dispatcher) reportPending(ctx context.Context) {
	if d.OnPendingCount == nil {
		return
	}
	n, err := d.queue.GetPendingCount(ctx)
	if err != nil {
		d.logger.Warn(ctx, "pending count unavailable", "error", err)
		return
	}
	d.OnPendingCount(n)
}

// uploadPhotos sends photos grouped by kind in order of first appearance.
func uploadPhotos(ctx context.Context, c client.Client, interventionID string, photos []models.QueuedPhoto) error {
	if len(photos) == 0 {
		return nil
	}

	byKind := make(map[string][]models.File)
	var order []string
	for _, p := range photos {
		kind := p.Kind
		if kind == "" {
			kind = api.PhotoOther
		}
		if _, ok := byKind[kind]; !ok {
			order = append(order, kind)
		}
		byKind[kind] = append(byKind[kind], models.File{Name: p.FileName, MimeType: p.MimeType, Data: p.Data})
	}

	for _, kind := range order {
		if _, err := c.UploadPhotos(ctx, interventionID, kind, byKind[kind]); err != nil {
			return fmt.Errorf("upload %s photos: %w", kind, err)
		}
	}
	return nil
}
