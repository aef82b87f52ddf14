package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/client/models"
	"github.com/dmitrijs2005/fleetzen/internal/logging"
)

var photoFields = []struct {
	field string
	kind  string
}{
	{models.FieldPhotosBefore, api.PhotoBefore},
	{models.FieldPhotosAfter, api.PhotoAfter},
}

// DraftSubmitter turns a finished draft into a submission.
type DraftSubmitter struct {
	drafts      *DraftService
	dispatcher  *Dispatcher
	lastContext *LastContextCache
	logger      logging.Logger
}

func NewDraftSubmitter(drafts *DraftService, dispatcher *Dispatcher, lastContext *LastContextCache, logger logging.Logger) *DraftSubmitter {
	return &DraftSubmitter{
		drafts:      drafts,
		dispatcher:  dispatcher,
		lastContext: lastContext,
		logger:      logger.With("module", "submit"),
	}
}

// SubmitDraft validates the draft, dispatches it with its photos and clears
// it once the submission was sent or queued. An invalid draft is kept.
func (s *DraftSubmitter) SubmitDraft(ctx context.Context, id string) (Result, error) {
	d, files, err := s.drafts.Resume(ctx, id)
	if err != nil {
		return Result{}, err
	}

	form, err := models.DecodeForm(d.TypePrestation, d.FormData)
	if err != nil {
		return Result{}, err
	}
	payload := form.Payload("")

	var photos []models.QueuedPhoto
	for _, pf := range photoFields {
		for _, f := range files[pf.field] {
			photos = append(photos, models.QueuedPhoto{Kind: pf.kind, FileName: f.Name, MimeType: f.MimeType, Data: f.Data})
		}
	}

	res, err := s.dispatcher.Submit(ctx, payload, photos)
	if err != nil {
		return Result{}, err
	}

	if err := s.drafts.Clear(ctx, id); err != nil {
		s.logger.Warn(ctx, "submitted draft not cleared", "draft_id", id, "error", err)
	}
	if s.lastContext != nil {
		lc := LastContext{ClientID: payload.ClientID, VehicleID: payload.VehicleID, TypeID: payload.TypeID}
		if err := s.lastContext.Remember(ctx, lc); err != nil {
			s.logger.Warn(ctx, "last context not saved", "error", err)
		}
	}
	return res, nil
}

// PreviewDraft returns the payload a draft would submit, for inspection.
func (s *DraftSubmitter) PreviewDraft(ctx context.Context, id string) (*api.InterventionPayload, error) {
	d, _, err := s.drafts.Resume(ctx, id)
	if err != nil {
		return nil, err
	}
	form, err := models.DecodeForm(d.TypePrestation, d.FormData)
	if err != nil {
		return nil, fmt.Errorf("draft %s: %w", id, err)
	}
	p := form.Payload("")
	return &p, nil
}
