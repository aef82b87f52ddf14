package interventions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/common"
	"github.com/dmitrijs2005/fleetzen/internal/dbx"
	"github.com/dmitrijs2005/fleetzen/internal/server/models"
)

const columns = `id, number, local_id, agent_id, client_id, vehicle_id, type_id, prestation_type,
	title, description, status, priority, scheduled_at, started_at, completed_at, location,
	latitude, longitude, mileage, fuel_quantity, labor_cost, parts_cost, total_cost,
	agent_signature, client_signature, notes, details, synced, synced_at, created_at, updated_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIntervention(s scanner, extra ...any) (*models.Intervention, error) {
	var i models.Intervention
	dest := []any{
		&i.ID, &i.Number, &i.LocalID, &i.AgentID, &i.ClientID, &i.VehicleID, &i.TypeID, &i.PrestationType,
		&i.Title, &i.Description, &i.Status, &i.Priority, &i.ScheduledAt, &i.StartedAt, &i.CompletedAt, &i.Location,
		&i.Latitude, &i.Longitude, &i.Mileage, &i.FuelQuantity, &i.LaborCost, &i.PartsCost, &i.TotalCost,
		&i.AgentSignature, &i.ClientSignature, &i.Notes, &i.Details, &i.Synced, &i.SyncedAt, &i.CreatedAt, &i.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &i, nil
}

// GetByLocalID returns the record carrying localID or common.ErrNotFound.
func (r *PostgresRepository) GetByLocalID(ctx context.Context, localID string) (*models.Intervention, error) {
	query := `SELECT ` + columns + ` FROM interventions WHERE local_id = $1`

	rec, err := scanIntervention(r.db.QueryRowContext(ctx, query, localID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// GetByID returns the record with the server id or common.ErrNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Intervention, error) {
	query := `SELECT ` + columns + ` FROM interventions WHERE id = $1`

	rec, err := scanIntervention(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// Upsert relies on the unique index on local_id: when two requests race on
// the same local id, the loser updates the winner's row instead of failing.
// xmax = 0 holds only for a freshly inserted tuple. A row owned by another
// agent is left untouched and reported as common.ErrConflict.
func (r *PostgresRepository) Upsert(ctx context.Context, rec *models.Intervention) (*models.Intervention, bool, error) {
	query := `
		INSERT INTO interventions (id, number, local_id, agent_id, client_id, vehicle_id, type_id, prestation_type,
			title, description, status, priority, scheduled_at, started_at, completed_at, location,
			latitude, longitude, mileage, fuel_quantity, labor_cost, parts_cost, total_cost,
			agent_signature, client_signature, notes, details, synced, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
		ON CONFLICT (local_id)
		DO UPDATE SET
			client_id = EXCLUDED.client_id,
			vehicle_id = EXCLUDED.vehicle_id,
			type_id = EXCLUDED.type_id,
			prestation_type = EXCLUDED.prestation_type,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			scheduled_at = EXCLUDED.scheduled_at,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			location = EXCLUDED.location,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			mileage = EXCLUDED.mileage,
			fuel_quantity = EXCLUDED.fuel_quantity,
			labor_cost = EXCLUDED.labor_cost,
			parts_cost = EXCLUDED.parts_cost,
			total_cost = EXCLUDED.total_cost,
			agent_signature = EXCLUDED.agent_signature,
			client_signature = EXCLUDED.client_signature,
			notes = EXCLUDED.notes,
			details = EXCLUDED.details,
			synced = TRUE,
			synced_at = EXCLUDED.synced_at,
			updated_at = now()
		WHERE interventions.agent_id = EXCLUDED.agent_id
		RETURNING ` + columns + `, (xmax = 0) AS inserted`

	var inserted bool
	stored, err := scanIntervention(r.db.QueryRowContext(ctx, query,
		rec.ID, rec.Number, rec.LocalID, rec.AgentID, rec.ClientID, rec.VehicleID, rec.TypeID, rec.PrestationType,
		rec.Title, rec.Description, rec.Status, rec.Priority, rec.ScheduledAt, rec.StartedAt, rec.CompletedAt, rec.Location,
		rec.Latitude, rec.Longitude, rec.Mileage, rec.FuelQuantity, rec.LaborCost, rec.PartsCost, rec.TotalCost,
		rec.AgentSignature, rec.ClientSignature, rec.Notes, string(rec.Details), rec.Synced, rec.SyncedAt,
	), &inserted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("%w: local id %q owned by another agent", common.ErrConflict, rec.LocalID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	return stored, inserted, nil
}

// Update writes the mutable columns of rec by id. Returns common.ErrNotFound
// when the row is gone.
func (r *PostgresRepository) Update(ctx context.Context, rec *models.Intervention) error {
	query := `
		UPDATE interventions SET
			client_id = $2, vehicle_id = $3, type_id = $4, prestation_type = $5,
			title = $6, description = $7, status = $8, priority = $9,
			scheduled_at = $10, started_at = $11, completed_at = $12, location = $13,
			latitude = $14, longitude = $15, mileage = $16,
			fuel_quantity = $17, labor_cost = $18, parts_cost = $19, total_cost = $20,
			agent_signature = $21, client_signature = $22, notes = $23, details = $24,
			synced = $25, synced_at = $26, updated_at = $27
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.ClientID, rec.VehicleID, rec.TypeID, rec.PrestationType,
		rec.Title, rec.Description, rec.Status, rec.Priority,
		rec.ScheduledAt, rec.StartedAt, rec.CompletedAt, rec.Location,
		rec.Latitude, rec.Longitude, rec.Mileage,
		rec.FuelQuantity, rec.LaborCost, rec.PartsCost, rec.TotalCost,
		rec.AgentSignature, rec.ClientSignature, rec.Notes, string(rec.Details),
		rec.Synced, rec.SyncedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExpectRows(res, 1, common.ErrNotFound)
}

// NextNumber mints a human-readable number such as INT-2026-000123. Numbers
// come from a sequence, so gaps after rolled back transactions are expected.
func (r *PostgresRepository) NextNumber(ctx context.Context, now time.Time) (string, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT nextval('intervention_number_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("failed to mint intervention number: %w", err)
	}
	return models.FormatNumber(now, n), nil
}
