// Package models holds the server-side persistence types.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmitrijs2005/fleetzen/internal/api"
)

// Intervention is one row of the interventions table.
type Intervention struct {
	ID              string
	Number          string
	LocalID         string
	AgentID         string
	ClientID        string
	VehicleID       string
	TypeID          string
	PrestationType  string
	Title           string
	Description     string
	Status          string
	Priority        string
	ScheduledAt     *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Location        string
	Latitude        *float64
	Longitude       *float64
	Mileage         *int64
	FuelQuantity    decimal.NullDecimal
	LaborCost       decimal.NullDecimal
	PartsCost       decimal.NullDecimal
	TotalCost       decimal.NullDecimal
	AgentSignature  string
	ClientSignature string
	Notes           string
	Details         []byte
	Synced          bool
	SyncedAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ApplyPayload maps the incoming client fields onto the record. Identity
// columns (ID, Number, LocalID, AgentID) are left untouched.
func (i *Intervention) ApplyPayload(p *api.InterventionPayload) error {
	i.ClientID = p.ClientID
	i.VehicleID = p.VehicleID
	i.TypeID = p.TypeID
	i.PrestationType = p.PrestationType
	i.Title = p.Title
	i.Description = p.Description
	i.Status = orDefault(p.Status, api.StatusPending)
	i.Priority = orDefault(p.Priority, api.PriorityNormal)
	i.ScheduledAt = p.ScheduledAt
	i.StartedAt = p.StartedAt
	i.CompletedAt = p.CompletedAt
	i.Location = p.Location
	i.Latitude = p.Latitude
	i.Longitude = p.Longitude
	i.Mileage = p.Mileage
	i.FuelQuantity = nullDecimal(p.FuelQuantity)
	i.LaborCost = nullDecimal(p.LaborCost)
	i.PartsCost = nullDecimal(p.PartsCost)
	i.TotalCost = nullDecimal(p.TotalCost)
	i.AgentSignature = p.AgentSignature
	i.ClientSignature = p.ClientSignature
	i.Notes = p.Notes

	details := p.Details
	if details == nil {
		details = map[string]any{}
	}
	b, err := json.Marshal(details)
	if err != nil {
		return err
	}
	i.Details = b
	return nil
}

// ToAPI converts the record and its photos to the wire representation.
func (i *Intervention) ToAPI(photos []api.Photo) api.Intervention {
	out := api.Intervention{
		ID:       i.ID,
		Number:   i.Number,
		AgentID:  i.AgentID,
		Synced:   i.Synced,
		SyncedAt: i.SyncedAt,
		InterventionPayload: api.InterventionPayload{
			LocalID:         i.LocalID,
			ClientID:        i.ClientID,
			VehicleID:       i.VehicleID,
			TypeID:          i.TypeID,
			PrestationType:  i.PrestationType,
			Title:           i.Title,
			Description:     i.Description,
			Status:          i.Status,
			Priority:        i.Priority,
			ScheduledAt:     i.ScheduledAt,
			StartedAt:       i.StartedAt,
			CompletedAt:     i.CompletedAt,
			Location:        i.Location,
			Latitude:        i.Latitude,
			Longitude:       i.Longitude,
			Mileage:         i.Mileage,
			FuelQuantity:    decimalPtr(i.FuelQuantity),
			LaborCost:       decimalPtr(i.LaborCost),
			PartsCost:       decimalPtr(i.PartsCost),
			TotalCost:       decimalPtr(i.TotalCost),
			AgentSignature:  i.AgentSignature,
			ClientSignature: i.ClientSignature,
			Notes:           i.Notes,
		},
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
		Photos:    photos,
	}
	if len(i.Details) > 0 {
		var details map[string]any
		if err := json.Unmarshal(i.Details, &details); err == nil && len(details) > 0 {
			out.Details = details
		}
	}
	if out.Photos == nil {
		out.Photos = []api.Photo{}
	}
	return out
}

// FormatNumber renders the human-readable number, e.g. INT-2026-000123.
func FormatNumber(t time.Time, seq int64) string {
	return fmt.Sprintf("INT-%04d-%06d", t.Year(), seq)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
