package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// Enumerations accepted in payloads.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"

	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"

	PhotoBefore = "before"
	PhotoAfter  = "after"
	PhotoOther  = "other"
)

// PhotoPayload is photo metadata carried inside an intervention payload.
// It never holds binary content; bytes travel through the upload endpoint.
type PhotoPayload struct {
	LocalPath string   `json:"localPath,omitempty" validate:"max=512"`
	URL       string   `json:"url,omitempty" validate:"omitempty,url"`
	FileName  string   `json:"fileName" validate:"required,max=255"`
	FileSize  int64    `json:"fileSize" validate:"gte=0"`
	MimeType  string   `json:"mimeType" validate:"required,oneof=image/jpeg image/png image/webp"`
	Caption   *string  `json:"caption,omitempty" validate:"omitempty,max=500"`
	PhotoType string   `json:"photoType" validate:"required,oneof=before after other"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,min=-90,max=90"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,min=-180,max=180"`
}

// Key identifies the photo within its intervention for deduplication.
func (p PhotoPayload) Key() string {
	switch {
	case p.LocalPath != "":
		return "path:" + p.LocalPath
	case p.URL != "":
		return "url:" + p.URL
	default:
		return "name:" + p.FileName
	}
}

// InterventionPayload is one client-originated intervention. LocalID is the
// idempotency key at the server.
type InterventionPayload struct {
	LocalID         string           `json:"localId" validate:"required,max=64"`
	ClientID        string           `json:"clientId" validate:"required,uuid"`
	VehicleID       string           `json:"vehicleId" validate:"required,uuid"`
	TypeID          string           `json:"typeId" validate:"required,uuid"`
	PrestationType  string           `json:"prestationType,omitempty" validate:"omitempty,oneof=wash fuel_delivery tank_refill"`
	Title           string           `json:"title,omitempty" validate:"max=255"`
	Description     string           `json:"description,omitempty" validate:"max=5000"`
	Status          string           `json:"status,omitempty" validate:"omitempty,oneof=pending in_progress completed cancelled"`
	Priority        string           `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	ScheduledAt     *time.Time       `json:"scheduledAt,omitempty"`
	StartedAt       *time.Time       `json:"startedAt,omitempty"`
	CompletedAt     *time.Time       `json:"completedAt,omitempty"`
	Location        string           `json:"location,omitempty" validate:"max=255"`
	Latitude        *float64         `json:"latitude,omitempty" validate:"omitempty,min=-90,max=90"`
	Longitude       *float64         `json:"longitude,omitempty" validate:"omitempty,min=-180,max=180"`
	Mileage         *int64           `json:"mileage,omitempty" validate:"omitempty,gte=0"`
	FuelQuantity    *decimal.Decimal `json:"fuelQuantity,omitempty" validate:"omitempty,gte=0"`
	LaborCost       *decimal.Decimal `json:"laborCost,omitempty" validate:"omitempty,gte=0"`
	PartsCost       *decimal.Decimal `json:"partsCost,omitempty" validate:"omitempty,gte=0"`
	TotalCost       *decimal.Decimal `json:"totalCost,omitempty" validate:"omitempty,gte=0"`
	AgentSignature  string           `json:"agentSignature,omitempty"`
	ClientSignature string           `json:"clientSignature,omitempty"`
	Notes           string           `json:"notes,omitempty" validate:"max=5000"`
	Details         map[string]any   `json:"details,omitempty"`
	Photos          []PhotoPayload   `json:"photos,omitempty" validate:"max=20,dive"`
}

// Photo is a persisted photo record as returned by the server.
type Photo struct {
	ID             string    `json:"id"`
	InterventionID string    `json:"interventionId"`
	URL            string    `json:"url"`
	FileName       string    `json:"fileName"`
	FileSize       int64     `json:"fileSize"`
	MimeType       string    `json:"mimeType"`
	Caption        *string   `json:"caption,omitempty"`
	PhotoType      string    `json:"photoType"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Position       int       `json:"position"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Intervention is a reconciled server record. The embedded payload carries
// LocalID; Photos shadows the payload's metadata list with stored records.
type Intervention struct {
	ID       string     `json:"id"`
	Number   string     `json:"number"`
	AgentID  string     `json:"agentId"`
	Synced   bool       `json:"synced"`
	SyncedAt *time.Time `json:"syncedAt,omitempty"`

	InterventionPayload

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Photos    []Photo   `json:"photos"`
}

// BatchRequest is the body of the batch reconciliation call.
type BatchRequest struct {
	Interventions []InterventionPayload `json:"interventions"`
}

type BatchSuccess struct {
	LocalID      string       `json:"localId"`
	Created      bool         `json:"created"`
	Intervention Intervention `json:"intervention"`
}

type BatchFailure struct {
	LocalID string `json:"localId"`
	Error   string `json:"error"`
}

type BatchData struct {
	Success []BatchSuccess `json:"success"`
	Failed  []BatchFailure `json:"failed"`
}

type BatchMeta struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// BatchResponse is the per-item outcome of a batch reconciliation.
type BatchResponse struct {
	Success bool      `json:"success"`
	Data    BatchData `json:"data"`
	Meta    BatchMeta `json:"meta"`
}

// InterventionResponse wraps a single reconciled record.
type InterventionResponse struct {
	Success bool         `json:"success"`
	Created bool         `json:"created"`
	Data    Intervention `json:"data"`
}

// PhotosResponse lists the photo records created by an upload.
type PhotosResponse struct {
	Success bool    `json:"success"`
	Data    []Photo `json:"data"`
}

// ErrorBody is the standard error object.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Agent identifies the caller of an authenticated request.
type Agent struct {
	ID string `json:"id"`
}

type AgentResponse struct {
	Success bool  `json:"success"`
	Data    Agent `json:"data"`
}
