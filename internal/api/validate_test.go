package api

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() *InterventionPayload {
	cost := decimal.RequireFromString("42.50")
	return &InterventionPayload{
		LocalID:        uuid.NewString(),
		ClientID:       uuid.NewString(),
		VehicleID:      uuid.NewString(),
		TypeID:         uuid.NewString(),
		PrestationType: "wash",
		Status:         StatusCompleted,
		Priority:       PriorityNormal,
		TotalCost:      &cost,
		Photos: []PhotoPayload{
			{FileName: "before-1.jpg", FileSize: 1024, MimeType: "image/jpeg", PhotoType: PhotoBefore},
		},
	}
}

func TestValidatePayload_OK(t *testing.T) {
	require.NoError(t, ValidatePayload(validPayload()))
}

func TestValidatePayload_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *InterventionPayload)
		want   string
	}{
		{"missing localId", func(p *InterventionPayload) { p.LocalID = "" }, "localId: required"},
		{"bad client uuid", func(p *InterventionPayload) { p.ClientID = "client-1" }, "clientId: uuid"},
		{"bad status", func(p *InterventionPayload) { p.Status = "done" }, "status: oneof"},
		{"bad priority", func(p *InterventionPayload) { p.Priority = "asap" }, "priority: oneof"},
		{"negative cost", func(p *InterventionPayload) {
			neg := decimal.NewFromInt(-1)
			p.LaborCost = &neg
		}, "laborCost: gte"},
		{"photo mime", func(p *InterventionPayload) { p.Photos[0].MimeType = "image/gif" }, "photos[0].mimeType: oneof"},
		{"latitude range", func(p *InterventionPayload) {
			lat := 91.0
			p.Latitude = &lat
		}, "latitude: max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(p)
			err := ValidatePayload(p)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPhotoPayload_Key(t *testing.T) {
	assert.Equal(t, "path:queue/1/before/0", PhotoPayload{LocalPath: "queue/1/before/0", URL: "https://x"}.Key())
	assert.Equal(t, "url:https://cdn/x.jpg", PhotoPayload{URL: "https://cdn/x.jpg", FileName: "x.jpg"}.Key())
	assert.Equal(t, "name:x.jpg", PhotoPayload{FileName: "x.jpg"}.Key())
}

func TestBatchResponse_WireShape(t *testing.T) {
	resp := BatchResponse{
		Success: true,
		Data: BatchData{
			Success: []BatchSuccess{},
			Failed:  []BatchFailure{{LocalID: "l-2", Error: "boom"}},
		},
		Meta: BatchMeta{Total: 1, Failed: 1},
	}
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": true,
		"data": {"success": [], "failed": [{"localId": "l-2", "error": "boom"}]},
		"meta": {"total": 1, "succeeded": 0, "failed": 1}
	}`, string(b))
}
