package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// PrestationType is the kind of work an intervention records.
type PrestationType string

const (
	PrestationWash         PrestationType = "wash"
	PrestationFuelDelivery PrestationType = "fuel_delivery"
	PrestationTankRefill   PrestationType = "tank_refill"
)

// PrestationTypes lists the accepted types in display order.
var PrestationTypes = []PrestationType{PrestationWash, PrestationFuelDelivery, PrestationTankRefill}

func (t PrestationType) Valid() bool {
	switch t {
	case PrestationWash, PrestationFuelDelivery, PrestationTankRefill:
		return true
	}
	return false
}

// ParsePrestationType accepts the canonical names plus "fuel-delivery" and
// "tank-refill".
func ParsePrestationType(s string) (PrestationType, error) {
	switch s {
	case "fuel-delivery":
		s = string(PrestationFuelDelivery)
	case "tank-refill":
		s = string(PrestationTankRefill)
	}
	t := PrestationType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown prestation type %q", s)
	}
	return t, nil
}

// File is raw photo content held by the form while it is being edited.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// PhotoDescriptor is the metadata-only stand-in persisted in a draft in
// place of a File. It has no content.
type PhotoDescriptor struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Describe returns the descriptor persisted for f.
func (f File) Describe() PhotoDescriptor {
	return PhotoDescriptor{Name: f.Name, Size: int64(len(f.Data)), Type: f.MimeType}
}

// FormData is the generic wizard state. Values are scalars or
// []PhotoDescriptor once persisted.
type FormData map[string]any

// Draft is one in-progress intervention form.
type Draft struct {
	ID             string
	TypePrestation PrestationType
	FormData       FormData
	CurrentStep    int
	UpdatedAt      time.Time
}

const photosMarker = "$photos"

// EncodeFormData serializes fd for storage. Descriptor lists are wrapped in
// a marker object so DecodeFormData can restore their type. Raw File values
// are refused.
func EncodeFormData(fd FormData) ([]byte, error) {
	out := make(map[string]any, len(fd))
	for k, v := range fd {
		switch val := v.(type) {
		case []File, File, *File, []byte:
			return nil, fmt.Errorf("field %q holds raw file content", k)
		case []PhotoDescriptor:
			out[k] = map[string]any{photosMarker: val}
		default:
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// DecodeFormData is the inverse of EncodeFormData. Numbers are kept as
// json.Number.
func DecodeFormData(b []byte) (FormData, error) {
	fd := FormData{}
	if len(b) == 0 {
		return fd, nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode form data: %w", err)
	}

	for k, msg := range raw {
		var wrapped map[string][]PhotoDescriptor
		if json.Unmarshal(msg, &wrapped) == nil && len(wrapped) == 1 {
			if photos, ok := wrapped[photosMarker]; ok {
				if photos == nil {
					photos = []PhotoDescriptor{}
				}
				fd[k] = photos
				continue
			}
		}

		d := json.NewDecoder(bytes.NewReader(msg))
		d.UseNumber()
		var v any
		if err := d.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode form field %q: %w", k, err)
		}
		fd[k] = v
	}
	return fd, nil
}
