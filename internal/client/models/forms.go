package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/common"
)

// Form keys holding before/after photos.
const (
	FieldPhotosBefore = "photosBefore"
	FieldPhotosAfter  = "photosAfter"
)

// CommonForm holds the fields every prestation shares.
type CommonForm struct {
	ClientID        string     `mapstructure:"clientId" validate:"required,uuid"`
	VehicleID       string     `mapstructure:"vehicleId" validate:"required,uuid"`
	TypeID          string     `mapstructure:"typeId" validate:"required,uuid"`
	Title           string     `mapstructure:"title" validate:"max=255"`
	Description     string     `mapstructure:"description" validate:"max=5000"`
	Priority        string     `mapstructure:"priority" validate:"omitempty,oneof=low normal high urgent"`
	ScheduledAt     *time.Time `mapstructure:"scheduledAt"`
	StartedAt       *time.Time `mapstructure:"startedAt"`
	Location        string     `mapstructure:"location" validate:"max=255"`
	Latitude        *float64   `mapstructure:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude       *float64   `mapstructure:"longitude" validate:"omitempty,min=-180,max=180"`
	Mileage         *int64     `mapstructure:"mileage" validate:"omitempty,gte=0"`
	AgentSignature  string     `mapstructure:"agentSignature"`
	ClientSignature string     `mapstructure:"clientSignature"`
	Notes           string     `mapstructure:"notes" validate:"max=5000"`
}

// WashForm is the wash prestation.
type WashForm struct {
	CommonForm `mapstructure:",squash"`

	WashType  string           `mapstructure:"washType" validate:"required,oneof=exterior interior full"`
	Products  string           `mapstructure:"products" validate:"max=500"`
	LaborCost *decimal.Decimal `mapstructure:"laborCost" validate:"omitempty,gte=0"`
	PartsCost *decimal.Decimal `mapstructure:"partsCost" validate:"omitempty,gte=0"`
}

// FuelDeliveryForm is a fuel delivery into a vehicle.
type FuelDeliveryForm struct {
	CommonForm `mapstructure:",squash"`

	FuelType     string           `mapstructure:"fuelType" validate:"required,oneof=diesel gasoline adblue"`
	FuelQuantity decimal.Decimal  `mapstructure:"fuelQuantity" validate:"gt=0"`
	UnitPrice    *decimal.Decimal `mapstructure:"unitPrice" validate:"omitempty,gte=0"`
	LaborCost    *decimal.Decimal `mapstructure:"laborCost" validate:"omitempty,gte=0"`
}

// TankRefillForm is a refill of a fixed tank. Levels are percentages.
type TankRefillForm struct {
	CommonForm `mapstructure:",squash"`

	TankID       string           `mapstructure:"tankId" validate:"required,max=64"`
	FuelType     string           `mapstructure:"fuelType" validate:"required,oneof=diesel gasoline adblue"`
	FuelQuantity decimal.Decimal  `mapstructure:"fuelQuantity" validate:"gt=0"`
	LevelBefore  *decimal.Decimal `mapstructure:"levelBefore" validate:"omitempty,gte=0,lte=100"`
	LevelAfter   *decimal.Decimal `mapstructure:"levelAfter" validate:"omitempty,gte=0,lte=100"`
	UnitPrice    *decimal.Decimal `mapstructure:"unitPrice" validate:"omitempty,gte=0"`
}

// Form is implemented by every prestation variant.
type Form interface {
	Prestation() PrestationType
	// Payload builds the intervention payload keyed by localID.
	Payload(localID string) api.InterventionPayload
}

func (WashForm) Prestation() PrestationType         { return PrestationWash }
func (FuelDeliveryForm) Prestation() PrestationType { return PrestationFuelDelivery }
func (TankRefillForm) Prestation() PrestationType   { return PrestationTankRefill }

func (f WashForm) Payload(localID string) api.InterventionPayload {
	p := f.CommonForm.payload(localID, PrestationWash)
	p.LaborCost = f.LaborCost
	p.PartsCost = f.PartsCost
	p.TotalCost = sum(f.LaborCost, f.PartsCost)
	p.Details = map[string]any{"washType": f.WashType}
	if f.Products != "" {
		p.Details["products"] = f.Products
	}
	return p
}

func (f FuelDeliveryForm) Payload(localID string) api.InterventionPayload {
	p := f.CommonForm.payload(localID, PrestationFuelDelivery)
	qty := f.FuelQuantity
	p.FuelQuantity = &qty
	p.LaborCost = f.LaborCost
	p.PartsCost = lineCost(qty, f.UnitPrice)
	p.TotalCost = sum(p.LaborCost, p.PartsCost)
	p.Details = map[string]any{"fuelType": f.FuelType}
	if f.UnitPrice != nil {
		p.Details["unitPrice"] = f.UnitPrice.String()
	}
	return p
}

func (f TankRefillForm) Payload(localID string) api.InterventionPayload {
	p := f.CommonForm.payload(localID, PrestationTankRefill)
	qty := f.FuelQuantity
	p.FuelQuantity = &qty
	p.PartsCost = lineCost(qty, f.UnitPrice)
	p.TotalCost = sum(p.PartsCost)
	p.Details = map[string]any{"tankId": f.TankID, "fuelType": f.FuelType}
	if f.LevelBefore != nil {
		p.Details["levelBefore"] = f.LevelBefore.String()
	}
	if f.LevelAfter != nil {
		p.Details["levelAfter"] = f.LevelAfter.String()
	}
	return p
}

func (c CommonForm) payload(localID string, t PrestationType) api.InterventionPayload {
	title := c.Title
	if title == "" {
		title = defaultTitles[t]
	}
	return api.InterventionPayload{
		LocalID:         localID,
		ClientID:        c.ClientID,
		VehicleID:       c.VehicleID,
		TypeID:          c.TypeID,
		PrestationType:  string(t),
		Title:           title,
		Description:     c.Description,
		Status:          api.StatusCompleted,
		Priority:        c.Priority,
		ScheduledAt:     c.ScheduledAt,
		StartedAt:       c.StartedAt,
		Location:        c.Location,
		Latitude:        c.Latitude,
		Longitude:       c.Longitude,
		Mileage:         c.Mileage,
		AgentSignature:  c.AgentSignature,
		ClientSignature: c.ClientSignature,
		Notes:           c.Notes,
	}
}

var defaultTitles = map[PrestationType]string{
	PrestationWash:         "Wash",
	PrestationFuelDelivery: "Fuel delivery",
	PrestationTankRefill:   "Tank refill",
}

func lineCost(qty decimal.Decimal, unit *decimal.Decimal) *decimal.Decimal {
	if unit == nil {
		return nil
	}
	v := qty.Mul(*unit).Round(2)
	return &v
}

func sum(parts ...*decimal.Decimal) *decimal.Decimal {
	var total decimal.Decimal
	seen := false
	for _, p := range parts {
		if p != nil {
			total = total.Add(*p)
			seen = true
		}
	}
	if !seen {
		return nil
	}
	return &total
}

// DecodeForm turns generic form data into the typed variant for t and
// validates it. Validation failures wrap common.ErrValidation. Photo fields
// are ignored.
func DecodeForm(t PrestationType, fd FormData) (Form, error) {
	var target Form
	switch t {
	case PrestationWash:
		target = &WashForm{}
	case PrestationFuelDelivery:
		target = &FuelDeliveryForm{}
	case PrestationTankRefill:
		target = &TankRefillForm{}
	default:
		return nil, fmt.Errorf("%w: unknown prestation type %q", common.ErrValidation, t)
	}

	input := make(map[string]any, len(fd))
	for k, v := range fd {
		if k == FieldPhotosBefore || k == FieldPhotosAfter {
			continue
		}
		input[k] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			decimalHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
		Result:           target,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(input); err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrValidation, err.Error())
	}

	if err := api.Validator().Struct(target); err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrValidation, api.FormatValidationError(err).Error())
	}

	switch f := target.(type) {
	case *WashForm:
		return *f, nil
	case *FuelDeliveryForm:
		return *f, nil
	case *TankRefillForm:
		return *f, nil
	}
	return nil, errors.New("unreachable")
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func decimalHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}
	switch v := data.(type) {
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		if strings.TrimSpace(v) == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	}
	return data, nil
}
