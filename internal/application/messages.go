package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
)

// Inbound message types.
const (
	MessageLocation = "location"
	MessageStartNav = "start_nav"
	MessageStopNav  = "stop_nav"
)

// InboundMessage is the envelope of every client message. Which fields are
// required depends on Type.
type InboundMessage struct {
	Type     string   `json:"type"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	StartLat *float64 `json:"start_lat"`
	StartLng *float64 `json:"start_lng"`
	DestLat  *float64 `json:"dest_lat"`
	DestLng  *float64 `json:"dest_lng"`
}

// LocationRequest is a validated location sample.
type LocationRequest struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lng *float64 `json:"lng" validate:"required,longitude"`
}

// StartNavRequest is a validated navigation start. The origin comes from
// lat/lng, falling back to start_lat/start_lng.
type StartNavRequest struct {
	OriginLat *float64 `json:"lat" validate:"required,latitude"`
	OriginLng *float64 `json:"lng" validate:"required,longitude"`
	DestLat   *float64 `json:"dest_lat" validate:"required,latitude"`
	DestLng   *float64 `json:"dest_lng" validate:"required,longitude"`
}

// Point returns the sample as a coordinate.
func (r LocationRequest) Point() geo.Coordinate {
	return geo.NewCoordinate(*r.Lat, *r.Lng)
}

// Origin returns the start coordinate.
func (r StartNavRequest) Origin() geo.Coordinate {
	return geo.NewCoordinate(*r.OriginLat, *r.OriginLng)
}

// Destination returns the destination coordinate.
func (r StartNavRequest) Destination() geo.Coordinate {
	return geo.NewCoordinate(*r.DestLat, *r.DestLng)
}

// MessageValidator decodes and validates inbound messages.
type MessageValidator struct {
	validate *validator.Validate
}

// NewMessageValidator creates a MessageValidator that reports fields by
// their JSON names.
func NewMessageValidator() *MessageValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &MessageValidator{validate: v}
}

// Decode parses raw into an envelope. Malformed JSON and non-numeric
// coordinates are validation errors.
func (m *MessageValidator) Decode(raw []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return InboundMessage{}, navigation.NewValidationError(typeErr.Field + " must be a number")
		}
		return InboundMessage{}, navigation.NewValidationError("invalid JSON")
	}
	return msg, nil
}

// Location validates msg as a location sample.
func (m *MessageValidator) Location(msg InboundMessage) (LocationRequest, error) {
	req := LocationRequest{Lat: msg.Lat, Lng: msg.Lng}
	return req, m.check(req)
}

// StartNav validates msg as a navigation start.
func (m *MessageValidator) StartNav(msg InboundMessage) (StartNavRequest, error) {
	req := StartNavRequest{
		OriginLat: firstNonNil(msg.Lat, msg.StartLat),
		OriginLng: firstNonNil(msg.Lng, msg.StartLng),
		DestLat:   msg.DestLat,
		DestLng:   msg.DestLng,
	}
	return req, m.check(req)
}

func (m *MessageValidator) check(v any) error {
	err := m.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return navigation.NewValidationError(err.Error())
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fe.Field()+" is required")
		default:
			problems = append(problems, fmt.Sprintf("%s must be a valid %s", fe.Field(), fe.Tag()))
		}
	}
	return navigation.NewValidationError(strings.Join(problems, "; "))
}

func firstNonNil(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
