package model

import (
	"math"
	"net/mail"
	"strings"

	"github.com/erazemk/ecoleta/internal/apperr"
)

// Point is a physical collection location.
type Point struct {
	ID        int64   `json:"id"`
	Image     string  `json:"image"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Whatsapp  string  `json:"whatsapp"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	UF        string  `json:"uf"`

	// Item IDs offered by the point. Only populated by single-point reads and creation.
	Items []int64 `json:"items,omitempty"`
}

// NewPoint holds the input for creating a point. Image is the stored filename
// of an already persisted upload.
type NewPoint struct {
	Image     string
	Name      string
	Email     string
	Whatsapp  string
	Latitude  float64
	Longitude float64
	City      string
	UF        string
	Items     []int64
}

// Normalize trims text fields and removes repeated item IDs, keeping first
// occurrence order.
func (p NewPoint) Normalize() NewPoint {
	p.Image = strings.TrimSpace(p.Image)
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	p.Whatsapp = strings.TrimSpace(p.Whatsapp)
	p.City = strings.TrimSpace(p.City)
	p.UF = strings.TrimSpace(p.UF)
	p.Items = UniqueIDs(p.Items)
	return p
}

// Validate checks every required field and returns a validation error listing
// all failures, or nil.
func (p NewPoint) Validate() error {
	fields := p.FieldErrors()
	if len(fields) > 0 {
		return apperr.Validation(fields...)
	}
	return nil
}

// FieldErrors returns the per-field validation failures of p.
func (p NewPoint) FieldErrors() []apperr.FieldError {
	var fields []apperr.FieldError
	required := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			fields = append(fields, apperr.FieldError{Field: field, Message: "is required"})
		}
	}

	required("name", p.Name)
	required("email", p.Email)
	if strings.TrimSpace(p.Email) != "" && !validEmail(p.Email) {
		fields = append(fields, apperr.FieldError{Field: "email", Message: "must be a valid email address"})
	}
	required("whatsapp", p.Whatsapp)
	if !finite(p.Latitude) {
		fields = append(fields, apperr.FieldError{Field: "latitude", Message: "must be a finite number"})
	}
	if !finite(p.Longitude) {
		fields = append(fields, apperr.FieldError{Field: "longitude", Message: "must be a finite number"})
	}
	required("city", p.City)
	required("uf", p.UF)
	if len(p.Items) == 0 {
		fields = append(fields, apperr.FieldError{Field: "items", Message: "must contain at least one item"})
	}
	for _, id := range p.Items {
		if id <= 0 {
			fields = append(fields, apperr.FieldError{Field: "items", Message: "must contain only positive ids"})
			break
		}
	}
	required("image", p.Image)

	return fields
}

// PointFilter selects points for discovery. Empty City or UF match every
// value; an empty Items set applies no item constraint.
type PointFilter struct {
	City  string
	UF    string
	Items []int64
}

// UniqueIDs returns ids without repeats, in first occurrence order.
func UniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	return err == nil && addr.Address == strings.TrimSpace(s)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
