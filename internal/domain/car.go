// Package domain defines the core interfaces and types for TrueMeter.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultOfferType is assumed when a request omits the offer type.
const DefaultOfferType = "Used"

// CarRecord is the immutable input to a fraud check. It is created once per
// request from the API payload and never mutated afterwards.
type CarRecord struct {
	Make       string `json:"make"`
	Model      string `json:"model"`
	Year       int    `json:"year"`
	ReportedKm int    `json:"reported_km"`
	FuelType   string `json:"fuelType"`
	Gearbox    string `json:"gearbox"`
	Horsepower int    `json:"horsepower"`
	Price      int    `json:"price"`
	OfferType  string `json:"offerType"`
}

// Normalize fills in defaulted fields. Called once at the boundary, before
// validation.
func (c *CarRecord) Normalize() {
	if c.OfferType == "" {
		c.OfferType = DefaultOfferType
	}
}

// Validate checks the field constraints of the scoring contract. Violations
// are reported as ErrInvalidInput so the boundary can reject them before the
// pipeline runs.
func (c *CarRecord) Validate() error {
	if c.Make == "" {
		return fmt.Errorf("%w: make is required", ErrInvalidInput)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidInput)
	}
	if c.Year < 1900 || c.Year > 2100 {
		return fmt.Errorf("%w: year must be between 1900 and 2100", ErrInvalidInput)
	}
	if c.ReportedKm < 0 {
		return fmt.Errorf("%w: reported_km must be non-negative", ErrInvalidInput)
	}
	if c.FuelType == "" {
		return fmt.Errorf("%w: fuelType is required", ErrInvalidInput)
	}
	if c.Gearbox == "" {
		return fmt.Errorf("%w: gearbox is required", ErrInvalidInput)
	}
	if c.Horsepower < 0 {
		return fmt.Errorf("%w: horsepower must be non-negative", ErrInvalidInput)
	}
	if c.Price < 0 {
		return fmt.Errorf("%w: price must be non-negative", ErrInvalidInput)
	}
	return nil
}

// Age returns the vehicle age in years relative to now, floored at 1.
// The floor keeps downstream divisions and log transforms away from zero
// even when the manufacture year is in the future.
func (c *CarRecord) Age(now time.Time) int {
	age := now.Year() - c.Year
	if age < 1 {
		age = 1
	}
	return age
}

// Fingerprint returns a stable content hash of the record. Two identical
// cars produce the same fingerprint, which keys the result cache and the
// recheck counters.
func (c *CarRecord) Fingerprint() string {
	canonical := fmt.Sprintf("%s|%s|%d|%d|%s|%s|%d|%d|%s",
		c.Make, c.Model, c.Year, c.ReportedKm,
		c.FuelType, c.Gearbox, c.Horsepower, c.Price, c.OfferType,
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
