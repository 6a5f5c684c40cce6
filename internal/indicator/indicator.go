// Package indicator provides technical indicator calculations over close
// price series.
//
// All functions are pure: they read the input slice, never modify it, and
// return an error when the series is too short for a meaningful value.
package indicator

import "errors"

var (
	// ErrInsufficientData is returned when a series is shorter than an
	// indicator's lookback.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidPeriod is returned for non-positive periods.
	ErrInvalidPeriod = errors.New("invalid period")
)
