package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDateInput = errors.New("invalid date input")
	ErrDetectionFailed  = errors.New("detection failed")
	ErrArtifactStore    = errors.New("artifact store failure")
	ErrCandlesMissing   = errors.New("candle data missing")
)

// DetectionError describes a failed detector invocation for one pair.
// Output holds whatever the detector printed before failing; it is
// diagnostic only and never treated as levels.
type DetectionError struct {
	Asset     Asset
	Timeframe Timeframe
	Output    []string
	Cause     error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detect %s/%s: %v", e.Asset, e.Timeframe, e.Cause)
}

// Unwrap lets errors.Is match both ErrDetectionFailed and the cause.
func (e *DetectionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrDetectionFailed}
	}
	return []error{ErrDetectionFailed, e.Cause}
}

// NewDetectionError builds a DetectionError for the query's pair.
func NewDetectionError(q ZoneQuery, output []string, cause error) *DetectionError {
	return &DetectionError{
		Asset:     q.Asset,
		Timeframe: q.Timeframe,
		Output:    output,
		Cause:     cause,
	}
}
