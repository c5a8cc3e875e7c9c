package models

import "fmt"

// Timeframe represents candle resolution buckets understood by the detector.
type Timeframe string

const (
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
)

var timeframes = []Timeframe{TF5m, TF15m, TF1h, TF4h}

// Timeframes returns every supported timeframe, shortest first.
func Timeframes() []Timeframe {
	out := make([]Timeframe, len(timeframes))
	copy(out, timeframes)
	return out
}

// Label is used both as the detector interval argument and the UI tab label.
func (tf Timeframe) Label() string { return string(tf) }

func (tf Timeframe) String() string { return string(tf) }

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF5m, TF15m, TF1h, TF4h:
		return true
	default:
		return false
	}
}

// ParseTimeframe converts a raw label to a supported timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !IsValidTimeframe(tf) {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}
