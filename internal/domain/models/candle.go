package models

import "time"

// Candle represents an OHLCV record as read from the candle store.
type Candle struct {
	OpenTime  time.Time
	CloseTime time.Time
	Symbol    string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}
