package models

import "time"

// BatchCompletedEvent is emitted for every matrix accepted as the latest.
type BatchCompletedEvent struct {
	EventID    string                               `json:"event_id"`
	EventType  string                               `json:"event_type"`
	RequestID  uint64                               `json:"request_id"`
	TraceID    string                               `json:"trace_id,omitempty"`
	StartDate  string                               `json:"start_date"`
	EndDate    string                               `json:"end_date"`
	Total      int                                  `json:"total"`
	Failed     int                                  `json:"failed"`
	Results    map[string]map[string]ZoneResultView `json:"results"`
	FinishedAt time.Time                            `json:"finished_at"`
	EmittedAt  time.Time                            `json:"emitted_at"`
}

const EventTypeBatchCompleted = "keyzones.batch_completed"

// RefreshCommand asks a running service to start a batch.
type RefreshCommand struct {
	StartDate string `json:"start_date" default:"None" validate:"max=32"`
	EndDate   string `json:"end_date" default:"None" validate:"max=32"`
}
