package models

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultZoneSizePercent      = 3.0
	DefaultMergeDistancePercent = 2.0
)

// ZoneQuery is one detector invocation for a single (asset, timeframe) pair.
type ZoneQuery struct {
	Asset                Asset
	Timeframe            Timeframe
	Window               DateWindow
	ZoneSizePercent      float64 // width of a candidate band relative to price
	MergeDistancePercent float64 // bands closer than this are merged
}

// NewZoneQuery builds a query with default percentages.
func NewZoneQuery(a Asset, tf Timeframe, w DateWindow) ZoneQuery {
	return ZoneQuery{
		Asset:                a,
		Timeframe:            tf,
		Window:               w,
		ZoneSizePercent:      DefaultZoneSizePercent,
		MergeDistancePercent: DefaultMergeDistancePercent,
	}
}

// Validate checks enums, window ordering and percent ranges (0, 100].
func (q ZoneQuery) Validate() error {
	if !q.Asset.IsValid() {
		return fmt.Errorf("unknown asset %q", q.Asset)
	}
	if !IsValidTimeframe(q.Timeframe) {
		return fmt.Errorf("unknown timeframe %q", q.Timeframe)
	}
	if err := q.Window.Validate(); err != nil {
		return err
	}
	if q.ZoneSizePercent <= 0 || q.ZoneSizePercent > 100 {
		return fmt.Errorf("zone size percent %v out of range (0, 100]", q.ZoneSizePercent)
	}
	if q.MergeDistancePercent <= 0 || q.MergeDistancePercent > 100 {
		return fmt.Errorf("merge distance percent %v out of range (0, 100]", q.MergeDistancePercent)
	}
	return nil
}

// ZoneResult is the outcome for one pair. Levels keep detector order.
type ZoneResult struct {
	Asset        Asset
	Timeframe    Timeframe
	Levels       []string
	ArtifactPath string
	Failed       bool
	Err          error
	Diagnostics  []string
	Duration     time.Duration
}

// FailedResult marks the query's pair failed with err.
func FailedResult(q ZoneQuery, err error) ZoneResult {
	r := ZoneResult{Asset: q.Asset, Timeframe: q.Timeframe, Failed: true, Err: err}
	var de *DetectionError
	if errors.As(err, &de) {
		r.Diagnostics = de.Output
	}
	return r
}

// ResultMatrix maps every asset and timeframe to its result for one request.
type ResultMatrix struct {
	RequestID  uint64
	TraceID    string
	Window     DateWindow
	Warnings   []string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    map[Asset]map[Timeframe]ZoneResult
}

// NewResultMatrix creates an empty matrix for request id.
func NewResultMatrix(id uint64, w DateWindow) *ResultMatrix {
	return &ResultMatrix{
		RequestID: id,
		Window:    w,
		Results:   make(map[Asset]map[Timeframe]ZoneResult, len(assets)),
	}
}

// Put stores r under its pair, replacing any previous entry.
func (m *ResultMatrix) Put(r ZoneResult) {
	row, ok := m.Results[r.Asset]
	if !ok {
		row = make(map[Timeframe]ZoneResult, len(timeframes))
		m.Results[r.Asset] = row
	}
	row[r.Timeframe] = r
}

// Get returns the result for a pair.
func (m *ResultMatrix) Get(a Asset, tf Timeframe) (ZoneResult, bool) {
	row, ok := m.Results[a]
	if !ok {
		return ZoneResult{}, false
	}
	r, ok := row[tf]
	return r, ok
}

// Len counts entries across all assets.
func (m *ResultMatrix) Len() int {
	n := 0
	for _, row := range m.Results {
		n += len(row)
	}
	return n
}

// FailedCount counts failed entries.
func (m *ResultMatrix) FailedCount() int {
	n := 0
	m.Each(func(r ZoneResult) {
		if r.Failed {
			n++
		}
	})
	return n
}

// Each visits entries asset-major in catalog order.
func (m *ResultMatrix) Each(fn func(ZoneResult)) {
	for _, a := range assets {
		for _, tf := range timeframes {
			if r, ok := m.Get(a, tf); ok {
				fn(r)
			}
		}
	}
}
