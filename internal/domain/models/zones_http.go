package models

import (
	"time"

	"KeyZones/pkg/util"
)

// Requests and views for the zones HTTP endpoints.

type RefreshRequest struct {
	StartDate string `query:"start_date" json:"start_date" default:"None" validate:"max=32"`
	EndDate   string `query:"end_date" json:"end_date" default:"None" validate:"max=32"`
	Wait      bool   `query:"wait" json:"wait"`
}

type PairRequest struct {
	Asset     string `param:"asset" validate:"required,oneof=BTC ETH SOL"`
	Timeframe string `param:"timeframe" validate:"required,oneof=5m 15m 1h 4h"`
}

type LevelView struct {
	Raw       string   `json:"raw"`
	FirstSeen string   `json:"first_seen,omitempty"`
	Start     *float64 `json:"start,omitempty"`
	End       *float64 `json:"end,omitempty"`
	Reversals *int     `json:"reversals,omitempty"`
}

type ZoneResultView struct {
	Asset        string      `json:"asset"`
	Timeframe    string      `json:"timeframe"`
	Levels       []LevelView `json:"levels"`
	ArtifactPath string      `json:"artifact_path,omitempty"`
	Failed       bool        `json:"failed"`
	Error        string      `json:"error,omitempty"`
	Diagnostics  []string    `json:"diagnostics,omitempty"`
	DurationMS   int64       `json:"duration_ms"`
}

type MatrixView struct {
	RequestID  uint64                               `json:"request_id"`
	TraceID    string                               `json:"trace_id,omitempty"`
	StartDate  string                               `json:"start_date"`
	EndDate    string                               `json:"end_date"`
	Warnings   []string                             `json:"warnings,omitempty"`
	StartedAt  time.Time                            `json:"started_at"`
	FinishedAt time.Time                            `json:"finished_at"`
	Total      int                                  `json:"total"`
	Failed     int                                  `json:"failed"`
	Results    map[string]map[string]ZoneResultView `json:"results"`
}

type CatalogView struct {
	Assets                      []string `json:"assets"`
	Timeframes                  []string `json:"timeframes"`
	DefaultZoneSizePercent      float64  `json:"default_zone_size_percent"`
	DefaultMergeDistancePercent float64  `json:"default_merge_distance_percent"`
}

// View converts a result for transport.
func (r ZoneResult) View() ZoneResultView {
	v := ZoneResultView{
		Asset:        r.Asset.Name(),
		Timeframe:    r.Timeframe.Label(),
		Levels:       make([]LevelView, 0, len(r.Levels)),
		ArtifactPath: r.ArtifactPath,
		Failed:       r.Failed,
		Diagnostics:  r.Diagnostics,
		DurationMS:   r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	for _, line := range r.Levels {
		lv := LevelView{Raw: line}
		if d, ok := ParseLevel(line); ok {
			start, end, rev := d.Start, d.End, d.Reversals
			lv.FirstSeen = d.FirstSeen.Format(util.DefaultDateLayout)
			lv.Start, lv.End, lv.Reversals = &start, &end, &rev
		}
		v.Levels = append(v.Levels, lv)
	}
	return v
}

// View converts the matrix for transport.
func (m *ResultMatrix) View() MatrixView {
	v := MatrixView{
		RequestID:  m.RequestID,
		TraceID:    m.TraceID,
		StartDate:  m.Window.StartArg(util.DefaultDateLayout),
		EndDate:    m.Window.EndArg(util.DefaultDateLayout),
		Warnings:   m.Warnings,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
		Results:    make(map[string]map[string]ZoneResultView, len(m.Results)),
	}
	m.Each(func(r ZoneResult) {
		row, ok := v.Results[r.Asset.Name()]
		if !ok {
			row = make(map[string]ZoneResultView)
			v.Results[r.Asset.Name()] = row
		}
		row[r.Timeframe.Label()] = r.View()
		v.Total++
		if r.Failed {
			v.Failed++
		}
	})
	return v
}

// Catalog describes the fixed enumerations and parameter defaults.
func Catalog() CatalogView {
	v := CatalogView{
		DefaultZoneSizePercent:      DefaultZoneSizePercent,
		DefaultMergeDistancePercent: DefaultMergeDistancePercent,
	}
	for _, a := range assets {
		v.Assets = append(v.Assets, a.Name())
	}
	for _, tf := range timeframes {
		v.Timeframes = append(v.Timeframes, tf.Label())
	}
	return v
}
