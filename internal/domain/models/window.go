package models

import (
	"fmt"
	"time"

	"KeyZones/pkg/util"
)

// DateWindow bounds the candles a detector looks at. A zero bound is
// unbounded.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// NewDateWindow builds a window, rejecting a concrete start after a concrete end.
func NewDateWindow(start, end time.Time) (DateWindow, error) {
	w := DateWindow{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return DateWindow{}, err
	}
	return w, nil
}

// ParseDateWindow builds a window from user text. Malformed bounds degrade to
// unbounded; each degraded bound produces a warning. Ordering is not checked
// here, call Validate on the result.
func ParseDateWindow(startText, endText, layout string) (DateWindow, []string) {
	var (
		w        DateWindow
		warnings []string
	)
	start, err := util.ParseDateBound(startText, layout)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("%v: start date %q treated as unbounded", ErrInvalidDateInput, startText))
	}
	end, err := util.ParseDateBound(endText, layout)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("%v: end date %q treated as unbounded", ErrInvalidDateInput, endText))
	}
	w.Start, w.End = start, end
	return w, warnings
}

// Validate enforces start <= end when both bounds are concrete.
func (w DateWindow) Validate() error {
	if !w.Start.IsZero() && !w.End.IsZero() && w.Start.After(w.End) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidDateInput,
			w.Start.Format(util.DefaultDateLayout), w.End.Format(util.DefaultDateLayout))
	}
	return nil
}

// StartArg renders the start bound for the detector command line.
func (w DateWindow) StartArg(layout string) string { return util.FormatDateBound(w.Start, layout) }

// EndArg renders the end bound for the detector command line.
func (w DateWindow) EndArg(layout string) string { return util.FormatDateBound(w.End, layout) }

func (w DateWindow) String() string {
	return w.StartArg(util.DefaultDateLayout) + ".." + w.EndArg(util.DefaultDateLayout)
}
