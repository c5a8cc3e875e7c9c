package models

import (
	"regexp"
	"strconv"
	"time"
)

// LevelDescriptor is a structured view of a detector level line such as
// "01/03/2024: $100.0 -> $103.0 | Reversals: 4".
type LevelDescriptor struct {
	FirstSeen time.Time
	Start     float64
	End       float64
	Reversals int
}

var levelLine = regexp.MustCompile(`^(\d{2}/\d{2}/\d{4}): \$(-?[\d.]+) -> \$(-?[\d.]+) \| Reversals: (\d+)$`)

// ParseLevel parses a level line. ok is false when the line does not follow
// the detector format; the raw line stays authoritative either way.
func ParseLevel(line string) (LevelDescriptor, bool) {
	m := levelLine.FindStringSubmatch(line)
	if m == nil {
		return LevelDescriptor{}, false
	}
	first, err := time.ParseInLocation("02/01/2006", m[1], time.UTC)
	if err != nil {
		return LevelDescriptor{}, false
	}
	start, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return LevelDescriptor{}, false
	}
	end, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return LevelDescriptor{}, false
	}
	rev, err := strconv.Atoi(m[4])
	if err != nil {
		return LevelDescriptor{}, false
	}
	return LevelDescriptor{FirstSeen: first, Start: start, End: end, Reversals: rev}, true
}
