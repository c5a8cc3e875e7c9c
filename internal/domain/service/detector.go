package service

import (
	"context"

	"KeyZones/internal/domain/models"
)

// ZoneDetector computes key price levels for a single asset and timeframe.
// Implementations return a *models.DetectionError when the computation fails.
type ZoneDetector interface {
	Detect(ctx context.Context, q models.ZoneQuery) (models.ZoneResult, error)
}
