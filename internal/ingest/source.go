package ingest

import (
	"context"
	"time"
)

// Fix is a single sensor-reported position reading.
type Fix struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
	Timestamp      time.Time
}

// PositionSource abstracts the platform geolocation capability so the
// throttling logic is unit-testable without a real sensor.
type PositionSource interface {
	// CurrentPosition returns one fresh fix.
	CurrentPosition(ctx context.Context) (Fix, error)
	// WatchPosition streams fixes at sensor cadence until ctx is done.
	WatchPosition(ctx context.Context) (<-chan Fix, error)
}
