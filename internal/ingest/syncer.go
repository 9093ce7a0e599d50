package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Syncer forwards an accepted fix to the presence backend.
type Syncer interface {
	SyncLocation(ctx context.Context, fix Fix) error
}

// HTTPSyncer posts fixes to the service's POST /location endpoint.
type HTTPSyncer struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPSyncer constructs an HTTPSyncer. token is the bearer token of the
// user whose location is being synced.
func NewHTTPSyncer(baseURL, token string) *HTTPSyncer {
	return &HTTPSyncer{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type locationPayload struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// SyncLocation performs the POST. Any non-2xx response is an error; the
// controller treats all errors as retry-on-next-fix.
func (s *HTTPSyncer) SyncLocation(ctx context.Context, fix Fix) error {
	body, err := json.Marshal(locationPayload{
		Latitude:       fix.Latitude,
		Longitude:      fix.Longitude,
		AccuracyMeters: fix.AccuracyMeters,
		RecordedAt:     fix.Timestamp,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/location", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("location sync: unexpected status %d", resp.StatusCode)
	}
	return nil
}
