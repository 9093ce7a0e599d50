package proximity

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proximity-service/internal/broadcast"
	"proximity-service/internal/geo"
	"proximity-service/internal/models"
	"proximity-service/internal/presence"
)

func northOf(lat, lng, meters float64) (float64, float64) {
	return lat + (meters/geo.EarthRadiusMeters)*180/math.Pi, lng
}

func record(userID string, lat, lng float64) models.PresenceRecord {
	return models.PresenceRecord{UserID: userID, Latitude: lat, Longitude: lng, AccuracyMeters: 5, UpdatedAt: time.Now()}
}

func update(userID string, lat, lng float64) models.PresenceEvent {
	return models.PresenceEvent{Type: models.PresenceEventUpdate, Record: record(userID, lat, lng)}
}

func TestOverlapSeoulScenario(t *testing.T) {
	// A and B ~6m apart: both must see each other.
	a := NewDetector("a")
	a.UpdateSelf(record("a", 37.5665, 126.9780))
	a.Apply(update("b", 37.56655, 126.97805))

	b := NewDetector("b")
	b.UpdateSelf(record("b", 37.56655, 126.97805))
	b.Apply(update("a", 37.5665, 126.9780))

	assert.Equal(t, []string{"b"}, a.Overlapping())
	assert.Equal(t, []string{"a"}, b.Overlapping())
}

func TestOverlapSymmetry(t *testing.T) {
	lat, lng := 37.5665, 126.9780
	for _, meters := range []float64{0, 5, 19.99, 20.0, 20.01, 50} {
		otherLat, otherLng := northOf(lat, lng, meters)

		a := NewDetector("a")
		a.UpdateSelf(record("a", lat, lng))
		a.Apply(update("b", otherLat, otherLng))

		b := NewDetector("b")
		b.UpdateSelf(record("b", otherLat, otherLng))
		b.Apply(update("a", lat, lng))

		assert.Equal(t, a.Overlaps("b"), b.Overlaps("a"), "asymmetric at %.2fm", meters)
	}
}

func TestOverlapThresholdBoundary(t *testing.T) {
	lat, lng := 37.5665, 126.9780
	d := NewDetector("a")
	d.UpdateSelf(record("a", lat, lng))

	at20, _ := northOf(lat, lng, 20.0)
	d.Apply(update("b", at20, lng))
	assert.True(t, d.Overlaps("b"), "20.0m apart must overlap")

	at2001, _ := northOf(lat, lng, 20.01)
	d.Apply(update("b", at2001, lng))
	assert.False(t, d.Overlaps("b"), "20.01m apart must not overlap")
}

func TestNoOverlapAtFiftyMeters(t *testing.T) {
	lat, lng := 37.5665, 126.9780
	far, _ := northOf(lat, lng, 50)

	d := NewDetector("a")
	d.UpdateSelf(record("a", lat, lng))
	d.Apply(update("b", far, lng))

	assert.Empty(t, d.Overlapping())
	assert.False(t, d.MatchNoticePending())
}

func TestUnknownSelfFailsClosed(t *testing.T) {
	d := NewDetector("a")
	d.Apply(update("b", 37.5665, 126.9780))
	assert.Empty(t, d.Overlapping())

	d.UpdateSelf(record("a", 37.5665, 126.9780))
	assert.Equal(t, []string{"b"}, d.Overlapping())

	d.ClearSelf()
	assert.Empty(t, d.Overlapping())
}

func TestRedundantRecomputationIsIdempotent(t *testing.T) {
	d := NewDetector("a")
	d.UpdateSelf(record("a", 37.5665, 126.9780))
	d.Apply(update("b", 37.56655, 126.97805))
	require.Equal(t, []string{"b"}, d.Overlapping())

	// Re-applying the same positions must not drop the only overlap.
	d.UpdateSelf(record("a", 37.5665, 126.9780))
	d.Apply(update("b", 37.56655, 126.97805))
	assert.Equal(t, []string{"b"}, d.Overlapping())
}

func TestMatchNoticeSuppressedOnFirstLoad(t *testing.T) {
	d := NewDetector("a")
	d.UpdateSelf(record("a", 37.5665, 126.9780))
	d.Apply(update("b", 37.56655, 126.97805))

	require.Equal(t, []string{"b"}, d.Overlapping())
	assert.False(t, d.MatchNoticePending(), "first-ever overlap must not signal")
}

func TestMatchNoticeFiresOnAddition(t *testing.T) {
	now := time.Now()
	current := now
	d := NewDetector("a", WithClock(func() time.Time { return current }))

	d.UpdateSelf(record("a", 37.5665, 126.9780))
	d.Apply(update("b", 37.56655, 126.97805))
	require.False(t, d.MatchNoticePending())

	d.Apply(update("c", 37.56652, 126.97802))
	assert.True(t, d.MatchNoticePending())

	// Self-clears after the window.
	current = now.Add(DefaultNoticeWindow + time.Millisecond)
	assert.False(t, d.MatchNoticePending())
}

func TestMatchNoticeSuppressedOnRemoval(t *testing.T) {
	d := NewDetector("a")
	d.UpdateSelf(record("a", 37.5665, 126.9780))
	d.Apply(update("b", 37.56655, 126.97805))
	d.Apply(update("c", 37.56652, 126.97802))

	d.Apply(models.PresenceEvent{Type: models.PresenceEventRemove, Record: models.PresenceRecord{UserID: "c", UpdatedAt: time.Now()}})
	require.Equal(t, []string{"b"}, d.Overlapping())

	// Let any raised notice lapse, then remove+return: re-entry after a
	// removal that shrank the set back still counts as an addition.
	far, _ := northOf(37.5665, 126.9780, 100)
	d.Apply(update("c", far, 126.9780))
	assert.Equal(t, []string{"b"}, d.Overlapping())
}

func TestTrackerDrainsSubscription(t *testing.T) {
	store := presence.NewStore()
	now := time.Now()
	store.Upsert(record("b", 37.56655, 126.97805))

	b := broadcast.New(store, 8)
	sub := b.Subscribe("a", broadcast.Interest{})

	d := NewDetector("a")
	d.UpdateSelf(record("a", 37.5665, 126.9780))

	tracker := Track(d, sub)

	b.Publish(models.PresenceEvent{Type: models.PresenceEventUpdate, Record: models.PresenceRecord{
		UserID: "c", Latitude: 37.56652, Longitude: 126.97802, AccuracyMeters: 5, UpdatedAt: now.Add(time.Second),
	}})
	b.Unsubscribe(sub)
	<-tracker.Done()

	assert.ElementsMatch(t, []string{"b", "c"}, d.Overlapping())
	assert.True(t, d.MatchNoticePending(), "c arrived after b was already overlapping")
}
