package proximity

import (
	"sort"
	"sync"
	"time"

	"proximity-service/internal/geo"
	"proximity-service/internal/models"
)

// DefaultUserRadiusM is the per-user display radius. Two users overlap when
// their circles touch, i.e. within twice this distance.
const DefaultUserRadiusM = 10.0

// DefaultNoticeWindow is how long the new-match signal stays raised.
const DefaultNoticeWindow = 5 * time.Second

// Detector derives, for one viewer, the live set of users within overlap
// range. It is event-driven: the overlap set is recomputed whenever the
// viewer's own record or a tracked record changes, never on a timer.
//
// An unknown own position fails closed: the overlap set is empty and no
// match signal can fire.
type Detector struct {
	viewerID   string
	thresholdM float64
	window     time.Duration
	now        func() time.Time

	mu          sync.Mutex
	self        *models.PresenceRecord
	others      map[string]models.PresenceRecord
	overlap     map[string]struct{}
	noticeUntil time.Time
}

// Option tweaks a Detector.
type Option func(*Detector)

// WithThreshold overrides the overlap distance in meters.
func WithThreshold(meters float64) Option {
	return func(d *Detector) { d.thresholdM = meters }
}

// WithNoticeWindow overrides how long the new-match signal stays up.
func WithNoticeWindow(window time.Duration) Option {
	return func(d *Detector) { d.window = window }
}

// WithClock injects the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// NewDetector creates a Detector for the viewer.
func NewDetector(viewerID string, opts ...Option) *Detector {
	d := &Detector{
		viewerID:   viewerID,
		thresholdM: 2 * DefaultUserRadiusM,
		window:     DefaultNoticeWindow,
		now:        time.Now,
		others:     make(map[string]models.PresenceRecord),
		overlap:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// UpdateSelf sets the viewer's own position and recomputes.
func (d *Detector) UpdateSelf(rec models.PresenceRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec.UserID = d.viewerID
	d.self = &rec
	d.recompute()
}

// ClearSelf forgets the viewer's position; the overlap set empties.
func (d *Detector) ClearSelf() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.self = nil
	d.recompute()
}

// Apply consumes one presence event for a tracked user and recomputes.
// Events for the viewer itself are ignored.
func (d *Detector) Apply(ev models.PresenceEvent) {
	if ev.Record.UserID == d.viewerID {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch ev.Type {
	case models.PresenceEventRemove:
		delete(d.others, ev.Record.UserID)
	default:
		d.others[ev.Record.UserID] = ev.Record
	}
	d.recompute()
}

// Overlapping returns the user ids currently within the overlap threshold,
// sorted for stable output.
func (d *Detector) Overlapping() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.overlap))
	for id := range d.overlap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Overlaps reports whether the given user is currently overlapping.
func (d *Detector) Overlaps(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.overlap[userID]
	return ok
}

// MatchNoticePending reports whether the one-shot "new nearby match" signal
// is currently raised. It self-clears after the notice window.
func (d *Detector) MatchNoticePending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now().Before(d.noticeUntil)
}

// recompute rebuilds the overlap set and raises the match signal when the
// set strictly grew with at least one new user and was non-empty before.
// First-ever loads and pure removals never signal. Callers hold d.mu.
func (d *Detector) recompute() {
	next := make(map[string]struct{})
	if d.self != nil {
		mine := geo.Point{Latitude: d.self.Latitude, Longitude: d.self.Longitude}
		for id, rec := range d.others {
			theirs := geo.Point{Latitude: rec.Latitude, Longitude: rec.Longitude}
			if geo.Distance(mine, theirs) <= d.thresholdM {
				next[id] = struct{}{}
			}
		}
	}

	prev := d.overlap
	if len(prev) > 0 && len(next) > len(prev) {
		added := false
		for id := range next {
			if _, ok := prev[id]; !ok {
				added = true
				break
			}
		}
		if added {
			d.noticeUntil = d.now().Add(d.window)
		}
	}
	d.overlap = next
}
