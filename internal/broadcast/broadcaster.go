package broadcast

import (
	"sync"
	"time"

	"proximity-service/internal/geo"
	"proximity-service/internal/models"
	"proximity-service/internal/observability"
	"proximity-service/internal/presence"
)

// Interest describes which presence records a viewer wants deltas for.
// An empty interest matches everyone. The viewer's own record never matches.
type Interest struct {
	UserIDs  []string
	Viewport *geo.Viewport
}

func (i Interest) matches(rec models.PresenceRecord, eventType string) bool {
	if len(i.UserIDs) > 0 {
		found := false
		for _, id := range i.UserIDs {
			if id == rec.UserID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	// Removes are always forwarded so the subscriber can drop the marker;
	// the viewport only gates position updates.
	if i.Viewport != nil && eventType != models.PresenceEventRemove {
		return i.Viewport.Contains(rec.Latitude, rec.Longitude)
	}
	return true
}

// Subscription is one viewer's live event feed. The channel yields a full
// snapshot first, then deltas. When the broadcaster evicts a slow subscriber
// the channel is closed; the consumer is expected to resubscribe, which
// restores correctness via the fresh snapshot.
type Subscription struct {
	viewerID string
	interest Interest

	ch chan models.PresenceEvent

	mu     sync.Mutex
	lastTS map[string]time.Time
	closed bool
}

// Events returns the feed channel.
func (s *Subscription) Events() <-chan models.PresenceEvent {
	return s.ch
}

// ViewerID returns the subscribing viewer.
func (s *Subscription) ViewerID() string {
	return s.viewerID
}

// deliver enqueues the event unless it is stale for its source user. The
// per-user timestamp filter restores per-source ordering: a delta for a given
// user is never delivered out of order to this subscriber. Removes bypass the
// filter — removal time is server-set and may trail a device-stamped update,
// but a remove supersedes whatever came before it; without the exemption the
// subscriber would keep a ghost marker until resubscribe. A full queue evicts
// the subscription instead of blocking the caller.
func (s *Subscription) deliver(ev models.PresenceEvent) (delivered, evicted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}
	if ev.Type != models.PresenceEventRemove {
		if last, ok := s.lastTS[ev.Record.UserID]; ok && !ev.Record.UpdatedAt.After(last) {
			return false, false
		}
	}

	select {
	case s.ch <- ev:
		if ev.Type == models.PresenceEventRemove {
			// Forget the source user entirely so a later re-entry starts a
			// fresh timeline even if its device clock lags the old one.
			delete(s.lastTS, ev.Record.UserID)
		} else {
			s.lastTS[ev.Record.UserID] = ev.Record.UpdatedAt
		}
		return true, false
	default:
		s.closed = true
		close(s.ch)
		return false, true
	}
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Broadcaster fans presence deltas out to subscribers. Delivery to one
// subscriber never blocks delivery to another or the store's accept path.
type Broadcaster struct {
	store  *presence.Store
	buffer int

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// New creates a Broadcaster reading snapshots from the store. buffer is the
// per-subscriber queue depth for deltas.
func New(store *presence.Store, buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		store:  store,
		buffer: buffer,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a viewer and immediately queues a full snapshot of all
// matching records, so late joiners miss no state. Deltas follow.
func (b *Broadcaster) Subscribe(viewerID string, interest Interest) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := make([]models.PresenceRecord, 0)
	for _, rec := range b.store.Snapshot() {
		if rec.UserID == viewerID {
			continue
		}
		if interest.matches(rec, models.PresenceEventSnapshot) {
			snapshot = append(snapshot, rec)
		}
	}

	sub := &Subscription{
		viewerID: viewerID,
		interest: interest,
		ch:       make(chan models.PresenceEvent, b.buffer+len(snapshot)),
		lastTS:   make(map[string]time.Time, len(snapshot)),
	}
	for _, rec := range snapshot {
		sub.ch <- models.PresenceEvent{Type: models.PresenceEventSnapshot, Record: rec}
		sub.lastTS[rec.UserID] = rec.UpdatedAt
	}

	b.subs[sub] = struct{}{}
	observability.SetSubscribers(len(b.subs))
	return sub
}

// Unsubscribe tears the feed down. Events already queued may still be read.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	observability.SetSubscribers(len(b.subs))
	b.mu.Unlock()
	sub.shutdown()
}

// Publish delivers one delta to every matching subscriber. Slow subscribers
// are evicted and must resubscribe for a fresh snapshot.
func (b *Broadcaster) Publish(ev models.PresenceEvent) {
	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		if ev.Record.UserID == sub.viewerID {
			continue
		}
		if sub.interest.matches(ev.Record, ev.Type) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	var evicted []*Subscription
	for _, sub := range targets {
		delivered, dropped := sub.deliver(ev)
		if delivered {
			observability.IncBroadcastDelivered(ev.Type)
		}
		if dropped {
			evicted = append(evicted, sub)
		}
	}

	if len(evicted) > 0 {
		b.mu.Lock()
		for _, sub := range evicted {
			delete(b.subs, sub)
			observability.IncSubscriberEvicted()
		}
		observability.SetSubscribers(len(b.subs))
		b.mu.Unlock()
	}
}
