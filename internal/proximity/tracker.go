package proximity

import (
	"proximity-service/internal/broadcast"
)

// Tracker drains a broadcast subscription into a Detector, keeping the
// viewer's overlap set current as deltas arrive.
type Tracker struct {
	detector *Detector
	sub      *broadcast.Subscription
	done     chan struct{}
}

// Track starts consuming the subscription. It returns once the feed closes,
// which happens on Unsubscribe or when the broadcaster evicts the viewer;
// the caller resubscribes and tracks again to resync.
func Track(detector *Detector, sub *broadcast.Subscription) *Tracker {
	t := &Tracker{detector: detector, sub: sub, done: make(chan struct{})}
	go t.run()
	return t
}

func (t *Tracker) run() {
	defer close(t.done)
	for ev := range t.sub.Events() {
		t.detector.Apply(ev)
	}
}

// Done is closed when the feed has drained.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}
