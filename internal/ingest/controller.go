package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"proximity-service/internal/geo"
)

// Config carries the throttle thresholds. Zero values fall back to the
// production defaults.
type Config struct {
	// DisplayAccuracyCeilingM rejects obviously garbage fixes outright.
	DisplayAccuracyCeilingM float64
	// SyncAccuracyCeilingM is the tighter ceiling a fix must meet to be
	// forwarded over the network.
	SyncAccuracyCeilingM float64
	// MinInterval is the minimum spacing between forwarded syncs.
	MinInterval time.Duration
	// MinDistanceM is the movement required since the last successfully
	// sent position before another sync is forwarded.
	MinDistanceM float64
}

func (c Config) withDefaults() Config {
	if c.DisplayAccuracyCeilingM <= 0 {
		c.DisplayAccuracyCeilingM = 300
	}
	if c.SyncAccuracyCeilingM <= 0 {
		c.SyncAccuracyCeilingM = 120
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 10 * time.Second
	}
	if c.MinDistanceM <= 0 {
		c.MinDistanceM = 1
	}
	return c
}

// Controller converts a raw stream of sensor fixes into a controlled stream
// of sync requests. Sync is best-effort: failures are swallowed and retried
// on the next qualifying fix, and the local display callback always reflects
// the latest displayable fix regardless of sync outcome.
type Controller struct {
	cfg       Config
	syncer    Syncer
	onDisplay func(Fix)
	limiter   *rate.Limiter
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	lastSent *Fix
}

// ControllerOption tweaks a Controller.
type ControllerOption func(*Controller)

// WithDisplay registers the local presence display callback.
func WithDisplay(fn func(Fix)) ControllerOption {
	return func(c *Controller) { c.onDisplay = fn }
}

// WithControllerClock injects the time source; used by tests.
func WithControllerClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// NewController constructs a Controller.
func NewController(cfg Config, syncer Syncer, logger *zap.Logger, opts ...ControllerOption) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		cfg:     cfg,
		syncer:  syncer,
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		logger:  logger,
		now:     time.Now,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Offer processes one raw fix. It returns true when the fix was forwarded
// for sync and acknowledged.
func (c *Controller) Offer(ctx context.Context, fix Fix) bool {
	if fix.AccuracyMeters > c.cfg.DisplayAccuracyCeilingM {
		return false
	}
	if c.onDisplay != nil {
		c.onDisplay(fix)
	}
	if fix.AccuracyMeters > c.cfg.SyncAccuracyCeilingM {
		return false
	}

	c.mu.Lock()
	if c.lastSent != nil {
		moved := geo.DistanceMeters(c.lastSent.Latitude, c.lastSent.Longitude, fix.Latitude, fix.Longitude)
		if moved < c.cfg.MinDistanceM {
			c.mu.Unlock()
			return false
		}
	}
	// The token is consumed only once every other condition holds, so a
	// rejected fix never pushes the next sync window out.
	if !c.limiter.AllowN(c.now(), 1) {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	if err := c.syncer.SyncLocation(ctx, fix); err != nil {
		// Best-effort: swallow and retry on the next qualifying fix. The
		// baseline does not advance, so the retry is not distance-gated
		// against a position that never reached the server.
		c.logger.Debug("location sync failed", zap.Error(err))
		return false
	}

	c.mu.Lock()
	sent := fix
	c.lastSent = &sent
	c.mu.Unlock()
	return true
}

// Run drains the position source until ctx is done. The initial fix is
// offered as soon as the sensor produces one.
func (c *Controller) Run(ctx context.Context, source PositionSource) error {
	fixes, err := source.WatchPosition(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fix, ok := <-fixes:
			if !ok {
				return nil
			}
			c.Offer(ctx, fix)
		}
	}
}
