package orderlock

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const keyPrefix = "payrecon:order:"

const (
	ResultAcquired    = "acquired"
	ResultContended   = "contended"
	ResultUnavailable = "unavailable"
	ResultDisabled    = "disabled"
)

// Config bounds how long a delivery waits for a peer holding the same order.
type Config struct {
	TTL        time.Duration
	Attempts   int
	RetryDelay time.Duration
}

// Guard serializes deliveries for the same order when a Locker is configured.
// It never blocks processing: when the lock cannot be taken the caller proceeds unlocked.
type Guard struct {
	locker Locker
	cfg    Config
	log    *zap.Logger
}

func NewGuard(locker Locker, cfg Config, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	return &Guard{locker: locker, cfg: cfg, log: log.Named("orderlock")}
}

// Acquire returns a release func (never nil) and the acquisition result.
func (g *Guard) Acquire(ctx context.Context, orderID string) (func(), string) {
	noop := func() {}
	if g == nil || g.locker == nil || orderID == "" {
		return noop, ResultDisabled
	}

	key := keyPrefix + orderID
	for attempt := 1; attempt <= g.cfg.Attempts; attempt++ {
		token, ok, err := g.locker.TryLock(ctx, key, g.cfg.TTL)
		if err != nil {
			g.log.Warn("order lock unavailable, continuing unlocked",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
			return noop, ResultUnavailable
		}
		if ok {
			return func() {
				// release must outlive a cancelled request context
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				if err := g.locker.Release(releaseCtx, key, token); err != nil {
					g.log.Warn("order lock release failed", zap.String("order_id", orderID), zap.Error(err))
				}
			}, ResultAcquired
		}
		if attempt == g.cfg.Attempts {
			break
		}

		timer := time.NewTimer(g.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return noop, ResultContended
		case <-timer.C:
		}
	}

	g.log.Warn("order lock contended, continuing unlocked",
		zap.String("order_id", orderID),
		zap.Int("attempts", g.cfg.Attempts),
	)
	return noop, ResultContended
}
