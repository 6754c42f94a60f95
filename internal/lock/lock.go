package lock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shopmesh-io/backend/pkg/config"
	"github.com/shopmesh-io/backend/pkg/errors"
	"github.com/shopmesh-io/backend/pkg/logger"
	"github.com/shopmesh-io/backend/pkg/metrics"
)

const productScope = "product"

type redisClient interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	PExpire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(scope, id string) string
}

// Lease is a held lock. The token identifies the holder that acquired it.
type Lease struct {
	Key   string
	Token string
}

// Manager hands out short-lived per-product locks backed by Redis SETNX.
// Acquisition retries a bounded number of times with a fixed backoff, so a
// contended product delays checkout instead of failing it immediately, and a
// crashed holder is cleared by the TTL.
type Manager struct {
	client  redisClient
	cfg     config.LockConfig
	logg    *logger.Logger
	metrics *metrics.CheckoutMetrics

	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager wires a lock manager. Metrics may be nil.
func NewManager(client redisClient, cfg config.LockConfig, logg *logger.Logger, m *metrics.CheckoutMetrics) (*Manager, error) {
	if client == nil {
		return nil, errors.New(errors.CodeInternal, "lock: redis client is required")
	}
	if logg == nil {
		return nil, errors.New(errors.CodeInternal, "lock: logger is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New(errors.CodeInternal, "lock: ttl must be positive")
	}
	if cfg.Attempts <= 0 {
		return nil, errors.New(errors.CodeInternal, "lock: attempts must be positive")
	}
	return &Manager{
		client:  client,
		cfg:     cfg,
		logg:    logg,
		metrics: m,
		sleep:   sleepCtx,
	}, nil
}

// AcquireProduct takes the lock guarding a product's reserve path. It retries
// up to the configured attempt budget and returns CodeLockUnavailable once the
// budget is exhausted.
func (m *Manager) AcquireProduct(ctx context.Context, productID uuid.UUID) (*Lease, error) {
	key := m.client.LockKey(productScope, productID.String())
	token := uuid.NewString()

	for attempt := 0; attempt < m.cfg.Attempts; attempt++ {
		if attempt > 0 {
			m.metrics.IncLockRetry()
			if err := m.sleep(ctx, m.cfg.Backoff); err != nil {
				return nil, errors.Wrap(errors.CodeInternal, err, "lock: acquire cancelled")
			}
		}

		acquired, err := m.client.SetNX(ctx, key, token, m.cfg.TTL)
		if err != nil {
			return nil, errors.Wrap(errors.CodeDependency, err, "lock: setnx failed")
		}
		if acquired {
			return &Lease{Key: key, Token: token}, nil
		}
	}

	m.metrics.IncLockMiss()
	m.logg.Warn(m.logg.WithProductID(ctx, productID.String()), "reserve lock unavailable after retries")
	return nil, errors.New(errors.CodeLockUnavailable, "lock: product is busy, try again").
		WithDetails(map[string]any{"product_id": productID.String()})
}

// Refresh extends the TTL on a held lease.
func (m *Manager) Refresh(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return errors.New(errors.CodeInternal, "lock: lease is required")
	}
	ok, err := m.client.PExpire(ctx, lease.Key, m.cfg.TTL)
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "lock: pexpire failed")
	}
	if !ok {
		return errors.New(errors.CodeConflict, "lock: lease already expired")
	}
	return nil
}

// Release frees a held lease. Releasing an already-expired lease is a no-op.
func (m *Manager) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	if err := m.client.Del(ctx, lease.Key); err != nil {
		return errors.Wrap(errors.CodeDependency, err, "lock: release failed")
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
