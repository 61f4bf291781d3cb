package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
)

const subscriptionLockTTL = 30 * time.Second

// Locks serializes webhook-driven and admin-driven mutations of the same
// subscription.
type Locks interface {
	Acquire(ctx context.Context, subscriptionID uuid.UUID) (release func(), err error)
}

// lockStore is the slice of the redis client the lock needs.
type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

type redisLocks struct {
	client lockStore
	ttl    time.Duration
}

func NewRedisLocks(client lockStore) (Locks, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "redis client required for subscription locks")
	}
	return &redisLocks{client: client, ttl: subscriptionLockTTL}, nil
}

func (l *redisLocks) Acquire(ctx context.Context, subscriptionID uuid.UUID) (func(), error) {
	key := "billing:subscription:" + subscriptionID.String()
	ok, err := l.client.SetNX(ctx, key, "1", l.ttl)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "acquire subscription lock")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is being modified")
	}
	release := func() {
		_ = l.client.Del(context.Background(), key)
	}
	return release, nil
}

// noopLocks is for single-process setups and tests.
type noopLocks struct{}

func NewNoopLocks() Locks { return noopLocks{} }

func (noopLocks) Acquire(context.Context, uuid.UUID) (func(), error) {
	return func() {}, nil
}
