package shared

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ProductLockKey builds redis keys for per-product stock critical sections.
func ProductLockKey(productID int64) string {
	return fmt.Sprintf("stock:product:%d:lock", productID)
}

// ErrLockNotAcquired indicates the lock was held for the whole wait window.
var ErrLockNotAcquired = errors.New("shared: product lock not acquired")

// releaseScript deletes a lock key only when it still holds our token, so an
// expired-and-reacquired lock is never released by the previous owner.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// ProductLocker serializes validate+persist+reconcile per product. Stock
// validation reads the ledger and the following reconciliation writes it;
// without a lock two concurrent invoices reserving the same product can both
// pass validation against a stale availability figure and jointly oversell.
type ProductLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewProductLocker constructs a locker. ttl bounds how long a crashed holder
// can block a product; retry is the polling interval while waiting.
func NewProductLocker(client *redis.Client, ttl, retry time.Duration) *ProductLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	return &ProductLocker{client: client, ttl: ttl, retry: retry}
}

// LockProducts acquires the lock for every distinct product id, in ascending
// order so concurrent callers touching overlapping sets cannot deadlock.
// The returned release function is idempotent.
func (l *ProductLocker) LockProducts(ctx context.Context, productIDs []int64) (func(), error) {
	if l == nil || l.client == nil || len(productIDs) == 0 {
		return func() {}, nil
	}

	ids := dedupeSorted(productIDs)
	token := uuid.NewString()
	acquired := make([]string, 0, len(ids))

	release := func() {
		for _, key := range acquired {
			_ = l.client.Eval(context.WithoutCancel(ctx), releaseScript, []string{key}, token).Err()
		}
		acquired = acquired[:0]
	}

	for _, id := range ids {
		key := ProductLockKey(id)
		if err := l.acquire(ctx, key, token); err != nil {
			release()
			return nil, err
		}
		acquired = append(acquired, key)
	}

	return release, nil
}

func (l *ProductLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.ttl)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("shared: acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

func dedupeSorted(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
