package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*ProductLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewProductLocker(client, 2*time.Second, 5*time.Millisecond), mr
}

func TestLockProductsAcquiresAndReleases(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.LockProducts(ctx, []int64{7, 3, 7, 0})
	require.NoError(t, err)
	require.True(t, mr.Exists(ProductLockKey(3)))
	require.True(t, mr.Exists(ProductLockKey(7)))

	release()
	require.False(t, mr.Exists(ProductLockKey(3)))
	require.False(t, mr.Exists(ProductLockKey(7)))
}

func TestLockProductsBlocksSecondHolder(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.LockProducts(ctx, []int64{42})
	require.NoError(t, err)
	defer release()

	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = locker.LockProducts(ctx2, []int64{42})
	require.Error(t, err)
}

func TestLockProductsWaitsForRelease(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.LockProducts(ctx, []int64{9})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		rel2, err := locker.LockProducts(ctx, []int64{9})
		if err == nil {
			rel2()
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	release()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("second holder never acquired the lock")
	}
}

func TestReleaseIgnoresForeignToken(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.LockProducts(ctx, []int64{11})
	require.NoError(t, err)

	// Simulate expiry plus reacquisition by another holder.
	require.NoError(t, mr.Set(ProductLockKey(11), "other-token"))
	release()
	require.True(t, mr.Exists(ProductLockKey(11)))
}

func TestNilLockerIsNoop(t *testing.T) {
	var locker *ProductLocker
	release, err := locker.LockProducts(context.Background(), []int64{1})
	require.NoError(t, err)
	release()
}
