package escrow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_SerializesSameAsset(t *testing.T) {
	l := NewLocalLocker(time.Second)
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, 7)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 0, l.held())
}

func TestLocalLocker_TimesOutWithBusy(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, 1)
	require.NoError(t, err)

	_, err = l.Lock(ctx, 1)
	assert.ErrorIs(t, err, ErrBusy)

	other, err := l.Lock(ctx, 2)
	require.NoError(t, err)
	other()

	unlock()
	unlock() // second call is a no-op

	again, err := l.Lock(ctx, 1)
	require.NoError(t, err)
	again()
	assert.Equal(t, 0, l.held())
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	l := NewLocalLocker(time.Second)
	unlock, err := l.Lock(context.Background(), 1)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func newRedisLocker(t *testing.T, wait time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLocker(rdb, time.Minute, wait), mr
}

func TestRedisLocker_LeaseLifecycle(t *testing.T) {
	l, mr := newRedisLocker(t, 50*time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, 42)
	require.NoError(t, err)
	assert.True(t, mr.Exists("escrow:lock:42"))
	assert.Equal(t, time.Minute, mr.TTL("escrow:lock:42"))

	unlock()
	assert.False(t, mr.Exists("escrow:lock:42"))
}

func TestRedisLocker_RenewsLeaseWhileHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewRedisLocker(rdb, 300*time.Millisecond, 50*time.Millisecond)

	unlock, err := l.Lock(context.Background(), 7)
	require.NoError(t, err)

	mr.FastForward(200 * time.Millisecond)
	assert.Eventually(t, func() bool {
		return mr.TTL("escrow:lock:7") == 300*time.Millisecond
	}, time.Second, 10*time.Millisecond)

	unlock()
	assert.False(t, mr.Exists("escrow:lock:7"))
}

func TestRedisLocker_BusyWhileAnotherProcessHoldsLease(t *testing.T) {
	l, mr := newRedisLocker(t, 50*time.Millisecond)
	ctx := context.Background()

	// a second instance holds the lease
	require.NoError(t, mr.Set("escrow:lock:1", "someone-else"))

	_, err := l.Lock(ctx, 1)
	assert.ErrorIs(t, err, ErrBusy)

	unlock, err := l.Lock(ctx, 2)
	require.NoError(t, err)
	unlock()

	// the foreign lease is not ours to delete
	assert.True(t, mr.Exists("escrow:lock:1"))

	mr.Del("escrow:lock:1")
	unlock, err = l.Lock(ctx, 1)
	require.NoError(t, err)
	unlock()
}

func TestRedisLocker_ReleaseKeepsForeignLease(t *testing.T) {
	l, mr := newRedisLocker(t, 50*time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, 3)
	require.NoError(t, err)

	// lease expired and was taken over by another holder
	require.NoError(t, mr.Set("escrow:lock:3", "new-holder"))
	unlock()

	got, err := mr.Get("escrow:lock:3")
	require.NoError(t, err)
	assert.Equal(t, "new-holder", got)
}

func TestRedisLocker_InProcessContention(t *testing.T) {
	l, _ := newRedisLocker(t, 2*time.Second)
	ctx := context.Background()

	var mu sync.Mutex
	order := []int{}
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock, err := l.Lock(ctx, 9)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			unlock()
		}(i)
	}
	wg.Wait()
	assert.Len(t, order, 5)
}
