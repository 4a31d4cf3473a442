package escrow

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultLockWait bounds how long a transition waits for its listing lock.
const DefaultLockWait = 5 * time.Second

// Locker serializes transitions per asset. Lock blocks until the asset is free, the wait bound
// expires or ctx is done; the returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, assetID uint64) (unlock func(), err error)
}

// LocalLocker is an in-process keyed lock. Distinct asset ids never contend.
type LocalLocker struct {
	Wait time.Duration

	mu    sync.Mutex
	slots map[uint64]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &LocalLocker{Wait: wait, slots: make(map[uint64]*lockSlot)}
}

func (l *LocalLocker) Lock(ctx context.Context, assetID uint64) (func(), error) {
	l.mu.Lock()
	if l.slots == nil {
		l.slots = make(map[uint64]*lockSlot)
	}
	slot, ok := l.slots[assetID]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[assetID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	wait := l.Wait
	if wait <= 0 {
		wait = DefaultLockWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.release(assetID, slot)
			})
		}, nil
	case <-timer.C:
		l.release(assetID, slot)
		return nil, ErrBusy
	case <-ctx.Done():
		l.release(assetID, slot)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(assetID uint64, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, assetID)
	}
}

// held reports the number of asset ids with a live slot.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

const redisLockPrefix = "escrow:lock:"

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lease only while it still carries our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker extends a LocalLocker across processes with a SET NX PX lease per asset.
// TTL caps how long a crashed holder can block the asset; a live holder renews the lease every
// TTL/3 until it releases, so a long settlement keeps exclusivity.
type RedisLocker struct {
	Rdb   *redis.Client
	TTL   time.Duration
	Wait  time.Duration
	Retry time.Duration

	local *LocalLocker
}

func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &RedisLocker{
		Rdb:   rdb,
		TTL:   ttl,
		Wait:  wait,
		Retry: 25 * time.Millisecond,
		local: NewLocalLocker(wait),
	}
}

func (r *RedisLocker) Lock(ctx context.Context, assetID uint64) (func(), error) {
	deadline := time.Now().Add(r.Wait)
	unlockLocal, err := r.local.Lock(ctx, assetID)
	if err != nil {
		return nil, err
	}

	key := redisLockPrefix + strconv.FormatUint(assetID, 10)
	token := uuid.New().String()
	for {
		ok, err := r.Rdb.SetNX(ctx, key, token, r.TTL).Result()
		if err != nil {
			unlockLocal()
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			unlockLocal()
			return nil, ErrBusy
		}
		select {
		case <-time.After(r.Retry):
		case <-ctx.Done():
			unlockLocal()
			return nil, ctx.Err()
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(key, token, assetID, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// release must not depend on the caller's (possibly cancelled) context
			if err := releaseScript.Run(context.Background(), r.Rdb, []string{key}, token).Err(); err != nil {
				log.Warn().Err(err).Uint64("asset_id", assetID).Msg("release listing lock")
			}
			unlockLocal()
		})
	}, nil
}

func (r *RedisLocker) keepAlive(key, token string, assetID uint64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := r.TTL / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := refreshScript.Run(context.Background(), r.Rdb, []string{key}, token, r.TTL.Milliseconds()).Int()
			if err != nil {
				log.Warn().Err(err).Uint64("asset_id", assetID).Msg("renew listing lock")
				continue
			}
			if n == 0 {
				log.Error().Uint64("asset_id", assetID).Msg("listing lock lease lost")
				return
			}
		}
	}
}
