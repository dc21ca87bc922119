package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSerializesSameKey(t *testing.T) {
	l := NewLocal()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), ClaimKey("c1"), AgentKey("a1"))
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, l.entries)
}

func TestLocalOverlappingSetsDoNotDeadlock(t *testing.T) {
	l := NewLocal()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "b", "a")
			if !assert.NoError(t, err) {
				return
			}
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "a", "b")
			if !assert.NoError(t, err) {
				return
			}
			unlock()
		}()
	}
	wg.Wait()
}

func TestLocalContextCancel(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalUnlockIdempotent(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	unlock()
	unlock2, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock2()
}

func TestRedisLock(t *testing.T) {
	addr := os.Getenv("VERIBOND_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("VERIBOND_TEST_REDIS_ADDR not set")
	}
	client := NewRedisClient(addr, "", 0)
	defer client.Close()
	l := NewRedis(client, "veribond:test:", time.Second)

	unlock, err := l.Lock(context.Background(), ClaimKey("x"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, ClaimKey("x"))
	require.Error(t, err)

	unlock()
	unlock2, err := l.Lock(context.Background(), ClaimKey("x"))
	require.NoError(t, err)
	unlock2()
}
