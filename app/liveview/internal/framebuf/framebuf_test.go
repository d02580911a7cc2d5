package framebuf

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lk2023060901/faceview/pkg/metrics/sliding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestFrameWins(t *testing.T) {
	b := New()
	now := time.Now()

	assert.False(t, b.Put("1", []byte("a"), now))
	assert.True(t, b.Put("1", []byte("b"), now))
	assert.True(t, b.Put("1", []byte("c"), now))

	p, ok := b.Peek()
	require.True(t, ok)
	assert.Equal(t, []byte("c"), p.Data)

	f, ok := b.Take()
	require.True(t, ok)
	assert.Equal(t, []byte("c"), f.Data)
	assert.Equal(t, uint64(3), f.Seq)

	_, ok = b.Take()
	assert.False(t, ok)

	st := b.Stats()
	assert.Equal(t, uint64(1), st.Delivered)
	assert.Equal(t, uint64(2), st.TotalDrops)
	assert.Equal(t, uint64(0), st.ConsecutiveDrops)
	assert.Equal(t, uint64(3), st.LastTakenSeq)
}

func TestReset(t *testing.T) {
	b := New()
	b.Put("1", []byte("a"), time.Now())
	b.Reset()

	_, ok := b.Peek()
	assert.False(t, ok)
	select {
	case <-b.Updates():
		t.Fatal("reset must drain pending notification")
	default:
	}
}

func TestWait(t *testing.T) {
	b := New()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f, err := b.Wait(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, "9", f.CameraID)
	}()
	time.Sleep(10 * time.Millisecond)
	b.Put("9", []byte("x"), time.Now())
	wg.Wait()
}

func TestConcurrentPut(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Put("1", []byte{byte(j)}, time.Now())
			}
		}()
	}
	wg.Wait()

	_, ok := b.Take()
	require.True(t, ok)
	st := b.Stats()
	assert.Equal(t, uint64(399), st.TotalDrops)
	assert.Equal(t, uint64(1), st.Delivered)
}

func TestFrameRate(t *testing.T) {
	now := time.Unix(1700000000, 0)
	w := sliding.Default(sliding.WithClock(func() time.Time { return now }))
	b := New(WithRateWindow(w))

	for i := 0; i < 50; i++ {
		b.Put("1", make([]byte, 100), now)
	}
	st := b.Stats()
	assert.InDelta(t, 5.0, st.FrameRate, 0.001)
	assert.InDelta(t, 500.0, st.ByteRate, 0.001)

	b.Reset()
	assert.Zero(t, b.Stats().FrameRate)
}
