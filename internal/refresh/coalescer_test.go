package refresh

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBurstCoalescesToOneRefresh(t *testing.T) {
	var fired atomic.Int32
	c := New(30*time.Millisecond, func() { fired.Add(1) })
	defer c.Close()

	for i := 0; i < 10; i++ {
		c.RequestUpdate()
	}

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	// And stays at one once the window has long elapsed.
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, int32(1), fired.Load())
}

func TestSignalResetsWindow(t *testing.T) {
	var fired atomic.Int32
	c := New(50*time.Millisecond, func() { fired.Add(1) })
	defer c.Close()

	c.RequestUpdate()
	time.Sleep(30 * time.Millisecond)
	c.RequestUpdate()
	time.Sleep(30 * time.Millisecond)
	// Second signal reset the window; nothing fired yet.
	require.Equal(t, int32(0), fired.Load())

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSeparateBurstsFireSeparately(t *testing.T) {
	var fired atomic.Int32
	c := New(20*time.Millisecond, func() { fired.Add(1) })
	defer c.Close()

	c.RequestUpdate()
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	c.RequestUpdate()
	require.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestCloseCancelsPendingRefresh(t *testing.T) {
	var fired atomic.Int32
	c := New(20*time.Millisecond, func() { fired.Add(1) })

	c.RequestUpdate()
	c.Close()

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, int32(0), fired.Load())

	c.RequestUpdate() // after Close: ignored
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, int32(0), fired.Load())
}
