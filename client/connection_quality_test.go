package client

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestBackoffDelays(t *testing.T) {
	settings := DefaultConnectionQualitySettings()
	settings.InitialDelay = 1000 * time.Millisecond
	settings.BackoffFactor = 2
	settings.MaxDelay = 60000 * time.Millisecond
	settings.MaxAttempts = 50
	tracker := NewConnectionQualityTracker(settings)

	// never below the initial delay, never above the cap plus jitter
	for i := 0; i < settings.MaxAttempts; i += 1 {
		delay := tracker.NextDelay()
		assert.NotEqual(t, BackoffGiveUp, delay)
		if delay < settings.InitialDelay {
			t.Fatalf("attempt %d delay %v below initial delay", i, delay)
		}
		if settings.MaxDelay+settings.AdditiveJitter < delay {
			t.Fatalf("attempt %d delay %v above cap", i, delay)
		}
	}

	// exhausted
	assert.Equal(t, BackoffGiveUp, tracker.NextDelay())
	assert.Equal(t, BackoffGiveUp, tracker.NextDelay())
}

func TestBackoffAttemptReset(t *testing.T) {
	tracker := NewConnectionQualityTrackerWithDefaults()

	tracker.NextDelay()
	tracker.NextDelay()
	tracker.NextDelay()
	assert.Equal(t, 3, tracker.Attempt())

	// the counter resets exactly on an established transition
	tracker.Established()
	assert.Equal(t, 0, tracker.Attempt())
	assert.Equal(t, ConnectionQualityGood, tracker.Quality())

	tracker.Disconnected()
	assert.Equal(t, ConnectionQualityDisconnected, tracker.Quality())
	assert.Equal(t, 0, tracker.Attempt())
}

func TestBackoffRetryTimer(t *testing.T) {
	settings := DefaultConnectionQualitySettings()
	settings.InitialDelay = 10 * time.Millisecond
	settings.MaxDelay = 20 * time.Millisecond
	settings.AdditiveJitter = 0
	settings.MaxAttempts = 3
	tracker := NewConnectionQualityTracker(settings)

	fired := make(chan struct{}, 2)
	scheduled := tracker.ScheduleRetry(func() {
		fired <- struct{}{}
	})
	assert.Equal(t, true, scheduled)

	// a superseding schedule cancels the pending timer: at most one fires
	scheduled = tracker.ScheduleRetry(func() {
		fired <- struct{}{}
	})
	assert.Equal(t, true, scheduled)

	select {
	case <-fired:
	case <-time.After(1 * time.Second):
		t.Fatal("retry did not fire")
	}
	select {
	case <-fired:
		t.Fatal("superseded retry fired")
	case <-time.After(100 * time.Millisecond):
	}

	tracker.ScheduleRetry(func() {
		fired <- struct{}{}
	})
	assert.Equal(t, false, tracker.ScheduleRetry(func() {
		fired <- struct{}{}
	}))
}

func TestQualityClassification(t *testing.T) {
	settings := DefaultConnectionQualitySettings()
	settings.LatencyWindowSize = 4
	settings.GoodLatencyThreshold = 150 * time.Millisecond
	tracker := NewConnectionQualityTracker(settings)

	assert.Equal(t, ConnectionQualityDisconnected, tracker.Quality())

	tracker.Established()
	assert.Equal(t, ConnectionQualityGood, tracker.Quality())

	tracker.AddLatencySample(20 * time.Millisecond)
	tracker.AddLatencySample(30 * time.Millisecond)
	tracker.AddLatencySample(25 * time.Millisecond)
	assert.Equal(t, ConnectionQualityGood, tracker.Quality())

	// high samples push the effective latency over the threshold
	tracker.AddLatencySample(900 * time.Millisecond)
	tracker.AddLatencySample(800 * time.Millisecond)
	tracker.AddLatencySample(850 * time.Millisecond)
	assert.Equal(t, ConnectionQualityDegraded, tracker.Quality())

	// the window is bounded: four low samples evict every high one
	tracker.AddLatencySample(10 * time.Millisecond)
	tracker.AddLatencySample(10 * time.Millisecond)
	tracker.AddLatencySample(10 * time.Millisecond)
	tracker.AddLatencySample(10 * time.Millisecond)
	assert.Equal(t, ConnectionQualityGood, tracker.Quality())
}

func TestQualityCallbacks(t *testing.T) {
	tracker := NewConnectionQualityTrackerWithDefaults()

	transitions := []ConnectionQuality{}
	tracker.AddQualityCallback(func(quality ConnectionQuality) {
		transitions = append(transitions, quality)
	})

	tracker.Established()
	tracker.AddLatencySample(10 * time.Millisecond)
	tracker.Disconnected()

	// only transitions are surfaced, not every sample
	assert.Equal(t, []ConnectionQuality{
		ConnectionQualityGood,
		ConnectionQualityDisconnected,
	}, transitions)
}
