package client

import (
	"math"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/golang/glog"
)

// tracks reconnect backoff scheduling and a rolling latency window,
// independent of any specific transport

type ConnectionQuality string

const (
	ConnectionQualityGood         ConnectionQuality = "good"
	ConnectionQualityDegraded     ConnectionQuality = "degraded"
	ConnectionQualityDisconnected ConnectionQuality = "disconnected"
)

// no further retry
const BackoffGiveUp = time.Duration(-1)

type ConnectionQualityFunction = func(quality ConnectionQuality)

type ConnectionQualitySettings struct {
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	MaxAttempts    int
	AdditiveJitter time.Duration

	LatencyWindowSize int
	// effective latency below this is good
	GoodLatencyThreshold time.Duration
}

func DefaultConnectionQualitySettings() *ConnectionQualitySettings {
	return &ConnectionQualitySettings{
		InitialDelay:         1000 * time.Millisecond,
		MaxDelay:             60000 * time.Millisecond,
		BackoffFactor:        2,
		MaxAttempts:          50,
		AdditiveJitter:       250 * time.Millisecond,
		LatencyWindowSize:    10,
		GoodLatencyThreshold: 150 * time.Millisecond,
	}
}

type ConnectionQualityTracker struct {
	settings *ConnectionQualitySettings

	stateLock sync.Mutex
	// resets to zero exactly on an established transition,
	// increments exactly once per scheduled retry
	attempt     int
	established bool
	// fixed-capacity ring of round trip samples
	latencies    []time.Duration
	latencyHead  int
	latencyCount int
	retryTimer   *time.Timer
	lastQuality  ConnectionQuality

	qualityCallbacks *callbackList[ConnectionQualityFunction]
}

func NewConnectionQualityTrackerWithDefaults() *ConnectionQualityTracker {
	return NewConnectionQualityTracker(DefaultConnectionQualitySettings())
}

func NewConnectionQualityTracker(settings *ConnectionQualitySettings) *ConnectionQualityTracker {
	return &ConnectionQualityTracker{
		settings:         settings,
		latencies:        make([]time.Duration, settings.LatencyWindowSize),
		lastQuality:      ConnectionQualityDisconnected,
		qualityCallbacks: newCallbackList[ConnectionQualityFunction](),
	}
}

func (self *ConnectionQualityTracker) AddQualityCallback(callback ConnectionQualityFunction) func() {
	callbackId := self.qualityCallbacks.Add(callback)
	return func() {
		self.qualityCallbacks.Remove(callbackId)
	}
}

// backoff delay for the next attempt: full jitter over the capped
// exponential delay, blended with a smaller additive jitter term, floored
// at the initial delay. returns BackoffGiveUp once attempts are exhausted
func (self *ConnectionQualityTracker) NextDelay() time.Duration {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.settings.MaxAttempts <= self.attempt {
		return BackoffGiveUp
	}
	n := self.attempt
	self.attempt += 1

	cappedDelay := time.Duration(
		float64(self.settings.InitialDelay) * math.Pow(self.settings.BackoffFactor, float64(n)),
	)
	if self.settings.MaxDelay < cappedDelay || cappedDelay <= 0 {
		cappedDelay = self.settings.MaxDelay
	}

	delay := time.Duration(mathrand.Int63n(int64(cappedDelay) + 1))
	if 0 < self.settings.AdditiveJitter {
		delay += time.Duration(mathrand.Int63n(int64(self.settings.AdditiveJitter) + 1))
	}
	if delay < self.settings.InitialDelay {
		delay = self.settings.InitialDelay
	}
	return delay
}

func (self *ConnectionQualityTracker) Attempt() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.attempt
}

// schedules `retry` after the next backoff delay. at most one retry timer
// is ever live: a new schedule cancels the previous one. returns false when
// the backoff has given up
func (self *ConnectionQualityTracker) ScheduleRetry(retry func()) bool {
	delay := self.NextDelay()

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.retryTimer != nil {
		self.retryTimer.Stop()
		self.retryTimer = nil
	}
	if delay == BackoffGiveUp {
		return false
	}
	self.retryTimer = time.AfterFunc(delay, retry)
	return true
}

func (self *ConnectionQualityTracker) CancelRetry() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.retryTimer != nil {
		self.retryTimer.Stop()
		self.retryTimer = nil
	}
}

func (self *ConnectionQualityTracker) Established() {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		self.attempt = 0
		self.established = true
		if self.retryTimer != nil {
			self.retryTimer.Stop()
			self.retryTimer = nil
		}
	}()
	self.update()
}

func (self *ConnectionQualityTracker) Disconnected() {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		self.established = false
		self.latencyHead = 0
		self.latencyCount = 0
	}()
	self.update()
}

// records one round trip sample, evicting the oldest once the window is at
// capacity
func (self *ConnectionQualityTracker) AddLatencySample(rtt time.Duration) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		self.latencies[self.latencyHead] = rtt
		self.latencyHead = (self.latencyHead + 1) % len(self.latencies)
		if self.latencyCount < len(self.latencies) {
			self.latencyCount += 1
		}
	}()
	self.update()
}

func (self *ConnectionQualityTracker) Quality() ConnectionQuality {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.quality()
}

// must be called inside the state lock
func (self *ConnectionQualityTracker) quality() ConnectionQuality {
	if !self.established {
		return ConnectionQualityDisconnected
	}
	if self.latencyCount == 0 {
		return ConnectionQualityGood
	}

	mean := time.Duration(0)
	for i := 0; i < self.latencyCount; i += 1 {
		mean += self.latencies[i]
	}
	mean /= time.Duration(self.latencyCount)

	variance := float64(0)
	for i := 0; i < self.latencyCount; i += 1 {
		d := float64(self.latencies[i] - mean)
		variance += d * d
	}
	stddev := time.Duration(math.Sqrt(variance / float64(self.latencyCount)))

	effective := mean + stddev/2
	if effective < self.settings.GoodLatencyThreshold {
		return ConnectionQualityGood
	}
	// degraded is the ceiling while connected. only disconnected is
	// structurally different
	return ConnectionQualityDegraded
}

func (self *ConnectionQualityTracker) update() {
	var quality ConnectionQuality
	changed := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		quality = self.quality()
		if quality != self.lastQuality {
			self.lastQuality = quality
			changed = true
		}
	}()
	if changed {
		glog.V(2).Infof("[q]quality=%s\n", quality)
		for _, callback := range self.qualityCallbacks.Get() {
			callback(quality)
		}
	}
}
