// Package netquality classifies the current link into a coarse quality tier
// and recommends a transfer chunk size for it. The estimate combines
// connection hints with a moving average of measured upload throughput.
// Nothing here blocks on I/O or fails.
package netquality

import (
	"sync"
	"time"
)

// Quality tiers are ordered: Offline < Poor < Fair < Good.
type Quality int

const (
	Offline Quality = iota
	Poor
	Fair
	Good
)

func (q Quality) String() string {
	switch q {
	case Good:
		return "good"
	case Fair:
		return "fair"
	case Poor:
		return "poor"
	default:
		return "offline"
	}
}

// EffectiveType is the coarse connection class, as reported by platforms
// that expose one.
type EffectiveType string

const (
	EffectiveSlow2G EffectiveType = "slow-2g"
	Effective2G     EffectiveType = "2g"
	Effective3G     EffectiveType = "3g"
	Effective4G     EffectiveType = "4g"
)

// Hints are the connection characteristics observed without transferring
// payload.
type Hints struct {
	EffectiveType EffectiveType
	RTT           time.Duration
	DownlinkMbps  float64
	SaveData      bool
}

const (
	ChunkSizeGood int64 = 5 << 20
	ChunkSizeFair int64 = 1 << 20
	ChunkSizePoor int64 = 256 << 10

	goodThroughput = 2 << 20   // bytes/s
	fairThroughput = 500 << 10 // bytes/s
	goodRTT        = 100 * time.Millisecond

	// Weight of a new throughput sample in the moving average.
	sampleWeight = 0.3
)

// ChunkSizeFor maps a tier to the chunk size used for it.
func ChunkSizeFor(q Quality) int64 {
	switch q {
	case Good:
		return ChunkSizeGood
	case Fair:
		return ChunkSizeFair
	default:
		return ChunkSizePoor
	}
}

// Classify derives the tier from connectivity, hints and a measured
// throughput in bytes per second (zero when nothing was measured yet).
func Classify(online bool, h Hints, throughput float64) Quality {
	switch {
	case !online:
		return Offline
	case throughput > goodThroughput || (h.EffectiveType == Effective4G && h.RTT < goodRTT):
		return Good
	case throughput > fairThroughput || h.EffectiveType == Effective3G:
		return Fair
	default:
		return Poor
	}
}

// Estimator is safe for concurrent use.
type Estimator struct {
	mu         sync.RWMutex
	online     bool
	hints      Hints
	throughput float64
}

// NewEstimator starts online with a 4g hint and no throughput sample.
func NewEstimator() *Estimator {
	return &Estimator{online: true, hints: Hints{EffectiveType: Effective4G, DownlinkMbps: 10}}
}

func (e *Estimator) SetHints(h Hints) {
	e.mu.Lock()
	e.hints = h
	e.mu.Unlock()
}

func (e *Estimator) SetOnline(online bool) {
	e.mu.Lock()
	e.online = online
	e.mu.Unlock()
}

func (e *Estimator) Online() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.online
}

func (e *Estimator) Hints() Hints {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hints
}

// ReportUploadMetric feeds one observed transfer into the throughput
// average. Samples with a non-positive duration are ignored.
func (e *Estimator) ReportUploadMetric(bytes int64, d time.Duration) {
	if d <= 0 || bytes < 0 {
		return
	}
	rate := float64(bytes) / d.Seconds()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.throughput == 0 {
		e.throughput = rate
		return
	}
	e.throughput = e.throughput*(1-sampleWeight) + rate*sampleWeight
}

// Throughput is the smoothed upload rate in bytes per second, or zero.
func (e *Estimator) Throughput() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.throughput
}

func (e *Estimator) Quality() Quality {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Classify(e.online, e.hints, e.throughput)
}

func (e *Estimator) RecommendedChunkSize() int64 {
	return ChunkSizeFor(e.Quality())
}
