package netquality

import (
	"context"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/logging"
)

// Pinger checks that the server answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HintsFromRTT derives an effective connection class from a measured round
// trip, using the same cut-offs browsers apply.
func HintsFromRTT(rtt time.Duration) Hints {
	h := Hints{RTT: rtt}
	switch {
	case rtt >= 2000*time.Millisecond:
		h.EffectiveType = EffectiveSlow2G
	case rtt >= 1400*time.Millisecond:
		h.EffectiveType = Effective2G
	case rtt >= 270*time.Millisecond:
		h.EffectiveType = Effective3G
	default:
		h.EffectiveType = Effective4G
	}
	return h
}

// Watcher periodically pings the server and keeps the estimator's
// connectivity and hints current.
type Watcher struct {
	est      *Estimator
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	log      logging.Logger
	now      func() time.Time
}

func NewWatcher(est *Estimator, p Pinger, interval time.Duration, log logging.Logger) *Watcher {
	if log == nil {
		log = logging.NewNop()
	}
	return &Watcher{est: est, pinger: p, interval: interval, timeout: 3 * time.Second, log: log, now: time.Now}
}

// Probe pings once and updates the estimator.
func (w *Watcher) Probe(ctx context.Context) Quality {
	before := w.est.Quality()

	pctx, cancel := context.WithTimeout(ctx, w.timeout)
	start := w.now()
	err := w.pinger.Ping(pctx)
	rtt := w.now().Sub(start)
	cancel()

	if err != nil {
		w.est.SetOnline(false)
	} else {
		w.est.SetOnline(true)
		w.est.SetHints(HintsFromRTT(rtt))
	}

	after := w.est.Quality()
	if after != before {
		w.log.Info(ctx, "network quality changed", "from", before.String(), "to", after.String(), "rtt", rtt)
	}
	if err != nil {
		w.log.Debug(ctx, "ping failed", "error", err)
	}
	return after
}

// Run probes on every tick until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}
