// copied from https://github.com/golang/go/issues/19810#issuecomment-291170511
package main

import (
	"time"

	log "github.com/sirupsen/logrus"
)

const logInterval = 30 * time.Second

type wallTicker struct {
	C            <-chan time.Time
	align        time.Duration
	offset       time.Duration
	stop         chan bool
	c            chan time.Time
	skew         float64
	d            time.Duration
	last         time.Time
	skippedTicks int64
	lastLogTime  time.Time
}

func newWallTicker(align, offset time.Duration) *wallTicker {
	now := time.Now()
	w := &wallTicker{
		align:       align,
		offset:      offset,
		stop:        make(chan bool),
		c:           make(chan time.Time, 1),
		skew:        1.0,
		lastLogTime: now,
	}
	w.C = w.c
	w.start()
	return w
}

func (w *wallTicker) start() {
	now := time.Now()
	d := time.Until(now.Add(-w.offset).Add(w.align * 4 / 3).Truncate(w.align).Add(w.offset))
	d = time.Duration(float64(d) / w.skew)
	w.d = d
	w.last = now

	updateWallTickerMetrics(w.skew)

	time.AfterFunc(d, w.tick)
}

func (w *wallTicker) tick() {
	const alpha = 0.7
	now := time.Now()
	if now.After(w.last) {
		w.skew = w.skew*alpha + (float64(now.Sub(w.last))/float64(w.d))*(1-alpha)

		select {
		case <-w.stop:
			return
		case w.c <- now:
		default:
			w.skippedTicks++
			if now.Sub(w.lastLogTime) >= logInterval {
				if w.skippedTicks > 0 {
					log.WithField("skipped_ticks", w.skippedTicks).Warnf("dropped %d ticks in the last %v", w.skippedTicks, logInterval)
					w.skippedTicks = 0
				}
				w.lastLogTime = now
			}
		}
	}
	w.start()
}

func (w *wallTicker) Stop() {
	close(w.stop)
}
