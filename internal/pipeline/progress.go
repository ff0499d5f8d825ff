package pipeline

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// progressReporter logs run progress at a bounded rate instead of once per
// item, so large catalogs do not flood the console.
type progressReporter struct {
	mu       sync.Mutex
	log      *logrus.Entry
	total    int
	done     int
	failed   int
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func newProgressReporter(log *logrus.Entry, total int, interval time.Duration) *progressReporter {
	return &progressReporter{
		log:      log,
		total:    total,
		interval: interval,
		now:      time.Now,
	}
}

func (p *progressReporter) record(res ItemResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if res.Err != nil {
		p.failed++
	}

	// always report the final item; otherwise rate-limit
	if p.done < p.total && p.now().Sub(p.last) < p.interval {
		return
	}
	p.last = p.now()
	p.log.WithFields(logrus.Fields{
		"done":   p.done,
		"total":  p.total,
		"failed": p.failed,
	}).Info("progress")
}
