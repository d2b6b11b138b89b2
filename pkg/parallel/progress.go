package parallel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultProgressInterval is used when NewProgress gets no interval.
const DefaultProgressInterval = 500 * time.Millisecond

// Progress reports a completed counter to a callback on a fixed interval
// and once more when stopped.
type Progress struct {
	total    int64
	done     atomic.Int64
	report   func(completed, total int64)
	interval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewProgress creates a Progress for total units of work. A nil report
// disables reporting but still counts.
func NewProgress(total int64, report func(completed, total int64), interval time.Duration) *Progress {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &Progress{
		total:    total,
		report:   report,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start reports in the background until Stop is called or ctx ends.
func (p *Progress) Start(ctx context.Context) {
	if p.report == nil {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-ticker.C:
				p.report(p.done.Load(), p.total)
			}
		}
	}()
}

// Add marks n more units complete.
func (p *Progress) Add(n int64) {
	p.done.Add(n)
}

// Completed returns the units completed so far.
func (p *Progress) Completed() int64 {
	return p.done.Load()
}

// Stop ends background reporting and delivers a final report. It is safe
// to call more than once.
func (p *Progress) Stop() {
	p.once.Do(func() {
		close(p.stop)
		p.wg.Wait()
		if p.report != nil {
			p.report(p.done.Load(), p.total)
		}
	})
}
