package metrics

import (
	"time"
)

// Sampler reports the point-in-time values a Collector polls, decoupling
// this package from pkg/pager and pkg/mvcc (which would otherwise import
// pkg/metrics right back).
type Sampler interface {
	CacheSize() int
	MaxPages() int
}

// Collector periodically samples a Sampler (typically a *pager.Pager) into
// the pager cache gauges on a ticker, until Stop is called.
type Collector struct {
	sampler Sampler
	stopCh  chan struct{}
}

// NewCollector creates a metrics collector over sampler.
func NewCollector(sampler Sampler) *Collector {
	return &Collector{sampler: sampler, stopCh: make(chan struct{})}
}

// Start begins periodic sampling on a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	PagerCachePagesInUse.Set(float64(c.sampler.CacheSize()))
	PagerCachePagesMax.Set(float64(c.sampler.MaxPages()))
}
