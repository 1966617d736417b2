package metrics

import (
	"os"
	"runtime"
	"sync"
	"time"
)

// FleetStats feeds the agent gauges.
type FleetStats struct {
	ByStatus map[string]int
}

// Providers are the read-only sources the collector polls for gauge
// values. Nil funcs are skipped.
type Providers struct {
	Projects      func() int
	Subscriptions func() int
	Fleet         func() FleetStats
}

// Collector periodically refreshes system and domain gauges.
type Collector struct {
	metrics     *Metrics
	providers   Providers
	storagePath string
	interval    time.Duration
	startTime   time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a collector polling every interval. The
// storage path is stat'ed for the database size gauge.
func NewCollector(m *Metrics, providers Providers, storagePath string, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		metrics:     m,
		providers:   providers,
		storagePath: storagePath,
		interval:    interval,
		startTime:   time.Now(),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the polling loop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop halts the polling loop and waits for it to exit.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) collect() {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if fi, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(fi.Size()))
		}
	}

	if c.providers.Projects != nil {
		c.metrics.Projects.Set(float64(c.providers.Projects()))
	}
	if c.providers.Subscriptions != nil {
		c.metrics.WatchSubscriptions.Set(float64(c.providers.Subscriptions()))
	}
	if c.providers.Fleet != nil {
		stats := c.providers.Fleet()
		c.metrics.AgentsByStatus.Reset()
		for status, n := range stats.ByStatus {
			c.metrics.AgentsByStatus.WithLabelValues(status).Set(float64(n))
		}
	}
}
