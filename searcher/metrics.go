package searcher

import (
	"sync/atomic"
	"time"
)

// SearchMetric summarizes one search for logging and experiments.
type SearchMetric struct {
	Goroutines     int
	StartTime      time.Time
	Duration       time.Duration
	Simulations    int64
	Collisions     int64
	TerminalVisits int64
	CacheHits      int64
	TreeReused     bool
}

// Collector gathers per-search counters from concurrent workers.
type Collector interface {
	Start(goroutines int)
	AddSimulation()
	AddCollision()
	AddTerminalVisit()
	AddCacheHit()
	SetTreeReused(reused bool)
	Complete() SearchMetric
}

type collector struct {
	goroutines     int
	startTime      time.Time
	simulations    atomic.Int64
	collisions     atomic.Int64
	terminalVisits atomic.Int64
	cacheHits      atomic.Int64
	treeReused     atomic.Bool
}

func NewCollector() Collector {
	return &collector{}
}

func (c *collector) Start(goroutines int) {
	c.goroutines = goroutines
	c.startTime = time.Now()
}

func (c *collector) AddSimulation()    { c.simulations.Add(1) }
func (c *collector) AddCollision()     { c.collisions.Add(1) }
func (c *collector) AddTerminalVisit() { c.terminalVisits.Add(1) }
func (c *collector) AddCacheHit()      { c.cacheHits.Add(1) }

func (c *collector) SetTreeReused(reused bool) { c.treeReused.Store(reused) }

func (c *collector) Complete() SearchMetric {
	return SearchMetric{
		Goroutines:     c.goroutines,
		StartTime:      c.startTime,
		Duration:       time.Since(c.startTime),
		Simulations:    c.simulations.Load(),
		Collisions:     c.collisions.Load(),
		TerminalVisits: c.terminalVisits.Load(),
		CacheHits:      c.cacheHits.Load(),
		TreeReused:     c.treeReused.Load(),
	}
}

type dummyCollector struct{}

// NewDummyCollector returns a collector that records nothing.
func NewDummyCollector() Collector { return dummyCollector{} }

func (dummyCollector) Start(int)              {}
func (dummyCollector) AddSimulation()         {}
func (dummyCollector) AddCollision()          {}
func (dummyCollector) AddTerminalVisit()      {}
func (dummyCollector) AddCacheHit()           {}
func (dummyCollector) SetTreeReused(bool)     {}
func (dummyCollector) Complete() SearchMetric { return SearchMetric{} }
