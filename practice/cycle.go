package practice

import (
	"sync"
	"time"
)

// speechLevel is the RMS level above which a capture fragment counts as voice.
const speechLevel = 0.02

// cycle is the state of one record/evaluate round. Record builds a fresh one,
// so nothing from a previous attempt can leak into the next.
type cycle struct {
	id      uint64
	started time.Time

	// guarded by Controller.mu
	capturing bool

	mu      sync.Mutex
	live    Transcriber
	pending [][]byte // fragments captured before live was attached
	speech  bool     // voice seen since the last tick
	peak    float64

	watchDone chan struct{} // closed when the transcript watcher exits

	stopTicker chan struct{}
	tickerDone chan struct{}
	stopOnce   sync.Once
}

func newCycle(id uint64) *cycle {
	return &cycle{
		id:         id,
		started:    time.Now(),
		stopTicker: make(chan struct{}),
		tickerDone: make(chan struct{}),
	}
}

// observe runs on the capture goroutine for every fragment.
func (c *cycle) observe(chunk []byte, level float64) {
	c.mu.Lock()
	if level >= speechLevel {
		c.speech = true
	}
	c.peak = max(c.peak, level)
	live := c.live
	if live == nil {
		c.pending = append(c.pending, chunk)
	}
	c.mu.Unlock()
	if live != nil {
		live.Feed(chunk)
	}
}

// attach hands the transcriber every fragment captured so far.
func (c *cycle) attach(live Transcriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, chunk := range c.pending {
		live.Feed(chunk)
	}
	c.pending = nil
	c.live = live
}

func (c *cycle) transcriber() Transcriber {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// takeSpeech reports whether voice was heard since the previous call.
func (c *cycle) takeSpeech() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.speech
	c.speech = false
	return s
}

func (c *cycle) elapsed() float64 {
	return time.Since(c.started).Seconds()
}

func (c *cycle) peakLevel() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

// stopTicking ends the ticker goroutine and waits for it.
func (c *cycle) stopTicking() {
	c.stopOnce.Do(func() { close(c.stopTicker) })
	<-c.tickerDone
}
