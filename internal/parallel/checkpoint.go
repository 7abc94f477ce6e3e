package parallel

import (
	"sync"
	"time"

	"github.com/mwiater/aibff/internal/logging"
	"github.com/mwiater/aibff/internal/metrics"
	"github.com/mwiater/aibff/internal/report"
)

const (
	DefaultCheckpointEvery    = 10
	DefaultCheckpointInterval = 5 * time.Second
)

// Checkpointer persists ledger snapshots while a run is in progress. A
// checkpoint fires after Every completions or once Interval has passed with
// unsaved results, whichever comes first. Writes never overlap and a failed
// write leaves the results marked unsaved.
type Checkpointer struct {
	ledger   *Ledger
	writer   report.Writer
	build    func(Snapshot, bool) report.Summary
	every    int
	interval time.Duration
	now      func() time.Time

	mutex     sync.Mutex
	sinceLast int
	lastAt    time.Time
	saved     int
	writes    int
	failures  int

	writeMu sync.Mutex

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewCheckpointer returns a checkpointer over ledger. build turns a snapshot
// into the document handed to writer; its bool argument marks the final
// checkpoint.
func NewCheckpointer(ledger *Ledger, writer report.Writer, build func(Snapshot, bool) report.Summary, every int, interval time.Duration) *Checkpointer {
	if every <= 0 {
		every = DefaultCheckpointEvery
	}
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	c := &Checkpointer{
		ledger:   ledger,
		writer:   writer,
		build:    build,
		every:    every,
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.lastAt = c.now()
	return c
}

// Start launches the background ticker that covers the time trigger when no
// completions arrive.
func (c *Checkpointer) Start() {
	c.startOnce.Do(func() {
		period := c.interval / 2
		if period < 10*time.Millisecond {
			period = 10 * time.Millisecond
		}
		go c.loop(period)
	})
}

func (c *Checkpointer) loop(period time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if c.claim(false) {
				c.write(false)
			}
		}
	}
}

// Notify records one completed unit and checkpoints if a trigger fired.
func (c *Checkpointer) Notify() {
	if c.claim(true) {
		c.write(false)
	}
}

// claim decides under the lock whether a checkpoint is due and, if so,
// resets the triggers.
func (c *Checkpointer) claim(completed bool) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if completed {
		c.sinceLast++
	}
	dirty := c.ledger.Version() > c.saved
	due := c.sinceLast >= c.every || (dirty && c.now().Sub(c.lastAt) >= c.interval)
	if !due {
		return false
	}
	c.sinceLast = 0
	c.lastAt = c.now()
	return true
}

// Final stops the ticker and writes the closing checkpoint. It always
// writes, even when nothing changed since the last checkpoint.
func (c *Checkpointer) Final() error {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	c.startOnce.Do(func() { close(c.done) })
	<-c.done
	return c.write(true)
}

func (c *Checkpointer) write(final bool) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	snap := c.ledger.Snapshot()
	err := c.writer.Write(c.build(snap, final))
	metrics.RecordCheckpoint(err)

	c.mutex.Lock()
	if err == nil {
		if v := snap.Version(); v > c.saved {
			c.saved = v
		}
		c.writes++
	} else {
		c.failures++
	}
	c.mutex.Unlock()

	if err != nil {
		logging.LogWarning("checkpoint failed (completed=%d failed=%d total=%d): %v", snap.Completed, snap.Failed, snap.Total, err)
		return err
	}
	logging.LogEvent("[CHECKPOINT] saved results (completed=%d failed=%d total=%d final=%t)", snap.Completed, snap.Failed, snap.Total, final)
	return nil
}

// Writes returns the number of successful checkpoint writes.
func (c *Checkpointer) Writes() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.writes
}

// Failures returns the number of failed checkpoint writes.
func (c *Checkpointer) Failures() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.failures
}
