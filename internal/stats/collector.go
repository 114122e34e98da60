package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

const ringSize = 60

// Collector tracks tree operation statistics using lock-free atomic counters.
type Collector struct {
	startTime    time.Time
	filesCopied  atomic.Int64
	bytesCopied  atomic.Int64
	dirsCreated  atomic.Int64
	linksCreated atomic.Int64
	skipped      atomic.Int64
	renamed      atomic.Int64
	removed      atomic.Int64
	failed       atomic.Int64

	// Ring buffer, written only by the presenter's Tick.
	mu         sync.Mutex
	throughput [ringSize]int64 // bytes delta per second
	ringIdx    int
	ringCount  int
	lastBytes  int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesCopied  int64
	BytesCopied  int64
	DirsCreated  int64
	LinksCreated int64
	Skipped      int64
	Renamed      int64
	Removed      int64
	Failed       int64
	Elapsed      time.Duration
}

// The Add methods are nil-safe so callers can run without a collector.

func (c *Collector) AddFilesCopied(n int64) {
	if c != nil {
		c.filesCopied.Add(n)
	}
}

func (c *Collector) AddBytesCopied(n int64) {
	if c != nil {
		c.bytesCopied.Add(n)
	}
}

func (c *Collector) AddDirsCreated(n int64) {
	if c != nil {
		c.dirsCreated.Add(n)
	}
}

func (c *Collector) AddLinksCreated(n int64) {
	if c != nil {
		c.linksCreated.Add(n)
	}
}

func (c *Collector) AddSkipped(n int64) {
	if c != nil {
		c.skipped.Add(n)
	}
}

func (c *Collector) AddRenamed(n int64) {
	if c != nil {
		c.renamed.Add(n)
	}
}

func (c *Collector) AddRemoved(n int64) {
	if c != nil {
		c.removed.Add(n)
	}
}

func (c *Collector) AddFailed(n int64) {
	if c != nil {
		c.failed.Add(n)
	}
}

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesCopied:  c.filesCopied.Load(),
		BytesCopied:  c.bytesCopied.Load(),
		DirsCreated:  c.dirsCreated.Load(),
		LinksCreated: c.linksCreated.Load(),
		Skipped:      c.skipped.Load(),
		Renamed:      c.renamed.Load(),
		Removed:      c.removed.Load(),
		Failed:       c.failed.Load(),
		Elapsed:      c.Elapsed(),
	}
}

// Tick snapshots the byte delta into the ring buffer. Called 1/sec by the presenter.
func (c *Collector) Tick() {
	current := c.bytesCopied.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = current - c.lastBytes
	c.lastBytes = current
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(seconds, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += c.throughput[idx]
	}
	return float64(sum) / float64(count)
}

// SparklineData returns up to n per-second throughput samples, oldest first.
func (c *Collector) SparklineData(n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	out := make([]float64, count)
	for i := range count {
		idx := (c.ringIdx - count + i + ringSize) % ringSize
		out[i] = float64(c.throughput[idx])
	}
	return out
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"files=%d bytes=%d dirs=%d links=%d skipped=%d renamed=%d removed=%d failed=%d",
		s.FilesCopied, s.BytesCopied, s.DirsCreated, s.LinksCreated,
		s.Skipped, s.Renamed, s.Removed, s.Failed,
	)
}

// Summary is the one-line human readable completion report.
func (s Snapshot) Summary() string {
	line := fmt.Sprintf("%s files, %s in %s",
		humanize.Comma(s.FilesCopied), FormatBytes(s.BytesCopied), s.Elapsed.Round(time.Millisecond))
	if s.Renamed > 0 {
		line += fmt.Sprintf(", %s renamed", humanize.Comma(s.Renamed))
	}
	if s.Removed > 0 {
		line += fmt.Sprintf(", %s removed", humanize.Comma(s.Removed))
	}
	if s.Skipped > 0 {
		line += fmt.Sprintf(", %s skipped", humanize.Comma(s.Skipped))
	}
	return line
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}
