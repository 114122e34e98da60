package ui

import (
	"fmt"
	"io"
	"path"
	"time"

	"github.com/bamsammich/arcfs/internal/event"
	"github.com/bamsammich/arcfs/internal/stats"
)

// ANSI escape sequences.
const (
	ansiDim   = "\033[2m"
	ansiReset = "\033[0m"
)

const (
	sparklineWidth = 20
	hudLines       = 2
	hudMinInterval = 50 * time.Millisecond // don't redraw faster than this
)

// hudPresenter provides a TTY display: an optional scrolling feed of
// finished files and a 2-line HUD that redraws in place.
type hudPresenter struct {
	w     io.Writer
	stats *stats.Collector
	width int
	feed  bool

	current     string
	size        int64
	done        int64 // bytes of the current file
	hudDrawn    bool
	lastHUDDraw time.Time
}

func (p *hudPresenter) Run(events <-chan event.Event) error {
	// Fire first tick quickly to seed the ring buffer with initial speed data,
	// then switch to 1s interval.
	secTicker := time.NewTicker(250 * time.Millisecond)
	defer secTicker.Stop()
	firstTickDone := false

	// Redraw ticker for when no events are flowing (e.g., a throttled copy).
	redrawTicker := time.NewTicker(100 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()

		case <-redrawTicker.C:
			p.drawHUD()

		case <-secTicker.C:
			p.stats.Tick()
			if !firstTickDone {
				firstTickDone = true
				secTicker.Reset(time.Second)
			}
		}
	}
}

func (p *hudPresenter) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.EnterFile:
		p.current, p.size, p.done = ev.Path, ev.Size, 0

	case event.ProcessData:
		p.done += ev.Size

	case event.ExitFile:
		if p.feed {
			p.clearHUD()
			fmt.Fprintf(p.w, "✓  %s  %10s\n", styledPath(ev.Path), FormatBytes(p.size))
			p.drawHUD() // always redraw HUD after feed line
		}
		p.current, p.size, p.done = "", 0, 0

	case event.EnterDir:
		if p.current == "" {
			p.current = ev.Path + "/"
		}
	}
}

// maybeDrawHUD redraws the HUD if enough time has passed since the last draw.
func (p *hudPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *hudPresenter) drawHUD() {
	snap := p.stats.Snapshot()
	p.clearHUD()

	// Line 1: throughput sparkline + speed + totals.
	spark := Sparkline(p.stats.SparklineData(sparklineWidth), sparklineWidth)
	fmt.Fprintf(p.w, "  %s   %s   %s   %s files   %s skipped\n",
		spark, FormatRate(p.stats.RollingSpeed(10)),
		FormatBytes(snap.BytesCopied), FormatCount(snap.FilesCopied), FormatCount(snap.Skipped))

	// Line 2: the entry in flight.
	line := p.current
	if p.size > 0 {
		pct := float64(p.done) / float64(p.size) * 100
		line = fmt.Sprintf("%3.0f%%  %s", min(pct, 100), line)
	}
	fmt.Fprintf(p.w, "  %s%s%s\n", ansiDim, truncPath(line, max(p.width-3, 10)), ansiReset)

	p.hudDrawn = true
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	// Move cursor up N lines and clear to end of screen.
	fmt.Fprintf(p.w, "\033[%dA\033[J", hudLines)
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

// styledPath returns the path with the directory portion dimmed and the
// filename in normal weight, making the actual filename stand out.
func styledPath(name string) string {
	dir, base := path.Split(name)
	if dir == "" {
		return base
	}
	return fmt.Sprintf("%s%s%s%s", ansiDim, dir, ansiReset, base)
}
