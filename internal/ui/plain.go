package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/arcfs/internal/event"
	"github.com/bamsammich/arcfs/internal/stats"
)

// plainPresenter prints one line per finished file to stdout when verbose,
// and periodic progress to stderr.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   *stats.Collector
	sizes   map[string]int64
	verbose bool
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	p.sizes = make(map[string]int64)
	progress := time.NewTicker(5 * time.Second)
	defer progress.Stop()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-tick.C:
			p.stats.Tick()
		case <-progress.C:
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.EnterFile:
		p.sizes[ev.Path] = ev.Size
	case event.ExitFile:
		size := p.sizes[ev.Path]
		delete(p.sizes, ev.Path)
		if p.verbose {
			fmt.Fprintf(p.w, "%s  %s\n", ev.Path, FormatBytes(size))
		}
	case event.ExitDir:
		if p.verbose {
			fmt.Fprintf(p.w, "%s/\n", ev.Path)
		}
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	fmt.Fprintf(p.errW, "progress: %s copied %s files %s\n",
		FormatBytes(snap.BytesCopied),
		FormatCount(snap.FilesCopied),
		FormatRate(p.stats.RollingSpeed(10)),
	)
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}
