package ui

import (
	"io"

	"github.com/bamsammich/arcfs/internal/event"
	"github.com/bamsammich/arcfs/internal/stats"
)

// Presenter consumes progress events and displays them.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan event.Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer     io.Writer
	ErrWriter  io.Writer
	Stats      *stats.Collector
	Width      int // terminal width for the HUD; 0 means 80
	IsTTY      bool
	Quiet      bool
	Verbose    bool
	NoProgress bool
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return quietPresenter{}
	}
	if !cfg.IsTTY || cfg.NoProgress {
		return &plainPresenter{
			w:       cfg.Writer,
			errW:    cfg.ErrWriter,
			stats:   cfg.Stats,
			verbose: cfg.Verbose,
		}
	}
	width := cfg.Width
	if width <= 0 {
		width = 80
	}
	return &hudPresenter{
		w:     cfg.ErrWriter, // HUD renders to stderr (the TTY)
		stats: cfg.Stats,
		feed:  cfg.Verbose,
		width: width,
	}
}

// quietPresenter drains events and prints nothing.
type quietPresenter struct{}

func (quietPresenter) Run(events <-chan event.Event) error {
	for range events { //nolint:revive // draining
	}
	return nil
}

func (quietPresenter) Summary() string { return "" }
