package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/arcfs/internal/event"
	"github.com/bamsammich/arcfs/internal/stats"
)

func TestHudPresenterFeed(t *testing.T) {
	var out bytes.Buffer
	p := &hudPresenter{w: &out, stats: stats.NewCollector(), width: 80, feed: true}

	require.NoError(t, p.Run(feed(
		event.New(event.EnterFile, "some/dir/file.txt", 2048),
		event.New(event.ProcessData, "some/dir/file.txt", 2048),
		event.New(event.ExitFile, "some/dir/file.txt", 0),
	)))

	s := out.String()
	assert.Contains(t, s, "✓")
	assert.Contains(t, s, ansiDim+"some/dir/"+ansiReset+"file.txt")
	assert.Contains(t, s, "2.0 KiB")
}

func TestHudPresenterNoFeed(t *testing.T) {
	var out bytes.Buffer
	p := &hudPresenter{w: &out, stats: stats.NewCollector(), width: 80}

	require.NoError(t, p.Run(feed(
		event.New(event.EnterFile, "a.txt", 10),
		event.New(event.ExitFile, "a.txt", 0),
	)))
	assert.NotContains(t, out.String(), "✓")
}

func TestHudPresenterTracksCurrentFile(t *testing.T) {
	var out bytes.Buffer
	p := &hudPresenter{w: &out, stats: stats.NewCollector(), width: 80}

	p.handleEvent(event.New(event.EnterFile, "big.bin", 400))
	p.handleEvent(event.New(event.ProcessData, "big.bin", 100))
	p.drawHUD()

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, hudLines)
	assert.Contains(t, lines[1], " 25%  big.bin")

	p.handleEvent(event.New(event.ExitFile, "big.bin", 0))
	assert.Empty(t, p.current)
}

func TestHudPresenterClearsBeforeRedraw(t *testing.T) {
	var out bytes.Buffer
	p := &hudPresenter{w: &out, stats: stats.NewCollector(), width: 80}

	p.drawHUD()
	p.drawHUD()
	assert.Equal(t, 1, strings.Count(out.String(), "\033[2A\033[J"))

	out.Reset()
	p.clearHUD()
	p.clearHUD()
	assert.Equal(t, "\033[2A\033[J", out.String())
}

func TestStyledPath(t *testing.T) {
	assert.Equal(t, "file.txt", styledPath("file.txt"))
	assert.Equal(t, ansiDim+"a/b/"+ansiReset+"c", styledPath("a/b/c"))
}
