package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/arcfs/internal/stats"
)

func TestFormatRate(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{0, "0 B/s"},
		{-1, "0 B/s"},
		{512, "512 B/s"},
		{1024, "1.0 KiB/s"},
		{1.5 * 1024 * 1024, "1.5 MiB/s"},
		{100 * 1024, "100 KiB/s"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRate(tt.input))
		})
	}
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", FormatCount(0))
	assert.Equal(t, "999", FormatCount(999))
	assert.Equal(t, "1,000", FormatCount(1000))
	assert.Equal(t, "-12,345", FormatCount(-12345))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input time.Duration
		want  string
	}{
		{0, "0s"},
		{1500 * time.Millisecond, "2s"},
		{90 * time.Second, "1m 30s"},
		{3661 * time.Second, "1h 01m 01s"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.input))
		})
	}
}

func TestCompletionSummary(t *testing.T) {
	ok := CompletionSummary(stats.Snapshot{FilesCopied: 1204, BytesCopied: 2048, Elapsed: 2 * time.Second})
	assert.Contains(t, ok, "done ✓")
	assert.Contains(t, ok, "files 1,204")
	assert.Contains(t, ok, "size 2.0 KiB")
	assert.Contains(t, ok, "avg 1.0 KiB/s")
	assert.NotContains(t, ok, "renamed")
	assert.Contains(t, ok, "errors 0")

	bad := CompletionSummary(stats.Snapshot{Renamed: 3, Removed: 2, Skipped: 1, Failed: 1})
	assert.Contains(t, bad, "done ✗")
	assert.Contains(t, bad, "renamed 3")
	assert.Contains(t, bad, "removed 2")
	assert.Contains(t, bad, "skipped 1  errors 1")
}

func TestTruncPath(t *testing.T) {
	assert.Equal(t, "short", truncPath("short", 10))
	assert.Equal(t, "...efghij", truncPath("abcdefghij", 9))
	assert.Equal(t, "ab", truncPath("abcdef", 2))
}
