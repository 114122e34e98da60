package ui

import "slices"

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders the last width samples of data as block characters,
// scaled to the largest of them. Missing samples pad the left edge.
func Sparkline(data []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}
	peak := 0.0
	if len(data) > 0 {
		peak = slices.Max(data)
	}

	out := make([]rune, width)
	pad := width - len(data)
	for i := range out {
		out[i] = sparkBlocks[0]
		if i < pad || peak <= 0 {
			continue
		}
		if v := data[i-pad]; v > 0 {
			idx := min(int(v/peak*float64(len(sparkBlocks)-1)), len(sparkBlocks)-1)
			out[i] = sparkBlocks[idx]
		}
	}
	return string(out)
}
