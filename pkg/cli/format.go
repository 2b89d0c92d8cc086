package cli

import "fmt"

// FormatFrames renders a frame count as a duration, assuming the given
// sample period in 100ns units (100000 = 10ms frames).
func FormatFrames(frames, samplePeriod int) string {
	if samplePeriod == 0 {
		samplePeriod = 100000
	}
	ms := int64(frames) * int64(samplePeriod) / 10000
	return FormatDuration(ms)
}

// FormatDuration formats milliseconds as a human readable duration.
func FormatDuration(ms int64) string {
	switch {
	case ms < 1000:
		return fmt.Sprintf("%dms", ms)
	case ms < 60_000:
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	case ms < 3_600_000:
		return fmt.Sprintf("%dm%ds", ms/60_000, ms%60_000/1000)
	default:
		return fmt.Sprintf("%dh%dm", ms/3_600_000, ms%3_600_000/60_000)
	}
}

// FormatBytes formats a byte count as a human readable size.
func FormatBytes(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.2f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.2f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
