package utils

import "fmt"

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatFileSize renders a byte count with one decimal, e.g. "1.5 MB".
// Sizes past the last unit stay in GB.
func FormatFileSize(size int64) string {
	if size < 1024 {
		return fmt.Sprintf("%d B", size)
	}
	value := float64(size)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", value, sizeUnits[unit])
}
