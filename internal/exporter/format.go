package exporter

import (
	"strconv"
	"time"

	"hestonlab/internal/surface"
)

// formatFloat renders full precision; NaN becomes an empty cell
func formatFloat(f float64) string {
	return surface.FormatFloat(f)
}

func formatInt(i int) string {
	return strconv.Itoa(i)
}

func formatDate(t time.Time) string {
	return surface.FormatDate(t)
}
