package analytics

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{
	"hour_start", "entries", "average_dwell_seconds",
	"average_occupancy", "peak_occupancy", "capacity_hits",
}

// WriteCSV writes one row per bucket with a header row
func WriteCSV(w io.Writer, buckets []Bucket) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, b := range buckets {
		row := []string{
			b.Start.UTC().Format(time.RFC3339),
			strconv.Itoa(b.Entries),
			strconv.FormatFloat(b.AverageDwell.Seconds(), 'f', 1, 64),
			strconv.FormatFloat(b.AverageOccupancy, 'f', 2, 64),
			strconv.Itoa(b.PeakOccupancy),
			strconv.Itoa(b.CapacityHits),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
