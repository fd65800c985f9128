// Package analytics summarises entry and exit logs: dwell time, average
// and peak occupancy, and how often the space was full.
package analytics

import (
	"time"

	"github.com/teslashibe/go-occupancy/pkg/occupancy"
	"github.com/teslashibe/go-occupancy/pkg/tracking"
)

// Summary describes one span of the log
type Summary struct {
	Entries          int           `json:"entries"`
	AverageDwell     time.Duration `json:"average_dwell"`
	AverageOccupancy float64       `json:"average_occupancy"`
	PeakOccupancy    int           `json:"peak_occupancy"`
	CapacityHits     int           `json:"capacity_hits"` // times occupancy equalled the max
}

// Bucket is the summary of one clock hour
type Bucket struct {
	Start time.Time `json:"start"`
	Summary
}

// Trim drops trailing records from the longer slice so that entries and
// exits pair up one-to-one. Inputs are not modified.
func Trim(entries, exits []time.Duration) ([]time.Duration, []time.Duration) {
	n := min(len(entries), len(exits))
	return entries[:n:n], exits[:n:n]
}

// OccupancyLog merges the offsets in time order and returns the head count
// after each one. On ties the entry is applied first.
func OccupancyLog(entries, exits []time.Duration) []int {
	out := make([]int, 0, len(entries)+len(exits))
	count, i, j := 0, 0, 0
	for i < len(entries) || j < len(exits) {
		if i < len(entries) && (j >= len(exits) || entries[i] <= exits[j]) {
			count++
			i++
		} else {
			count--
			j++
		}
		out = append(out, count)
	}
	return out
}

// Summarize trims the log and computes its statistics.
// An empty log gives a zero Summary.
func Summarize(entries, exits []time.Duration, maxCapacity int) Summary {
	entries, exits = Trim(entries, exits)
	if len(entries) == 0 {
		return Summary{}
	}

	var dwell time.Duration
	for i := range entries {
		dwell += exits[i] - entries[i]
	}

	s := Summary{
		Entries:      len(entries),
		AverageDwell: dwell / time.Duration(len(entries)),
	}

	occ := OccupancyLog(entries, exits)
	total := 0
	for _, c := range occ {
		total += c
		if c > s.PeakOccupancy {
			s.PeakOccupancy = c
		}
		if maxCapacity > 0 && c == maxCapacity {
			s.CapacityHits++
		}
	}
	s.AverageOccupancy = float64(total) / float64(len(occ))

	return s
}

// Hourly splits the log into consecutive one-hour buckets from start up to
// the hour of the last record, summarising each independently.
func Hourly(start time.Time, entries, exits []time.Duration, maxCapacity int) []Bucket {
	var last time.Duration = -1
	for _, d := range entries {
		last = max(last, d)
	}
	for _, d := range exits {
		last = max(last, d)
	}
	if last < 0 {
		return nil
	}

	hours := int(last/time.Hour) + 1
	hourEntries := splitByHour(entries, hours)
	hourExits := splitByHour(exits, hours)

	buckets := make([]Bucket, hours)
	for h := range buckets {
		buckets[h] = Bucket{
			Start:   start.Add(time.Duration(h) * time.Hour),
			Summary: Summarize(hourEntries[h], hourExits[h], maxCapacity),
		}
	}
	return buckets
}

func splitByHour(offsets []time.Duration, hours int) [][]time.Duration {
	out := make([][]time.Duration, hours)
	for _, d := range offsets {
		if d < 0 {
			continue
		}
		h := int(d / time.Hour)
		out[h] = append(out[h], d)
	}
	return out
}

// SplitRecords separates stored crossings into entry and exit offsets
func SplitRecords(records []occupancy.Record) (entries, exits []time.Duration) {
	for _, r := range records {
		switch r.Kind {
		case tracking.PersonEntered:
			entries = append(entries, r.Offset)
		case tracking.PersonExited:
			exits = append(exits, r.Offset)
		}
	}
	return entries, exits
}

// Report is the analytics view of one stored session
type Report struct {
	SessionID   string    `json:"session_id"`
	Start       time.Time `json:"start"`
	MaxCapacity int       `json:"max_capacity"`
	Summary     Summary   `json:"summary"`
	Hourly      []Bucket  `json:"hourly"`
}

// BuildReport summarises a session and its stored crossings
func BuildReport(sess occupancy.Session, records []occupancy.Record) Report {
	entries, exits := SplitRecords(records)
	return Report{
		SessionID:   sess.ID,
		Start:       sess.StartedAt,
		MaxCapacity: sess.MaxCapacity,
		Summary:     Summarize(entries, exits, sess.MaxCapacity),
		Hourly:      Hourly(sess.StartedAt, entries, exits, sess.MaxCapacity),
	}
}
