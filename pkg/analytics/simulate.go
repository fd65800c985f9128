package analytics

import (
	"math/rand/v2"
	"slices"
	"time"
)

// Simulate generates plausible traffic for days x hours clock hours
// starting at start, for previewing long-term charts before real data
// exists. Each hour gets 40-70 visitors staying one to ten minutes, and
// the capacity is set just under the hour's visitor count.
func Simulate(r *rand.Rand, start time.Time, days, hours int) []Bucket {
	if days <= 0 || hours <= 0 {
		return nil
	}

	out := make([]Bucket, 0, days*hours)
	for d := range days {
		for h := range hours {
			entries, exits := simulateHour(r)
			out = append(out, Bucket{
				Start:   start.Add(time.Duration(d)*24*time.Hour + time.Duration(h)*time.Hour),
				Summary: Summarize(entries, exits, len(exits)-5),
			})
		}
	}
	return out
}

// simulateHour returns sorted entry and exit offsets in seconds
func simulateHour(r *rand.Rand) (entries, exits []time.Duration) {
	n := 40 + r.IntN(31)
	first := r.IntN(181)

	entries = make([]time.Duration, n)
	exits = make([]time.Duration, n)
	for i := range n {
		enter := first
		if i > 0 {
			enter = first + r.IntN(3000-first+1)
		}
		entries[i] = time.Duration(enter) * time.Second
		exits[i] = time.Duration(enter+60+r.IntN(541)) * time.Second
	}

	slices.Sort(entries)
	slices.Sort(exits)
	return entries, exits
}
