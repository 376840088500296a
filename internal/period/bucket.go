// Package period groups dated balance rows into week and month buckets
// for the report browsers.
package period

import (
	"sort"
	"time"
)

// DayRef is one daily-balance row as seen by the bucketer.
type DayRef struct {
	ID   int64
	Date time.Time
}

// WeekBucket is a Sunday-start week and the balance rows inside it.
type WeekBucket struct {
	Start   time.Time
	IDs     []int64
	MinDate time.Time
	MaxDate time.Time
}

// WeekStart returns the Sunday on or before d.
func WeekStart(d time.Time) time.Time {
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	// Monday=0 .. Sunday=6
	wd := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -((wd + 1) % 7))
}

// GroupByWeek buckets rows by week start, ascending. Every input row lands in
// exactly one bucket; IDs keep their input order within a bucket.
func GroupByWeek(days []DayRef) []WeekBucket {
	byStart := make(map[time.Time]*WeekBucket)
	for _, day := range days {
		start := WeekStart(day.Date)
		b, ok := byStart[start]
		if !ok {
			b = &WeekBucket{Start: start, MinDate: day.Date, MaxDate: day.Date}
			byStart[start] = b
		}
		b.IDs = append(b.IDs, day.ID)
		if day.Date.Before(b.MinDate) {
			b.MinDate = day.Date
		}
		if day.Date.After(b.MaxDate) {
			b.MaxDate = day.Date
		}
	}

	buckets := make([]WeekBucket, 0, len(byStart))
	for _, b := range byStart {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Start.Before(buckets[j].Start)
	})
	return buckets
}

// MonthsIn lists the distinct months of the given year present in days,
// ascending. Membership is resolved at read time by a year+month query, so no
// bucket object is materialized here.
func MonthsIn(days []DayRef, year int) []time.Month {
	seen := make(map[time.Month]bool)
	for _, day := range days {
		if day.Date.Year() == year {
			seen[day.Date.Month()] = true
		}
	}
	months := make([]time.Month, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i] < months[j] })
	return months
}
