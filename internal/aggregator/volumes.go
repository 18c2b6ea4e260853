package aggregator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

// Granularity selects the bucket width for volume aggregation.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// CumulativeVolumes sums a provider's daily series over trailing windows
// anchored at now: 7, 30, 90 days and all-time.
type CumulativeVolumes struct {
	Last7Days  decimal.Decimal `json:"last_7_days"`
	Last30Days decimal.Decimal `json:"last_30_days"`
	Last90Days decimal.Decimal `json:"last_90_days"`
	AllTime    decimal.Decimal `json:"all_time"`
}

// BucketVolumes groups a daily volume series into buckets keyed by ISO date:
// the day itself for daily, the Monday of the ISO week for weekly, the first
// of the month for monthly. Buckets come back in ascending key order.
func BucketVolumes(windows []types.VolumeWindow, granularity Granularity) []types.VolumeBucket {
	sums := make(map[string]decimal.Decimal)
	for _, w := range windows {
		key := bucketKey(w.Date, granularity)
		sums[key] = sums[key].Add(w.AmountUSD)
	}

	out := make([]types.VolumeBucket, 0, len(sums))
	for key, amount := range sums {
		out = append(out, types.VolumeBucket{Key: key, AmountUSD: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Cumulative computes trailing sums from now over a daily series. Days on or
// after the window start count; future-dated entries still count toward
// every window.
func Cumulative(windows []types.VolumeWindow, now time.Time) CumulativeVolumes {
	var c CumulativeVolumes
	day7 := now.AddDate(0, 0, -7)
	day30 := now.AddDate(0, 0, -30)
	day90 := now.AddDate(0, 0, -90)

	for _, w := range windows {
		c.AllTime = c.AllTime.Add(w.AmountUSD)
		if !w.Date.Before(day90) {
			c.Last90Days = c.Last90Days.Add(w.AmountUSD)
		}
		if !w.Date.Before(day30) {
			c.Last30Days = c.Last30Days.Add(w.AmountUSD)
		}
		if !w.Date.Before(day7) {
			c.Last7Days = c.Last7Days.Add(w.AmountUSD)
		}
	}
	return c
}

func bucketKey(date time.Time, granularity Granularity) string {
	d := date.UTC()
	switch granularity {
	case GranularityWeekly:
		return mondayOf(d).Format(time.DateOnly)
	case GranularityMonthly:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
	default:
		return d.Format(time.DateOnly)
	}
}

// mondayOf returns the Monday starting d's ISO week.
func mondayOf(d time.Time) time.Time {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
