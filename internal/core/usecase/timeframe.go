package usecase

import (
	"strings"
	"time"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

type timeframeRule struct {
	phrases []string
	resolve func(now time.Time) (time.Time, time.Time)
}

// Rules are checked in order; the first phrase found wins.
var timeframeRules = []timeframeRule{
	{
		phrases: []string{"today"},
		resolve: func(now time.Time) (time.Time, time.Time) {
			return startOfDay(now), now
		},
	},
	{
		phrases: []string{"yesterday"},
		resolve: func(now time.Time) (time.Time, time.Time) {
			start := startOfDay(now.AddDate(0, 0, -1))
			end := time.Date(start.Year(), start.Month(), start.Day(), 23, 59, 59, int(999*time.Millisecond), now.Location())
			return start, end
		},
	},
	{
		phrases: []string{"last week", "past week"},
		resolve: func(now time.Time) (time.Time, time.Time) {
			return startOfDay(now.AddDate(0, 0, -7)), now
		},
	},
	{
		phrases: []string{"last month", "past month"},
		resolve: func(now time.Time) (time.Time, time.Time) {
			return startOfDay(now.AddDate(0, -1, 0)), now
		},
	},
	{
		phrases: []string{"this week"},
		resolve: func(now time.Time) (time.Time, time.Time) {
			return startOfDay(now.AddDate(0, 0, -int(now.Weekday()))), now
		},
	},
	{
		phrases: []string{"this month"},
		resolve: func(now time.Time) (time.Time, time.Time) {
			return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), now
		},
	},
}

// ParseTimeframe recognizes a fixed set of relative date phrases. It returns
// nil when none of them occurs in query.
func ParseTimeframe(query string, now time.Time) *domain.Timeframe {
	lower := strings.ToLower(query)
	for _, rule := range timeframeRules {
		for _, phrase := range rule.phrases {
			if !strings.Contains(lower, phrase) {
				continue
			}
			start, end := rule.resolve(now)
			return &domain.Timeframe{Start: &start, End: &end}
		}
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
