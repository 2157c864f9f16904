// Package usage describes embedding token consumption reports.
package usage

import "time"

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodTotal Period = "total"
)

// ParsePeriod maps a query value to a Period. Empty means PeriodMonth.
func ParsePeriod(s string) (Period, bool) {
	switch Period(s) {
	case "":
		return PeriodMonth, true
	case PeriodDay, PeriodMonth, PeriodTotal:
		return Period(s), true
	default:
		return "", false
	}
}

// Budget is the token allowance for a period. A zero Limit is unlimited.
type Budget struct {
	Limit     int64
	Remaining int64 // -1 when unlimited
	Exhausted bool
	Action    string
	ResetsAt  time.Time
}

// Report is the embedding token usage of one provider over a period.
// Start and End are zero for PeriodTotal.
type Report struct {
	Period     Period
	Start      time.Time
	End        time.Time
	Provider   string
	Model      string
	TokensUsed int64
	Budget     Budget
}
