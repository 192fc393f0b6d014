package orders

import (
	"fmt"
	"time"
)

type StatsBucket struct {
	Status        Status
	PaymentStatus PaymentStatus
	Count         int
	Amount        int64
}

type Stats struct {
	Period            string                `json:"period"`
	TotalOrders       int                   `json:"totalOrders"`
	TotalRevenue      int64                 `json:"totalRevenue"`
	AverageOrderValue int64                 `json:"averageOrderValue"`
	ConversionRate    float64               `json:"conversionRate"`
	ByStatus          map[Status]int        `json:"byStatus"`
	ByPaymentStatus   map[PaymentStatus]int `json:"byPaymentStatus"`
}

var statsPeriods = map[string]time.Duration{
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
	"1y":  365 * 24 * time.Hour,
}

// PeriodStart resolves a stats period to its lower bound. "all" and ""
// return the zero time.
func PeriodStart(period string, now time.Time) (time.Time, error) {
	if period == "" || period == "all" {
		return time.Time{}, nil
	}
	d, ok := statsPeriods[period]
	if !ok {
		return time.Time{}, NewValidationError(fmt.Sprintf("unknown stats period %q", period), "period")
	}
	return now.Add(-d), nil
}

// Summarize folds buckets into order stats. Revenue counts paid orders only.
func Summarize(period string, buckets []StatsBucket) Stats {
	if period == "" {
		period = "all"
	}
	s := Stats{
		Period:          period,
		ByStatus:        map[Status]int{},
		ByPaymentStatus: map[PaymentStatus]int{},
	}
	paid := 0
	for _, b := range buckets {
		s.TotalOrders += b.Count
		s.ByStatus[b.Status] += b.Count
		s.ByPaymentStatus[b.PaymentStatus] += b.Count
		if b.PaymentStatus == PaymentPaid {
			s.TotalRevenue += b.Amount
			paid += b.Count
		}
	}
	if paid > 0 {
		s.AverageOrderValue = s.TotalRevenue / int64(paid)
	}
	if s.TotalOrders > 0 {
		s.ConversionRate = float64(paid) / float64(s.TotalOrders) * 100
	}
	return s
}
