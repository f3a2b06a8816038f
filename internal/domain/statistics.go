package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatisticsPeriod names a reporting window.
type StatisticsPeriod string

const (
	StatisticsPeriodToday     StatisticsPeriod = "today"
	StatisticsPeriodYesterday StatisticsPeriod = "yesterday"
	StatisticsPeriodWeek      StatisticsPeriod = "week"
	StatisticsPeriodMonth     StatisticsPeriod = "month"
	StatisticsPeriodCustom    StatisticsPeriod = "custom"
)

// StatisticsWindow is a closed interval of calendar days in the business time zone.
// Start is the first instant of the first day, End the last instant of the last day.
type StatisticsWindow struct {
	Period StatisticsPeriod
	Start  time.Time
	End    time.Time
}

// Contains reports whether t falls inside the window, both ends inclusive.
func (w StatisticsWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// AmountBucket pairs a count with a monetary sum.
type AmountBucket struct {
	Count int
	Total decimal.Decimal
}

// DailySales is one day of the sales series.
type DailySales struct {
	Date   string
	Orders int
	Total  decimal.Decimal
}

// SalesRanking is a ranked entry for categories, products and options.
type SalesRanking struct {
	ID       string
	Name     string
	Quantity int
	Revenue  decimal.Decimal
}

// CustomerRanking aggregates orders per customer phone.
type CustomerRanking struct {
	Phone         string
	Name          string
	Orders        int
	Spent         decimal.Decimal
	AverageTicket decimal.Decimal
}

// CustomerBucket counts customers whose order count falls in a bucket such as "2-3".
type CustomerBucket struct {
	Bucket    string
	Customers int
}

// OrderStatistics is the aggregated report for a tenant over a window.
type OrderStatistics struct {
	TenantID             string
	Window               StatisticsWindow
	TotalOrders          int
	TotalSales           decimal.Decimal
	AverageTicket        decimal.Decimal
	MinTicket            decimal.Decimal
	MaxTicket            decimal.Decimal
	ByStatus             map[OrderStatus]AmountBucket
	ByPaymentMethod      map[PaymentMethod]AmountBucket
	DailySales           []DailySales
	TopCategories        []SalesRanking
	TopProducts          []SalesRanking
	TopOptions           []SalesRanking
	TopCustomers         []CustomerRanking
	CustomerDistribution []CustomerBucket
	GeneratedAt          time.Time
}
