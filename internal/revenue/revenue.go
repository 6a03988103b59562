package revenue

import (
	"sort"
	"time"

	"printshop/internal/models"
)

// Pricing holds the per-copy rate and the share of revenue booked as
// expenses. Placeholder business rule carried from the dashboard; injectable
// so a real pricing policy can replace it without touching aggregation.
type Pricing struct {
	UnitRate     float64
	ExpenseRatio float64
}

var DefaultPricing = Pricing{UnitRate: 2, ExpenseRatio: 0.5}

// Bucket is the per-day aggregate shown on the revenue dashboard.
type Bucket struct {
	Date     string  `json:"date"`
	Orders   int     `json:"orders"`
	Revenue  float64 `json:"revenue"`
	Expenses float64 `json:"expenses"`
	Profit   float64 `json:"profit"`
}

// Aggregate recomputes daily buckets from a full order snapshot. An order
// counts as revenue-bearing when it is paid or already terminal; the
// inclusive OR catches legacy rows with an inconsistent payment_status.
// Buckets come back sorted ascending by date.
func Aggregate(orders []*models.Order, pricing Pricing, loc *time.Location) []Bucket {
	if loc == nil {
		loc = time.Local
	}
	byDate := make(map[string]*Bucket)
	for _, o := range orders {
		if !o.Paid() && !models.ParseStatus(string(o.Status)).Terminal() {
			continue
		}
		date := o.CreatedAt.In(loc).Format("2006-01-02")
		b, ok := byDate[date]
		if !ok {
			b = &Bucket{Date: date}
			byDate[date] = b
		}
		copies := o.Copies
		if copies < 1 {
			copies = 1
		}
		orderRevenue := float64(copies) * pricing.UnitRate
		b.Orders++
		b.Revenue += orderRevenue
		b.Expenses += orderRevenue * pricing.ExpenseRatio
		b.Profit += orderRevenue * (1 - pricing.ExpenseRatio)
	}

	out := make([]Bucket, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
