package usage

import (
	"time"
)

// Record is one embedding call as seen by the usage accountant.
type Record struct {
	ID        string
	Operation string
	Provider  string
	Model     string
	Latency   time.Duration
	Tokens    Tokens
	Cost      Cost
	TenantID  string
	ContextID string
	Fallback  bool
	CreatedAt time.Time
}

// Tokens is the token usage reported (or estimated) for a call.
type Tokens struct {
	Input int
	Total int
}

// Cost is a snapshot of the price applied to a call.
type Cost struct {
	Amount          float64
	Currency        string
	PricePerMillion float64
	Known           bool
}

// Pricing maps model names to a price per million tokens. It is read-only after construction.
type Pricing struct {
	currency string
	perModel map[string]float64
}

// NewPricing copies the price table. Empty currency defaults to USD.
func NewPricing(currency string, perMillion map[string]float64) Pricing {
	if currency == "" {
		currency = "USD"
	}
	m := make(map[string]float64, len(perMillion))
	for k, v := range perMillion {
		m[k] = v
	}
	return Pricing{currency: currency, perModel: m}
}

// CostFor returns the cost of tokens for model. Unknown models get a zero, unknown cost.
func (p Pricing) CostFor(model string, tokens int) Cost {
	price, ok := p.perModel[model]
	if !ok {
		return Cost{Currency: p.currency}
	}
	return Cost{
		Amount:          float64(tokens) * price / 1_000_000,
		Currency:        p.currency,
		PricePerMillion: price,
		Known:           true,
	}
}

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodTotal Period = "total"
)

// IsValid reports whether p is a known period.
func (p Period) IsValid() bool {
	return p == PeriodDay || p == PeriodMonth || p == PeriodTotal
}

// Start returns the beginning of the period containing now (UTC). PeriodTotal starts at the epoch.
func (p Period) Start(now time.Time) time.Time {
	now = now.UTC()
	switch p {
	case PeriodDay:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Unix(0, 0).UTC()
	}
}

// Summary aggregates usage records of one tenant over a period.
type Summary struct {
	Period    Period
	From      time.Time
	To        time.Time
	TenantID  string
	Requests  int
	Fallbacks int
	Tokens    int
	CostUSD   float64
}

// Budget is a snapshot of the embedding token budget.
type Budget struct {
	TokensLimit     int64
	TokensRemaining int64
	IsExhausted     bool
	ResetsAt        time.Time
}
