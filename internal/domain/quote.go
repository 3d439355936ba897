package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is a spot SUI/USD conversion rate. Fetched fresh for every payment flow
// and never persisted.
type PriceQuote struct {
	Rate      decimal.Decimal // USD per SUI
	FetchedAt time.Time
}
