package listing

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Price is an amount paired with its ISO-4217 currency code. A Price is only
// ever built with both halves present.
type Price struct {
	Amount   decimal.Decimal
	Currency string `validate:"required,iso4217"`
}

type CategoryCandidate struct {
	ID   int
	Name string
}

// Snapshot is one observation of a listing as reported by the marketplace.
// All timestamps are UTC.
type Snapshot struct {
	ExternalID         string `validate:"required"`
	Title              string `validate:"required"`
	LeafCategoryID     *int
	CategoryCandidates []CategoryCandidate
	ImageURL           string
	SellerUsername     string `validate:"required"`
	Condition          string
	ShippingOptions    json.RawMessage
	BuyingOptions      json.RawMessage
	ListPrice          *Price
	CurrentBidPrice    *Price
	BidCount           int       `validate:"gte=0"`
	WebURL             string    `validate:"required,url"`
	OriginDate         time.Time `validate:"required"`
	ListedDate         time.Time `validate:"required"`
	EndDate            time.Time `validate:"required"`
}

// DisplayPrice returns the current bid when there is one, the list price otherwise.
func (s Snapshot) DisplayPrice() *Price {
	if s.CurrentBidPrice != nil {
		return s.CurrentBidPrice
	}
	return s.ListPrice
}
