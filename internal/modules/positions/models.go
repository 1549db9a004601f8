// Package positions stores the held assets: one row per instrument per
// account, with the prices the valuation engine reads.
package positions

// Position is a single held instrument within an account.
// Currency covers purchase, current and previous price uniformly: the
// three are always re-quoted together, never mixed.
type Position struct {
	ID            int64   `json:"id"`
	AccountID     int64   `json:"account_id"`
	Name          string  `json:"name"`
	Identifier    string  `json:"identifier"` // Raw user input: ticker, ISIN or free text
	Symbol        string  `json:"symbol"`     // Canonical resolved symbol, empty until first resolution
	PurchasePrice float64 `json:"purchase_price"`
	Quantity      int64   `json:"quantity"`
	Fee           float64 `json:"fee"` // Flat fee in the quoting currency
	CurrentPrice  float64 `json:"current_price"`
	PreviousPrice float64 `json:"previous_price"` // Day-over-day baseline, not always a market close
	Currency      string  `json:"currency"`
	PurchaseDate  string  `json:"purchase_date"` // YYYY-MM-DD
}

// HistoryEntry is one persisted daily price for a position.
type HistoryEntry struct {
	PositionID int64   `json:"position_id"`
	Day        string  `json:"day"` // YYYY-MM-DD
	Price      float64 `json:"price"`
	Currency   string  `json:"currency"`
}
