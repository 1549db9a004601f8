package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// TTLSearch - symbol search results are close to static
	TTLSearch = 7 * 24 * time.Hour
	// TTLHistory - daily closes only gain one bar per trading day
	TTLHistory = 12 * time.Hour
	// TTLNews - headlines are time-sensitive signals
	TTLNews = time.Hour
	// TTLQuote - current price cache for batch operations
	TTLQuote = 10 * time.Minute
)
