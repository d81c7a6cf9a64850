package models

// PriceParams is the path binding for GET /price/:ticker.
type PriceParams struct {
	// Ticker is the security symbol exactly as it appeared in the path.
	// Pattern checks happen in the scraper so that every caller, not just
	// the HTTP handler, gets the same policy.
	Ticker string `uri:"ticker" binding:"required"`
}
