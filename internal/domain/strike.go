package domain

// StrikeRecord tracks short-notice cancellations for a user within one
// calendar month. YearMonth is formatted "2006-01"; a month with no record
// counts as zero strikes.
type StrikeRecord struct {
	UserID            string
	YearMonth         string
	Count             int
	LastPenaltyAmount float64
}
