package rollup

// ScoreBucket classifies a 0-100 resilience score into one of five fixed
// bands, grounded on app/services/bucketing.py, used by the disclosure
// report's bucket-total testable property.
func ScoreBucket(score int) string {
	switch {
	case score <= 19:
		return "0_19"
	case score <= 39:
		return "20_39"
	case score <= 59:
		return "40_59"
	case score <= 79:
		return "60_79"
	default:
		return "80_100"
	}
}
