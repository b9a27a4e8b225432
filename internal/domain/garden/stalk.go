package garden

import (
	"crypto/hmac"
	"crypto/sha256"
	"time"
)

// stalkDayFormat keys the price to the local calendar day.
const stalkDayFormat = "2006-01-02"

// StalkPrice derives the member's corn price for the calendar day of t.
// The price is a pure function of (user, day): stable all day, different
// per user, never stored anywhere.
func StalkPrice(userID string, t time.Time) int {
	mac := hmac.New(sha256.New, []byte(userID))
	mac.Write([]byte(t.Format(stalkDayFormat)))
	sum := mac.Sum(nil)
	n := int(sum[len(sum)-1])

	switch {
	case n < 100:
		return 1
	case n < 175:
		return 2
	case n < 200:
		return 4
	case n < 230:
		return 8
	case n < 245:
		return 16
	case n < 253:
		return 32
	default:
		return 64
	}
}

// StalkPrices lists every value the ladder can produce.
var StalkPrices = []int{1, 2, 4, 8, 16, 32, 64}
