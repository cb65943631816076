package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ScaleRawBalance interprets a raw integer balance string at the given accuracy,
// e.g. raw "150000000" with accuracy 8 is 1.5.
func ScaleRawBalance(raw string, accuracy int) (decimal.Decimal, error) {
	if accuracy < 0 {
		return decimal.Zero, fmt.Errorf("negative accuracy %d", accuracy)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing raw balance %q: %w", raw, err)
	}
	return d.Shift(int32(-accuracy)), nil
}
