package services

import "github.com/shopspring/decimal"

var cent = decimal.New(1, -2)

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// roundMoney rounds half away from zero to two places, which is half-up for
// the non-negative amounts handled here.
func roundMoney(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// moneyDiffers reports whether two amounts differ by more than one cent.
func moneyDiffers(a, b float64) bool {
	return dec(a).Sub(dec(b)).Abs().GreaterThan(cent)
}
