package fees

// Quote is a payout breakdown for withdrawing currentValue against a
// deposited basis. All amounts are in deposit-token units; no rounding
// is applied here, presentation rounding belongs to the caller.
type Quote struct {
	Basis        float64 `json:"basis"`
	CurrentValue float64 `json:"currentValue"`
	Yield        float64 `json:"yield"`
	YieldPercent float64 `json:"yieldPercent"`
	FeePercent   float64 `json:"feePercent"`
	Fee          float64 `json:"fee"`
	UserReceives float64 `json:"userReceives"`
}

// Yield returns currentValue minus basis. Negative when the position is
// at a loss.
func Yield(basis, currentValue float64) float64 {
	return currentValue - basis
}

// Fee returns the performance fee on realized yield. Fees are charged
// only on profit: a loss or break-even position pays nothing.
func Fee(yield, feePercent float64) float64 {
	if yield <= 0 {
		return 0
	}
	return yield * feePercent / 100
}

// YieldPercent returns yield relative to basis, or 0 for a zero basis.
func YieldPercent(basis, yield float64) float64 {
	if basis <= 0 {
		return 0
	}
	return yield / basis * 100
}

// Compute builds a full payout quote from basis, live value, and the
// product's fee percentage.
func Compute(basis, currentValue, feePercent float64) Quote {
	yield := Yield(basis, currentValue)
	fee := Fee(yield, feePercent)
	return Quote{
		Basis:        basis,
		CurrentValue: currentValue,
		Yield:        yield,
		YieldPercent: YieldPercent(basis, yield),
		FeePercent:   feePercent,
		Fee:          fee,
		UserReceives: currentValue - fee,
	}
}
