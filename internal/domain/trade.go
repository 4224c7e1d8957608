package domain

import "time"

// TradePlanItem is a monetary buy/sell intent produced by the rebalancing
// strategy. The amount is expressed in currency rather than units because the
// execution price is only resolved later, when the plan settles.
type TradePlanItem struct {
	Security *Security
	// Amount in currency units; positive buys, negative sells.
	Amount float64
}

// TradeOrder is a plan item resolved against a trading day: unit quantity at
// a concrete price with a concrete fee. Produced and settled by the executor.
type TradeOrder struct {
	Security *Security
	Date     time.Time
	// Units is the unsigned quantity; Sell carries the direction.
	Units float64
	Price float64
	Fee   float64
	Sell  bool
}

// Value is the gross monetary size of the order, excluding the fee.
func (o TradeOrder) Value() float64 {
	return o.Units * o.Price
}
