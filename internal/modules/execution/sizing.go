package execution

import (
	"autohedge/internal/modules/config"

	"github.com/pkg/errors"
)

// Errors callers of the order pipeline branch on. Both abandon the
// request; neither is retried at this layer.
var (
	ErrNoMarketData      = errors.New("execution: no market data")
	ErrInsufficientFunds = errors.New("execution: insufficient funds")
)

// buyingPowerSafetyMargin keeps a buffer for fees and slippage.
const buyingPowerSafetyMargin = 0.95

// ComputeOrderSizing turns buying power into an order quantity. The
// notional starts at target_balance_pct of buying power, is clamped to
// the per-symbol [min, max] window and capped at 95% of buying power.
func ComputeOrderSizing(cfg *config.Config, symbol string, price, buyingPower float64) (qty, notional float64, err error) {
	if price <= 0 {
		return 0, 0, ErrNoMarketData
	}

	minAmount := cfg.Defaults.MinOrderAmount
	maxAmount := cfg.MaxOrderAmount(symbol)

	notional = cfg.Defaults.TargetBalancePct * buyingPower
	if notional < minAmount {
		notional = minAmount
	}
	if notional > maxAmount {
		notional = maxAmount
	}
	if ceiling := buyingPowerSafetyMargin * buyingPower; notional > ceiling {
		notional = ceiling
	}
	if notional < minAmount {
		return 0, 0, errors.Wrapf(ErrInsufficientFunds, "notional %.2f below minimum %.2f", notional, minAmount)
	}
	return notional / price, notional, nil
}

// AggressiveLimitPrice nudges the mid toward the touch to improve fill
// odds without crossing it.
func AggressiveLimitPrice(side string, mid, bid, ask, aggressionBps float64) float64 {
	if side == "sell" {
		price := mid * (1 - aggressionBps/10000)
		if price < bid {
			price = bid
		}
		return price
	}
	price := mid * (1 + aggressionBps/10000)
	if price > ask {
		price = ask
	}
	return price
}
