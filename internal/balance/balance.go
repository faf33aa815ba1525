package balance

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dantezy/p2p-quoter/internal/p2p"
)

// Source supplies the balance inputs.
type Source interface {
	Balance(ctx context.Context, coin string) (decimal.Decimal, error)
	PendingOrders(ctx context.Context, side p2p.Side) ([]p2p.Order, error)
}

// Calculator derives how much of the traded asset each side may list.
type Calculator struct {
	coin     string
	total    decimal.Decimal
	terminal map[int]struct{}
	logger   *zap.Logger
}

// NewCalculator creates a calculator for coin with the given committable
// capital. Orders in a terminal status no longer reserve capital.
func NewCalculator(coin string, total decimal.Decimal, terminalStatuses []int, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	terminal := make(map[int]struct{}, len(terminalStatuses))
	for _, s := range terminalStatuses {
		terminal[s] = struct{}{}
	}
	return &Calculator{
		coin:     coin,
		total:    total,
		terminal: terminal,
		logger:   logger.Named("balance"),
	}
}

// IsTerminal reports whether an order status no longer reserves capital.
func (c *Calculator) IsTerminal(status int) bool {
	_, ok := c.terminal[status]
	return ok
}

// Reserved sums the volume of pending orders that are still in flight.
func (c *Calculator) Reserved(pending []p2p.Order) decimal.Decimal {
	sum := decimal.Zero
	for _, o := range pending {
		if c.IsTerminal(o.StatusCode()) {
			continue
		}
		sum = sum.Add(o.Volume())
	}
	return sum
}

// Available computes the listable quantity. SELL lists the custodial balance;
// BUY lists the remaining capital after custody and in-flight BUY orders,
// never below zero. Both are floored to whole units.
func (c *Calculator) Available(side p2p.Side, custodial decimal.Decimal, pending []p2p.Order) decimal.Decimal {
	if side == p2p.SideSell {
		return custodial.Floor()
	}

	free := c.total.Sub(custodial).Sub(c.Reserved(pending))
	if free.IsNegative() {
		return decimal.Zero
	}
	return free.Floor()
}

// Quantity fetches the inputs for side from src and returns Available. Any
// fetch error yields zero so the side is left untouched this tick.
func (c *Calculator) Quantity(ctx context.Context, side p2p.Side, src Source) decimal.Decimal {
	custodial, err := src.Balance(ctx, c.coin)
	if err != nil {
		c.logger.Error("failed to fetch balance", zap.String("coin", c.coin), zap.Error(err))
		return decimal.Zero
	}

	var pending []p2p.Order
	if side == p2p.SideBuy {
		pending, err = src.PendingOrders(ctx, p2p.SideBuy)
		if err != nil {
			c.logger.Error("failed to fetch pending orders", zap.Error(err))
			return decimal.Zero
		}
	}

	qty := c.Available(side, custodial, pending)
	c.logger.Info("available quantity",
		zap.Stringer("side", side),
		zap.Stringer("custodial", custodial),
		zap.Stringer("reserved", c.Reserved(pending)),
		zap.Stringer("total", c.total),
		zap.Stringer("quantity", qty),
	)
	return qty
}
