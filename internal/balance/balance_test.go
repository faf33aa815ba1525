package balance

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dantezy/p2p-quoter/internal/p2p"
)

var defaultTerminal = []int{p2p.OrderStatusCancelled, p2p.OrderStatusCompleted, p2p.OrderStatusExceptionCanceled}

type fakeSource struct {
	balance    decimal.Decimal
	balanceErr error
	orders     []p2p.Order
	ordersErr  error
	orderCalls int
}

func (f *fakeSource) Balance(context.Context, string) (decimal.Decimal, error) {
	return f.balance, f.balanceErr
}

func (f *fakeSource) PendingOrders(context.Context, p2p.Side) ([]p2p.Order, error) {
	f.orderCalls++
	return f.orders, f.ordersErr
}

func TestAvailable_BuyNetsInFlightOrders(t *testing.T) {
	calc := NewCalculator("USDT", decimal.NewFromInt(1000), defaultTerminal, nil)
	pending := []p2p.Order{
		{ID: "1", Status: "20", NotifyTokenQuantity: "300"},
	}

	got := calc.Available(p2p.SideBuy, decimal.NewFromInt(200), pending)
	if !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("available = %s, want 500", got)
	}

	pending[0].Status = "50"
	got = calc.Available(p2p.SideBuy, decimal.NewFromInt(200), pending)
	if !got.Equal(decimal.NewFromInt(800)) {
		t.Errorf("available after completion = %s, want 800", got)
	}
}

func TestReserved_SkipsTerminalStatuses(t *testing.T) {
	calc := NewCalculator("USDT", decimal.Zero, defaultTerminal, nil)
	pending := []p2p.Order{
		{Status: "10", NotifyTokenQuantity: "100"},
		{Status: "20", NotifyTokenQuantity: "200"},
		{Status: "30", Quantity: "5"},
		{Status: "40", NotifyTokenQuantity: "1000"},
		{Status: "80", NotifyTokenQuantity: "1000"},
	}

	if got := calc.Reserved(pending); !got.Equal(decimal.NewFromInt(305)) {
		t.Errorf("Reserved() = %s, want 305", got)
	}
}

func TestAvailable(t *testing.T) {
	tests := []struct {
		name      string
		side      p2p.Side
		total     int64
		custodial string
		pending   []p2p.Order
		want      string
	}{
		{"sell floors custody", p2p.SideSell, 1000, "212.99", nil, "212"},
		{"sell ignores pending", p2p.SideSell, 0, "50", []p2p.Order{{Status: "10", Quantity: "40"}}, "50"},
		{"buy never negative", p2p.SideBuy, 100, "80", []p2p.Order{{Status: "10", Quantity: "40"}}, "0"},
		{"buy floors result", p2p.SideBuy, 100, "10.4", nil, "89"},
		{"buy falls back to quantity", p2p.SideBuy, 100, "0", []p2p.Order{{Status: "20", Quantity: "30"}}, "70"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := NewCalculator("USDT", decimal.NewFromInt(tt.total), defaultTerminal, nil)
			got := calc.Available(tt.side, decimal.RequireFromString(tt.custodial), tt.pending)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Available() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestQuantity_FetchesInputs(t *testing.T) {
	calc := NewCalculator("USDT", decimal.NewFromInt(1000), defaultTerminal, nil)
	src := &fakeSource{
		balance: decimal.NewFromInt(200),
		orders:  []p2p.Order{{Status: "10", NotifyTokenQuantity: "300"}},
	}

	if got := calc.Quantity(context.Background(), p2p.SideBuy, src); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("buy quantity = %s, want 500", got)
	}

	src.orderCalls = 0
	if got := calc.Quantity(context.Background(), p2p.SideSell, src); !got.Equal(decimal.NewFromInt(200)) {
		t.Errorf("sell quantity = %s, want 200", got)
	}
	if src.orderCalls != 0 {
		t.Errorf("sell side fetched pending orders %d times", src.orderCalls)
	}
}

func TestQuantity_FetchErrorYieldsZero(t *testing.T) {
	calc := NewCalculator("USDT", decimal.NewFromInt(1000), defaultTerminal, nil)

	tests := []struct {
		name string
		src  *fakeSource
		side p2p.Side
	}{
		{"balance error", &fakeSource{balanceErr: errors.New("timeout")}, p2p.SideSell},
		{"pending orders error", &fakeSource{balance: decimal.NewFromInt(10), ordersErr: errors.New("timeout")}, p2p.SideBuy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calc.Quantity(context.Background(), tt.side, tt.src); !got.IsZero() {
				t.Errorf("Quantity() = %s, want 0", got)
			}
		})
	}
}
