package config

import (
	"strings"
	"testing"

	"github.com/dantezy/p2p-quoter/internal/p2p"
)

const sampleYAML = `
p2p:
  token: USDT
  currency: PLN
  total: ${TEST_P2P_TOTAL}
  price_gap: 0.05
sides:
  buy:
    fallback_price: 3.9
    check_order_num: true
    min_total_orders: 50
    check_price_neighbors: false
  SELL:
    fallback_price: 4.1
    price_gap: 0.02
    check_sell_vs_buy_gap: true
    target_nicknames: [alice, bob]
    check_target_nicknames: true
messages:
  status_10:
    BUY: "Hi, paying now"
    SELL: ""
  status_20:
    sell:
      - "Thanks, checking the payment"
      - "Released"
`

func parseSample(t *testing.T) *Config {
	t.Helper()
	t.Setenv("TEST_P2P_TOTAL", "1500")

	cfg := &Config{DatabaseDriver: DriverMemory}
	if err := cfg.parse([]byte(sampleYAML)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return cfg
}

func TestParse_EnvSubstitutionAndDefaults(t *testing.T) {
	cfg := parseSample(t)

	if cfg.P2P.Total != 1500 {
		t.Errorf("total = %v, want 1500 from env", cfg.P2P.Total)
	}
	if cfg.P2P.PollIntervalSeconds != defaultPollInterval {
		t.Errorf("poll interval = %d, want default %d", cfg.P2P.PollIntervalSeconds, defaultPollInterval)
	}
	if cfg.P2P.BuyTag != "#B" || cfg.P2P.SellTag != "#S" {
		t.Errorf("tags = %q/%q", cfg.P2P.BuyTag, cfg.P2P.SellTag)
	}
	if len(cfg.P2P.TerminalStatuses) != 3 {
		t.Errorf("terminal statuses = %v", cfg.P2P.TerminalStatuses)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestParse_SideConfig(t *testing.T) {
	cfg := parseSample(t)

	buy := cfg.Side(p2p.SideBuy)
	if buy.Side != p2p.SideBuy {
		t.Errorf("buy side = %v", buy.Side)
	}
	if !buy.CheckOrderNum || buy.MinTotalOrders != 50 {
		t.Errorf("buy order rule not decoded: %+v", buy)
	}
	if buy.UseNeighbors() {
		t.Error("buy neighbors should be disabled")
	}
	if got := buy.Gap().String(); got != "0.05" {
		t.Errorf("buy gap = %s, want global 0.05", got)
	}
	if buy.MinPaymentMatches != 1 {
		t.Errorf("min payment matches default = %d, want 1", buy.MinPaymentMatches)
	}
	if _, ok := buy.Fixed(); ok {
		t.Error("buy has no fixed price")
	}

	sell := cfg.Side(p2p.SideSell)
	if !sell.UseNeighbors() {
		t.Error("sell neighbors should default to enabled")
	}
	if got := sell.Gap().String(); got != "0.02" {
		t.Errorf("sell gap = %s, want override 0.02", got)
	}
	if sell.MinGapPercent != defaultSellGap {
		t.Errorf("sell min gap = %v, want %v", sell.MinGapPercent, defaultSellGap)
	}
	if strings.Join(sell.TargetNicknames, ",") != "alice,bob" {
		t.Errorf("targets = %v", sell.TargetNicknames)
	}
}

func TestParse_Messages(t *testing.T) {
	cfg := parseSample(t)

	if got := cfg.Messages.For(p2p.OrderStatusAwaitingPayment, p2p.SideBuy); len(got) != 1 || got[0] != "Hi, paying now" {
		t.Errorf("buy status 10 = %v", got)
	}
	if got := cfg.Messages.For(p2p.OrderStatusAwaitingPayment, p2p.SideSell); len(got) != 0 {
		t.Errorf("empty template should disable the message, got %v", got)
	}
	if got := cfg.Messages.For(p2p.OrderStatusAwaitingRelease, p2p.SideSell); len(got) != 2 {
		t.Errorf("sell status 20 = %v, want 2 messages", got)
	}
	if got := cfg.Messages.For(p2p.OrderStatusCompleted, p2p.SideSell); got != nil {
		t.Errorf("status 50 has no templates, got %v", got)
	}
}

func TestParse_ExplicitZeroKeepsValue(t *testing.T) {
	data := `
p2p:
  token: USDT
  currency: PLN
  price_step: 0
sides:
  BUY:
    fallback_price: 3.9
    min_payment_matches: 0
  SELL:
    fallback_price: 4.1
    check_sell_vs_buy_gap: true
    min_gap_percent: 0
`
	cfg := &Config{DatabaseDriver: DriverMemory}
	if err := cfg.parse([]byte(data)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.P2P.PriceStep != 0 {
		t.Errorf("price step = %v, want explicit 0", cfg.P2P.PriceStep)
	}
	if cfg.P2P.PageSize != defaultPageSize {
		t.Errorf("page size = %d, want default %d for an omitted key", cfg.P2P.PageSize, defaultPageSize)
	}
	if got := cfg.Side(p2p.SideBuy).MinPaymentMatches; got != 0 {
		t.Errorf("min payment matches = %d, want explicit 0", got)
	}
	sell := cfg.Side(p2p.SideSell)
	if sell.MinGapPercent != 0 {
		t.Errorf("sell min gap = %v, want explicit 0", sell.MinGapPercent)
	}
	if sell.MinPaymentMatches != 1 {
		t.Errorf("sell min payment matches = %d, want default 1 for an omitted key", sell.MinPaymentMatches)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestParse_UnknownSide(t *testing.T) {
	cfg := &Config{}
	err := cfg.parse([]byte("sides:\n  HOLD:\n    fallback_price: 1\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown side") {
		t.Fatalf("expected unknown side error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing token", func(c *Config) { c.P2P.Token = "" }, "p2p.token"},
		{"same tags", func(c *Config) { c.P2P.SellTag = c.P2P.BuyTag }, "must differ"},
		{"missing side", func(c *Config) { delete(c.Sides, p2p.SideSell) }, "missing side config for SELL"},
		{"negative fallback", func(c *Config) {
			sc := c.Sides[p2p.SideBuy]
			sc.FallbackPrice = -1
			c.Sides[p2p.SideBuy] = sc
		}, "fallback_price"},
		{"sell gap on buy", func(c *Config) {
			sc := c.Sides[p2p.SideBuy]
			sc.CheckSellVsBuyGap = true
			c.Sides[p2p.SideBuy] = sc
		}, "only applies to SELL"},
		{"sqlite without dsn", func(c *Config) { c.DatabaseDriver = DriverSQLite }, "DATABASE_DSN"},
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "redis" }, "unknown DATABASE_DRIVER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parseSample(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
