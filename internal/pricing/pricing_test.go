package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dantezy/p2p-quoter/internal/config"
	"github.com/dantezy/p2p-quoter/internal/p2p"
	"github.com/dantezy/p2p-quoter/internal/rules"
)

func listing(id, nick, price string) p2p.Listing {
	return p2p.Listing{ID: id, NickName: nick, Price: p2p.Number(price), RecentOrderNum: "100"}
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func floatPtr(f float64) *float64 { return &f }

func boolPtr(b bool) *bool { return &b }

func newResolver() *Resolver {
	return NewResolver(rules.NewEngine(nil), nil)
}

func TestFindNeighbor_DirectionAntisymmetry(t *testing.T) {
	low := listing("1", "A", "100")
	high := listing("2", "B", "100.5")
	pool := []p2p.Listing{low, high}
	gap := d("1.0")

	tests := []struct {
		name      string
		candidate p2p.Listing
		side      p2p.Side
		want      bool
	}{
		{"sell lower price matches higher neighbor", low, p2p.SideSell, true},
		{"sell higher price has no neighbor above", high, p2p.SideSell, false},
		{"buy higher price matches lower neighbor", high, p2p.SideBuy, true},
		{"buy lower price has no neighbor below", low, p2p.SideBuy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasQualifyingNeighbor(tt.candidate, pool, gap, tt.side); got != tt.want {
				t.Errorf("HasQualifyingNeighbor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFindNeighbor_Rules(t *testing.T) {
	candidate := listing("1", "A", "10.00")

	tests := []struct {
		name     string
		pool     []p2p.Listing
		wantID   string
		wantFind bool
	}{
		{"same owner is skipped", []p2p.Listing{listing("2", "A", "10.01")}, "", false},
		{"outside gap", []p2p.Listing{listing("2", "B", "10.11")}, "", false},
		{"exactly at gap", []p2p.Listing{listing("2", "B", "10.10")}, "2", true},
		{"equal price qualifies", []p2p.Listing{listing("2", "B", "10.00")}, "2", true},
		{"first match in pool order wins", []p2p.Listing{
			listing("2", "B", "10.05"),
			listing("3", "C", "10.01"),
		}, "2", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindNeighbor(candidate, tt.pool, d("0.10"), p2p.SideSell)
			if ok != tt.wantFind {
				t.Fatalf("found = %v, want %v", ok, tt.wantFind)
			}
			if ok && got.ID != tt.wantID {
				t.Errorf("neighbor = %s, want %s", got.ID, tt.wantID)
			}
		})
	}
}

func TestResolve_FixedPriceWinsOnEmptyPool(t *testing.T) {
	cfg := config.SideConfig{FixedPrice: floatPtr(4.2), FallbackPrice: 3.5}

	res := newResolver().Resolve(nil, cfg, p2p.SideSell)

	if res.Strategy != StrategyFixed || !res.Price.Equal(d("4.2")) {
		t.Errorf("got %s at %s, want fixed 4.2", res.Strategy, res.Price)
	}
}

func TestResolve_EmptyFilteredPoolReturnsFallback(t *testing.T) {
	cfg := config.SideConfig{FallbackPrice: 3.5, CheckOrderNum: true, MinTotalOrders: 1000}
	pool := []p2p.Listing{listing("1", "A", "4.00"), listing("2", "B", "4.01")}

	res := newResolver().Resolve(pool, cfg, p2p.SideBuy)

	if res.Strategy != StrategyNoEligible || !res.Price.Equal(d("3.5")) {
		t.Errorf("got %s at %s, want fallback 3.5", res.Strategy, res.Price)
	}
	if len(res.Rejections) != 2 {
		t.Errorf("rejections = %d, want 2", len(res.Rejections))
	}
}

func TestResolve_SellNeighborScenario(t *testing.T) {
	cfg := config.SideConfig{FallbackPrice: 90, PriceGap: floatPtr(0.5)}
	pool := []p2p.Listing{listing("1", "A", "99.0"), listing("2", "B", "99.3")}

	r := newResolver()
	res := r.Resolve(pool, cfg, p2p.SideSell)

	if !res.Price.Equal(d("99.0")) {
		t.Fatalf("price = %s, want 99.0", res.Price)
	}
	if res.Strategy != StrategyNeighbor {
		t.Errorf("strategy = %s, want %s", res.Strategy, StrategyNeighbor)
	}
	if res.Candidate == nil || res.Candidate.NickName != "A" {
		t.Errorf("candidate = %+v, want A", res.Candidate)
	}
	if res.Neighbor == nil || res.Neighbor.NickName != "B" {
		t.Errorf("neighbor = %+v, want B", res.Neighbor)
	}
	if got := r.ResolvePrice(pool, cfg, p2p.SideSell); !got.Equal(d("99.0")) {
		t.Errorf("ResolvePrice() = %s, want 99.0", got)
	}
}

func TestResolve_DecisionTable(t *testing.T) {
	pool := []p2p.Listing{
		listing("1", "lonely", "5.00"),
		listing("2", "other", "4.00"),
		listing("3", "other2", "4.02"),
		listing("4", "target2", "4.50"),
		listing("5", "target1", "4.60"),
		listing("6", "mate", "4.61"),
	}

	tests := []struct {
		name         string
		cfg          config.SideConfig
		pool         []p2p.Listing
		wantStrategy Strategy
		wantPrice    string
	}{
		{
			name:         "plain neighbor search over filtered pool",
			cfg:          config.SideConfig{FallbackPrice: 1, PriceGap: floatPtr(0.05)},
			pool:         pool,
			wantStrategy: StrategyNeighbor,
			wantPrice:    "4.00",
		},
		{
			name:         "first eligible without neighbors",
			cfg:          config.SideConfig{FallbackPrice: 1, CheckPriceNeighbors: boolPtr(false)},
			pool:         pool,
			wantStrategy: StrategyFirstEligible,
			wantPrice:    "5.00",
		},
		{
			name: "targeted neighbor by priority",
			cfg: config.SideConfig{
				FallbackPrice: 1, PriceGap: floatPtr(0.05),
				CheckTargetNicknames: true, TargetNicknames: []string{"target1", "target2"},
			},
			pool:         pool,
			wantStrategy: StrategyTargetNeighbor,
			wantPrice:    "4.60",
		},
		{
			name: "targets without neighbors fall through to others",
			cfg: config.SideConfig{
				FallbackPrice: 1, PriceGap: floatPtr(0.05),
				CheckTargetNicknames: true, TargetNicknames: []string{"target2"},
			},
			pool:         pool,
			wantStrategy: StrategyOtherNeighbor,
			wantPrice:    "4.00",
		},
		{
			name: "first targeted by priority without neighbors",
			cfg: config.SideConfig{
				FallbackPrice: 1, CheckPriceNeighbors: boolPtr(false),
				CheckTargetNicknames: true, TargetNicknames: []string{"target1", "target2"},
			},
			pool:         pool,
			wantStrategy: StrategyFirstTarget,
			wantPrice:    "4.60",
		},
		{
			name: "first other when no target is present",
			cfg: config.SideConfig{
				FallbackPrice: 1, CheckPriceNeighbors: boolPtr(false),
				CheckTargetNicknames: true, TargetNicknames: []string{"ghost"},
			},
			pool:         pool,
			wantStrategy: StrategyFirstOther,
			wantPrice:    "5.00",
		},
		{
			name:         "fallback when no listing has a neighbor",
			cfg:          config.SideConfig{FallbackPrice: 3.33, PriceGap: floatPtr(0.001)},
			pool:         pool,
			wantStrategy: StrategyFallback,
			wantPrice:    "3.33",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newResolver().Resolve(tt.pool, tt.cfg, p2p.SideSell)
			if res.Strategy != tt.wantStrategy {
				t.Errorf("strategy = %s, want %s", res.Strategy, tt.wantStrategy)
			}
			if !res.Price.Equal(d(tt.wantPrice)) {
				t.Errorf("price = %s, want %s", res.Price, tt.wantPrice)
			}
		})
	}
}

func TestResolve_SellGapUsesReference(t *testing.T) {
	cfg := config.SideConfig{
		FallbackPrice:     9,
		PriceGap:          floatPtr(1),
		CheckSellVsBuyGap: true,
		MinGapPercent:     0.015,
		ReferenceBuyPrice: d("4.00"),
	}
	pool := []p2p.Listing{
		listing("1", "cheap", "4.01"),
		listing("2", "ok", "4.10"),
		listing("3", "ok2", "4.12"),
	}

	res := newResolver().Resolve(pool, cfg, p2p.SideSell)

	if !res.Price.Equal(d("4.10")) {
		t.Errorf("price = %s, want 4.10", res.Price)
	}
	if len(res.Rejections) != 1 || res.Rejections[0].Rule != rules.NameSellGap {
		t.Errorf("rejections = %+v", res.Rejections)
	}
}

func TestSplitTargets(t *testing.T) {
	pool := []p2p.Listing{
		listing("1", "b", "1"),
		listing("2", "x", "1"),
		listing("3", "a", "1"),
		listing("4", "b", "1"),
	}

	targeted, others := SplitTargets(pool, []string{"a", "b"})

	var ids string
	for _, l := range targeted {
		ids += l.ID
	}
	if ids != "314" {
		t.Errorf("targeted order = %s, want 314", ids)
	}
	if len(others) != 1 || others[0].ID != "2" {
		t.Errorf("others = %+v", others)
	}
}

func TestQuote(t *testing.T) {
	step := d("0.01")

	tests := []struct {
		name  string
		price string
		side  p2p.Side
		want  string
	}{
		{"buy steps above", "4.05", p2p.SideBuy, "4.06"},
		{"sell steps below", "4.05", p2p.SideSell, "4.04"},
		{"rounds to venue precision", "4.0549", p2p.SideBuy, "4.06"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Quote(d(tt.price), tt.side, step, 2); !got.Equal(d(tt.want)) {
				t.Errorf("Quote() = %s, want %s", got, tt.want)
			}
		})
	}

	fixed := Resolution{Price: d("4.123"), Strategy: StrategyFixed}
	if got := fixed.Quote(p2p.SideSell, step, 2); !got.Equal(d("4.123")) {
		t.Errorf("fixed quote = %s, want verbatim 4.123", got)
	}
}
