package config

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dantezy/p2p-quoter/internal/p2p"
)

// SideConfig is the per-direction eligibility and pricing configuration.
type SideConfig struct {
	// Pricing
	FixedPrice           *float64 `yaml:"fixed_price"`
	FallbackPrice        float64  `yaml:"fallback_price"`
	PriceGap             *float64 `yaml:"price_gap"`
	CheckPriceNeighbors  *bool    `yaml:"check_price_neighbors"`
	CheckTargetNicknames bool     `yaml:"check_target_nicknames"`
	TargetNicknames      []string `yaml:"target_nicknames"`

	// Eligibility rules
	CheckOrderNum         bool     `yaml:"check_order_num"`
	MinTotalOrders        float64  `yaml:"min_total_orders"`
	CheckPaymentMethods   bool     `yaml:"check_payment_methods"`
	AllowedPaymentTypes   []string `yaml:"allowed_payment_types"`
	MinPaymentMatches     int      `yaml:"min_payment_matches"`
	CheckMinBalance       bool     `yaml:"check_min_balance"`
	MinAmountThreshold    float64  `yaml:"min_amount_threshold"`
	CheckMinLimit         bool     `yaml:"check_min_limit"`
	MinLimitThreshold     float64  `yaml:"min_limit_threshold"`
	CheckLimitRange       bool     `yaml:"check_limit_range"`
	MinLimitRange         float64  `yaml:"min_limit_range"`
	CheckRegisterDays     bool     `yaml:"check_register_days"`
	MinRegisterDays       float64  `yaml:"min_register_days"`
	CheckMinOrders        bool     `yaml:"check_min_orders"`
	MinOrderCount         float64  `yaml:"min_order_count"`
	CheckCountryWhitelist bool     `yaml:"check_country_whitelist"`
	CountryWhitelist      []string `yaml:"country_whitelist"`
	CheckRemarkBlacklist  bool     `yaml:"check_remark_blacklist"`
	RemarkBlacklist       []string `yaml:"remark_blacklist"`
	CheckExcludeNicknames bool     `yaml:"check_exclude_nicknames"`
	ExcludeNicknames      []string `yaml:"exclude_nicknames"`
	CheckSellVsBuyGap     bool     `yaml:"check_sell_vs_buy_gap"`
	MinGapPercent         float64  `yaml:"min_gap_percent"`

	// Set at load time and per tick; never read from the file.
	Side              p2p.Side        `yaml:"-"`
	DefaultGap        float64         `yaml:"-"`
	ReferenceBuyPrice decimal.Decimal `yaml:"-"`
}

// Fixed returns the fixed price, if one is configured.
func (s SideConfig) Fixed() (decimal.Decimal, bool) {
	if s.FixedPrice == nil {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(*s.FixedPrice), true
}

// Fallback returns the price used when no listing qualifies.
func (s SideConfig) Fallback() decimal.Decimal {
	return decimal.NewFromFloat(s.FallbackPrice)
}

// Gap returns the neighbor tolerance: the side override if set, else the global gap.
func (s SideConfig) Gap() decimal.Decimal {
	if s.PriceGap != nil {
		return decimal.NewFromFloat(*s.PriceGap)
	}
	return decimal.NewFromFloat(s.DefaultGap)
}

// UseNeighbors reports whether neighbor matching is enabled. It defaults to on.
func (s SideConfig) UseNeighbors() bool {
	return s.CheckPriceNeighbors == nil || *s.CheckPriceNeighbors
}

// WithReference returns a copy carrying the BUY quote of the current tick.
func (s SideConfig) WithReference(buyPrice decimal.Decimal) SideConfig {
	s.ReferenceBuyPrice = buyPrice
	return s
}

// defaultSideConfig holds the values used for keys a side leaves out.
func defaultSideConfig() SideConfig {
	return SideConfig{
		MinPaymentMatches: 1,
		MinGapPercent:     defaultSellGap,
	}
}

// Validate checks that thresholds and prices are usable.
func (s SideConfig) Validate() error {
	if s.FixedPrice != nil && *s.FixedPrice <= 0 {
		return errors.New("fixed_price must be greater than 0")
	}
	if s.FallbackPrice < 0 {
		return errors.New("fallback_price must be non-negative")
	}
	if s.PriceGap != nil && *s.PriceGap < 0 {
		return errors.New("price_gap must be non-negative")
	}
	if s.MinPaymentMatches < 0 {
		return errors.New("min_payment_matches must be non-negative")
	}
	if s.CheckTargetNicknames && len(s.TargetNicknames) == 0 {
		return errors.New("check_target_nicknames requires target_nicknames")
	}
	if s.CheckSellVsBuyGap && s.Side != p2p.SideSell {
		return fmt.Errorf("check_sell_vs_buy_gap only applies to SELL, not %s", s.Side)
	}
	return nil
}
