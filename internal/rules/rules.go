package rules

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dantezy/p2p-quoter/internal/config"
	"github.com/dantezy/p2p-quoter/internal/p2p"
)

// Rule is a single eligibility check on a competitor listing.
//
// Active decides whether the rule applies at all for this listing and side
// configuration; an inactive rule always passes. Valid is only consulted for
// active rules. Observed and Threshold render the compared values for logs.
type Rule interface {
	Name() string
	Active(l p2p.Listing, cfg config.SideConfig) bool
	Valid(l p2p.Listing, cfg config.SideConfig) bool
	Observed(l p2p.Listing) string
	Threshold(cfg config.SideConfig) string
}

// Rule names, in default evaluation order.
const (
	NameTotalOrders      = "min_total_orders"
	NamePaymentMethods   = "payment_methods"
	NameMinBalance       = "min_balance"
	NameMinLimit         = "min_limit"
	NameLimitRange       = "limit_range"
	NameRegisterTime     = "register_time"
	NameOrderCount       = "order_count_30d"
	NameCountryWhitelist = "country_whitelist"
	NameRemarkBlacklist  = "remark_blacklist"
	NameNicknames        = "nickname_blacklist"
	NameSellGap          = "sell_vs_buy_gap"
)

// Default returns the full rule set in evaluation order.
func Default() []Rule {
	return []Rule{
		TotalOrders{},
		PaymentMethods{},
		MinBalance{},
		MinLimit{},
		LimitRange{},
		RegisterTime{},
		OrderCount{},
		CountryWhitelist{},
		RemarkBlacklist{},
		NicknameBlacklist{},
		SellGap{},
	}
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// TotalOrders requires more lifetime orders than the configured minimum.
type TotalOrders struct{}

func (TotalOrders) Name() string { return NameTotalOrders }

func (TotalOrders) Active(_ p2p.Listing, cfg config.SideConfig) bool { return cfg.CheckOrderNum }

func (TotalOrders) Valid(l p2p.Listing, cfg config.SideConfig) bool {
	return l.RecentOrderNum.Decimal().GreaterThan(dec(cfg.MinTotalOrders))
}

func (TotalOrders) Observed(l p2p.Listing) string { return l.RecentOrderNum.Decimal().String() }

func (TotalOrders) Threshold(cfg config.SideConfig) string {
	return "> " + dec(cfg.MinTotalOrders).String()
}

// PaymentMethods requires a minimum overlap between the listing's payment
// methods and the allowed ones. The requirement is capped by the size of the
// allowed set, so an empty allowed set always passes.
type PaymentMethods struct{}

func (PaymentMethods) Name() string { return NamePaymentMethods }

func (PaymentMethods) Active(_ p2p.Listing, cfg config.SideConfig) bool {
	return cfg.CheckPaymentMethods
}

func (PaymentMethods) Valid(l p2p.Listing, cfg config.SideConfig) bool {
	offered := make(map[string]struct{}, len(l.Payments))
	for _, p := range l.Payments {
		offered[p] = struct{}{}
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedPaymentTypes))
	matches := 0
	for _, p := range cfg.AllowedPaymentTypes {
		if _, seen := allowed[p]; seen {
			continue
		}
		allowed[p] = struct{}{}
		if _, ok := offered[p]; ok {
			matches++
		}
	}

	return matches >= min(cfg.MinPaymentMatches, len(allowed))
}

func (PaymentMethods) Observed(l p2p.Listing) string { return fmt.Sprint(l.Payments) }

func (PaymentMethods) Threshold(cfg config.SideConfig) string {
	return fmt.Sprintf("%d of %v", cfg.MinPaymentMatches, cfg.AllowedPaymentTypes)
}

// MinBalance requires enough remaining quantity on the listing.
type MinBalance struct{}

func (MinBalance) Name() string { return NameMinBalance }

func (MinBalance) Active(_ p2p.Listing, cfg config.SideConfig) bool { return cfg.CheckMinBalance }

func (MinBalance) Valid(l p2p.Listing, cfg config.SideConfig) bool {
	return l.LastQuantity.Decimal().GreaterThanOrEqual(dec(cfg.MinAmountThreshold))
}

func (MinBalance) Observed(l p2p.Listing) string { return l.LastQuantity.Decimal().String() }

func (MinBalance) Threshold(cfg config.SideConfig) string {
	return ">= " + dec(cfg.MinAmountThreshold).String()
}

// MinLimit rejects listings whose minimum transaction is too large.
type MinLimit struct{}

func (MinLimit) Name() string { return NameMinLimit }

func (MinLimit) Active(_ p2p.Listing, cfg config.SideConfig) bool { return cfg.CheckMinLimit }

func (MinLimit) Valid(l p2p.Listing, cfg config.SideConfig) bool {
	return l.MinAmount.Decimal().LessThanOrEqual(dec(cfg.MinLimitThreshold))
}

func (MinLimit) Observed(l p2p.Listing) string { return l.MinAmount.Decimal().String() }

func (MinLimit) Threshold(cfg config.SideConfig) string {
	return "<= " + dec(cfg.MinLimitThreshold).String()
}

// LimitRange requires a wide enough span between the transaction limits.
type LimitRange struct{}

func (LimitRange) Name() string { return NameLimitRange }

func (LimitRange) Active(_ p2p.Listing, cfg config.SideConfig) bool { return cfg.CheckLimitRange }

func (LimitRange) Valid(l p2p.Listing, cfg config.SideConfig) bool {
	return limitSpan(l).GreaterThanOrEqual(dec(cfg.MinLimitRange))
}

func (LimitRange) Observed(l p2p.Listing) string { return limitSpan(l).String() }

func (LimitRange) Threshold(cfg config.SideConfig) string {
	return ">= " + dec(cfg.MinLimitRange).String()
}

func limitSpan(l p2p.Listing) decimal.Decimal {
	return l.MaxAmount.Decimal().Sub(l.MinAmount.Decimal())
}

// RegisterTime bounds the account age the advertiser demands from us. It only
// applies when the listing actually sets that restriction.
type RegisterTime struct{}

func (RegisterTime) Name() string { return NameRegisterTime }

func (RegisterTime) Active(l p2p.Listing, cfg config.SideConfig) bool {
	return cfg.CheckRegisterDays && l.TradingPreferenceSet.HasRegisterTime.Int() == 1
}

func (RegisterTime) Valid(l p2p.Listing, cfg config.SideConfig) bool {
	return l.TradingPreferenceSet.RegisterTimeThreshold.Decimal().LessThanOrEqual(dec(cfg.MinRegisterDays))
}

func (RegisterTime) Observed(l p2p.Listing) string {
	return l.TradingPreferenceSet.RegisterTimeThreshold.Decimal().String()
}

func (RegisterTime) Threshold(cfg config.SideConfig) string {
	return "<= " + dec(cfg.MinRegisterDays).String()
}

// OrderCount bounds the 30-day order count the advertiser demands from us.
type OrderCount struct{}

func (OrderCount) Name() string { return NameOrderCount }

func (OrderCount) Active(l p2p.Listing, cfg config.SideConfig) bool {
	return cfg.CheckMinOrders && l.TradingPreferenceSet.HasOrderFinishNumberDay30.Int() == 1
}

func (OrderCount) Valid(l p2p.Listing, cfg config.SideConfig) bool {
	return l.TradingPreferenceSet.OrderFinishNumberDay30.Decimal().LessThanOrEqual(dec(cfg.MinOrderCount))
}

func (OrderCount) Observed(l p2p.Listing) string {
	return l.TradingPreferenceSet.OrderFinishNumberDay30.Decimal().String()
}

func (OrderCount) Threshold(cfg config.SideConfig) string {
	return "<= " + dec(cfg.MinOrderCount).String()
}

// CountryWhitelist passes unrestricted listings, and restricted listings that
// admit at least one whitelisted country.
type CountryWhitelist struct{}

func (CountryWhitelist) Name() string { return NameCountryWhitelist }

func (CountryWhitelist) Active(_ p2p.Listing, cfg config.SideConfig) bool {
	return cfg.CheckCountryWhitelist
}

func (CountryWhitelist) Valid(l p2p.Listing, cfg config.SideConfig) bool {
	prefs := l.TradingPreferenceSet
	if prefs.HasNationalLimit.Int() != 1 {
		return true
	}
	for _, country := range prefs.NationalLimit {
		for _, allowed := range cfg.CountryWhitelist {
			if country == allowed {
				return true
			}
		}
	}
	return false
}

func (CountryWhitelist) Observed(l p2p.Listing) string {
	return fmt.Sprint([]string(l.TradingPreferenceSet.NationalLimit))
}

func (CountryWhitelist) Threshold(cfg config.SideConfig) string {
	return fmt.Sprint(cfg.CountryWhitelist)
}

// RemarkBlacklist rejects listings whose remark contains a banned word,
// ignoring case.
type RemarkBlacklist struct{}

func (RemarkBlacklist) Name() string { return NameRemarkBlacklist }

func (RemarkBlacklist) Active(_ p2p.Listing, cfg config.SideConfig) bool {
	return cfg.CheckRemarkBlacklist
}

func (RemarkBlacklist) Valid(l p2p.Listing, cfg config.SideConfig) bool {
	remark := strings.ToLower(l.Remark)
	for _, word := range cfg.RemarkBlacklist {
		if word == "" {
			continue
		}
		if strings.Contains(remark, strings.ToLower(word)) {
			return false
		}
	}
	return true
}

func (RemarkBlacklist) Observed(l p2p.Listing) string { return l.Remark }

func (RemarkBlacklist) Threshold(cfg config.SideConfig) string {
	return fmt.Sprint(cfg.RemarkBlacklist)
}

// NicknameBlacklist rejects listings from excluded advertisers.
type NicknameBlacklist struct{}

func (NicknameBlacklist) Name() string { return NameNicknames }

func (NicknameBlacklist) Active(_ p2p.Listing, cfg config.SideConfig) bool {
	return cfg.CheckExcludeNicknames
}

func (NicknameBlacklist) Valid(l p2p.Listing, cfg config.SideConfig) bool {
	for _, nick := range cfg.ExcludeNicknames {
		if nick == l.NickName {
			return false
		}
	}
	return true
}

func (NicknameBlacklist) Observed(l p2p.Listing) string { return l.NickName }

func (NicknameBlacklist) Threshold(cfg config.SideConfig) string {
	return fmt.Sprint(cfg.ExcludeNicknames)
}

// SellGap keeps SELL quotes a minimum percentage above this tick's BUY quote.
type SellGap struct{}

func (SellGap) Name() string { return NameSellGap }

func (SellGap) Active(_ p2p.Listing, cfg config.SideConfig) bool {
	return cfg.CheckSellVsBuyGap && cfg.Side == p2p.SideSell
}

func (SellGap) Valid(l p2p.Listing, cfg config.SideConfig) bool {
	return l.PriceDecimal().GreaterThanOrEqual(sellFloor(cfg))
}

func (SellGap) Observed(l p2p.Listing) string { return l.PriceDecimal().String() }

func (SellGap) Threshold(cfg config.SideConfig) string {
	return ">= " + sellFloor(cfg).String()
}

func sellFloor(cfg config.SideConfig) decimal.Decimal {
	return cfg.ReferenceBuyPrice.Mul(decimal.NewFromInt(1).Add(dec(cfg.MinGapPercent)))
}
