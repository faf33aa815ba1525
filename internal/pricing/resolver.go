package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dantezy/p2p-quoter/internal/config"
	"github.com/dantezy/p2p-quoter/internal/p2p"
	"github.com/dantezy/p2p-quoter/internal/rules"
)

// Strategy names the decision that produced a price.
type Strategy string

const (
	StrategyFixed          Strategy = "fixed"
	StrategyNoEligible     Strategy = "no_eligible"
	StrategyTargetNeighbor Strategy = "target_neighbor"
	StrategyOtherNeighbor  Strategy = "other_neighbor"
	StrategyFirstTarget    Strategy = "first_target"
	StrategyFirstOther     Strategy = "first_other"
	StrategyNeighbor       Strategy = "neighbor"
	StrategyFirstEligible  Strategy = "first_eligible"
	StrategyFallback       Strategy = "fallback"
)

// Resolution is a resolved price together with how it was chosen.
type Resolution struct {
	Price      decimal.Decimal   `json:"price"`
	Strategy   Strategy          `json:"strategy"`
	Candidate  *p2p.Listing      `json:"candidate,omitempty"`
	Neighbor   *p2p.Listing      `json:"neighbor,omitempty"`
	Eligible   int               `json:"eligible"`
	Rejections []rules.Rejection `json:"rejections,omitempty"`
}

// IsFixed reports whether the price came from configuration rather than the market.
func (r Resolution) IsFixed() bool {
	return r.Strategy == StrategyFixed
}

// Quote returns the price to publish. Market-derived prices are stepped one
// tick inside the competitor; fixed prices are published as configured.
func (r Resolution) Quote(side p2p.Side, step decimal.Decimal, decimals int32) decimal.Decimal {
	if r.IsFixed() {
		return r.Price
	}
	return Quote(r.Price, side, step, decimals)
}

// Quote steps a competitor price to outbid it: BUY quotes above, SELL below.
// The result is rounded to the venue precision.
func Quote(price decimal.Decimal, side p2p.Side, step decimal.Decimal, decimals int32) decimal.Decimal {
	if side == p2p.SideSell {
		return price.Sub(step).Round(decimals)
	}
	return price.Add(step).Round(decimals)
}

// step is one row of the decision table. It yields a candidate and optionally
// the neighbor that qualified it.
type step struct {
	strategy Strategy
	find     func() (candidate p2p.Listing, neighbor *p2p.Listing, ok bool)
}

// Resolver turns a market snapshot into a price.
type Resolver struct {
	engine *rules.Engine
	logger *zap.Logger
}

// NewResolver creates a resolver filtering listings through engine.
func NewResolver(engine *rules.Engine, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{engine: engine, logger: logger.Named("pricing")}
}

// ResolvePrice returns only the price of Resolve.
func (r *Resolver) ResolvePrice(listings []p2p.Listing, cfg config.SideConfig, side p2p.Side) decimal.Decimal {
	return r.Resolve(listings, cfg, side).Price
}

// Resolve picks a price from listings for one side. The first matching row wins:
// a fixed price, the fallback when nothing is eligible, the targeting or plain
// market rows, and finally the fallback.
func (r *Resolver) Resolve(listings []p2p.Listing, cfg config.SideConfig, side p2p.Side) Resolution {
	cfg.Side = side
	log := r.logger.With(zap.Stringer("side", side))

	if price, ok := cfg.Fixed(); ok {
		log.Info("using fixed price", zap.Stringer("price", price))
		return Resolution{Price: price, Strategy: StrategyFixed}
	}

	eligible, rejections := r.engine.Filter(listings, cfg)
	res := Resolution{Eligible: len(eligible), Rejections: rejections}

	log.Info("filtered listings",
		zap.Int("total", len(listings)),
		zap.Int("eligible", len(eligible)),
		zap.Int("rejected", len(rejections)),
	)
	for _, l := range eligible {
		log.Debug("eligible listing",
			zap.String("nickname", l.NickName),
			zap.String("price", l.Price.String()),
			zap.String("quantity", l.LastQuantity.String()),
		)
	}

	if len(eligible) == 0 {
		log.Warn("no listings passed filtering, using fallback price", zap.Stringer("fallback", cfg.Fallback()))
		res.Price = cfg.Fallback()
		res.Strategy = StrategyNoEligible
		return res
	}

	for _, s := range plan(eligible, cfg, side) {
		candidate, neighbor, ok := s.find()
		if !ok {
			continue
		}
		res.Price = candidate.PriceDecimal()
		res.Strategy = s.strategy
		res.Candidate = &candidate
		res.Neighbor = neighbor

		fields := []zap.Field{
			zap.String("strategy", string(s.strategy)),
			zap.String("nickname", candidate.NickName),
			zap.Stringer("price", res.Price),
		}
		if neighbor != nil {
			fields = append(fields, zap.String("neighbor", neighbor.NickName), zap.String("neighbor_price", neighbor.Price.String()))
		}
		log.Info("price resolved", fields...)
		return res
	}

	log.Warn("no candidate matched, using fallback price", zap.Stringer("fallback", cfg.Fallback()))
	res.Price = cfg.Fallback()
	res.Strategy = StrategyFallback
	return res
}

// plan builds the ordered decision rows for the configured flags.
func plan(eligible []p2p.Listing, cfg config.SideConfig, side p2p.Side) []step {
	gap := cfg.Gap()
	useNeighbors := cfg.UseNeighbors()

	neighborRow := func(strategy Strategy, candidates []p2p.Listing) step {
		return step{strategy: strategy, find: func() (p2p.Listing, *p2p.Listing, bool) {
			c, n, ok := firstWithNeighbor(candidates, eligible, gap, side)
			if !ok {
				return p2p.Listing{}, nil, false
			}
			return c, &n, true
		}}
	}
	firstRow := func(strategy Strategy, candidates []p2p.Listing) step {
		return step{strategy: strategy, find: func() (p2p.Listing, *p2p.Listing, bool) {
			if len(candidates) == 0 {
				return p2p.Listing{}, nil, false
			}
			return candidates[0], nil, true
		}}
	}

	if cfg.CheckTargetNicknames {
		targeted, others := SplitTargets(eligible, cfg.TargetNicknames)
		if useNeighbors {
			return []step{
				neighborRow(StrategyTargetNeighbor, targeted),
				neighborRow(StrategyOtherNeighbor, others),
			}
		}
		return []step{
			firstRow(StrategyFirstTarget, targeted),
			firstRow(StrategyFirstOther, others),
		}
	}

	if useNeighbors {
		return []step{neighborRow(StrategyNeighbor, eligible)}
	}
	return []step{firstRow(StrategyFirstEligible, eligible)}
}

// SplitTargets partitions listings into those owned by a target nickname and
// the rest. Targeted listings are ordered by the position of their owner in
// targets; listings of the same owner, and all others, keep pool order.
func SplitTargets(listings []p2p.Listing, targets []string) (targeted, others []p2p.Listing) {
	rank := make(map[string]int, len(targets))
	for i, nick := range targets {
		if _, ok := rank[nick]; !ok {
			rank[nick] = i
		}
	}

	for _, l := range listings {
		if _, ok := rank[l.Owner()]; ok {
			targeted = append(targeted, l)
		} else {
			others = append(others, l)
		}
	}

	sort.SliceStable(targeted, func(i, j int) bool {
		return rank[targeted[i].Owner()] < rank[targeted[j].Owner()]
	})
	return targeted, others
}
