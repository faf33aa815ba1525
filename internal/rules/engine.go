package rules

import (
	"go.uber.org/zap"

	"github.com/dantezy/p2p-quoter/internal/config"
	"github.com/dantezy/p2p-quoter/internal/p2p"
)

// Verdict is the outcome of evaluating one listing. Rule, Observed and
// Threshold describe the first failing rule and are empty when Eligible.
type Verdict struct {
	Eligible  bool
	Rule      string
	Observed  string
	Threshold string
}

// Rejection records why a listing was filtered out.
type Rejection struct {
	ListingID string `json:"listingId"`
	NickName  string `json:"nickName"`
	Price     string `json:"price"`
	Rule      string `json:"rule"`
	Observed  string `json:"observed"`
	Threshold string `json:"threshold"`
}

// Engine evaluates listings against an ordered rule list. Evaluation stops
// at the first active rule that fails.
type Engine struct {
	rules  []Rule
	logger *zap.Logger
}

// NewEngine returns an engine with the default rule order.
func NewEngine(logger *zap.Logger) *Engine {
	return NewEngineWithRules(logger, Default()...)
}

// NewEngineWithRules returns an engine evaluating the given rules in order.
func NewEngineWithRules(logger *zap.Logger, rules ...Rule) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{rules: rules, logger: logger.Named("rules")}
}

// Evaluate runs the rules against a listing.
func (e *Engine) Evaluate(l p2p.Listing, cfg config.SideConfig) Verdict {
	for _, rule := range e.rules {
		if !rule.Active(l, cfg) {
			continue
		}
		if rule.Valid(l, cfg) {
			continue
		}
		v := Verdict{
			Rule:      rule.Name(),
			Observed:  rule.Observed(l),
			Threshold: rule.Threshold(cfg),
		}
		e.logger.Debug("rule failed",
			zap.String("rule", v.Rule),
			zap.String("nickname", l.NickName),
			zap.String("listing", l.ID),
			zap.String("observed", v.Observed),
			zap.String("threshold", v.Threshold),
		)
		return v
	}
	return Verdict{Eligible: true}
}

// IsEligible reports whether a listing passes every active rule.
func (e *Engine) IsEligible(l p2p.Listing, cfg config.SideConfig) bool {
	return e.Evaluate(l, cfg).Eligible
}

// Filter returns the eligible listings in pool order together with the
// reason each other listing was dropped.
func (e *Engine) Filter(listings []p2p.Listing, cfg config.SideConfig) ([]p2p.Listing, []Rejection) {
	eligible := make([]p2p.Listing, 0, len(listings))
	var rejections []Rejection

	for _, l := range listings {
		v := e.Evaluate(l, cfg)
		if v.Eligible {
			eligible = append(eligible, l)
			continue
		}
		rejections = append(rejections, Rejection{
			ListingID: l.ID,
			NickName:  l.NickName,
			Price:     l.Price.String(),
			Rule:      v.Rule,
			Observed:  v.Observed,
			Threshold: v.Threshold,
		})
	}
	return eligible, rejections
}
