package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dantezy/p2p-quoter/internal/balance"
	"github.com/dantezy/p2p-quoter/internal/config"
	"github.com/dantezy/p2p-quoter/internal/dedup"
	"github.com/dantezy/p2p-quoter/internal/metrics"
	"github.com/dantezy/p2p-quoter/internal/orders"
	"github.com/dantezy/p2p-quoter/internal/p2p"
	"github.com/dantezy/p2p-quoter/internal/pricing"
	"github.com/dantezy/p2p-quoter/internal/rules"
)

// Event types published after each step of the loop.
const (
	EventTick           = "tick"
	EventListingUpdated = "listing_updated"
	EventLoopState      = "loop_state"
)

// Listing update results, used as metric labels.
const (
	resultApplied   = "applied"
	resultUnchanged = "unchanged"
	resultFailed    = "failed"
	resultSkipped   = "skipped"
)

// Venue is the exchange surface the maker reads from and writes to.
type Venue interface {
	MarketListings(ctx context.Context, side p2p.Side) ([]p2p.Listing, error)
	OwnListings(ctx context.Context, side p2p.Side) ([]p2p.ManagedListing, error)
	Balance(ctx context.Context, coin string) (decimal.Decimal, error)
	PendingOrders(ctx context.Context, side p2p.Side) ([]p2p.Order, error)
	OrderDetails(ctx context.Context, orderID string) (*p2p.OrderDetails, error)
	UpdateListing(ctx context.Context, req p2p.UpdateListingRequest) error
	MarkPaid(ctx context.Context, orderID, paymentType, paymentID string) error
	ReleaseOrder(ctx context.Context, orderID string) error
	SendChatMessage(ctx context.Context, orderID, text string) error
}

// Notifier receives user-facing notifications. The Telegram bot implements it.
type Notifier interface {
	NotifyListingUpdated(side p2p.Side, listingID string, price, quantity decimal.Decimal) error
	NotifyError(err error) error
}

// Publisher fans loop events out to live subscribers.
type Publisher interface {
	Publish(eventType string, data any)
}

// SideState is what the last tick did for one direction.
type SideState struct {
	Side      string           `json:"side"`
	Strategy  pricing.Strategy `json:"strategy"`
	Resolved  decimal.Decimal  `json:"resolved_price"`
	Quote     decimal.Decimal  `json:"quote"`
	Quantity  decimal.Decimal  `json:"quantity"`
	Eligible  int              `json:"eligible"`
	Rejected  int              `json:"rejected"`
	Managed   int              `json:"managed"`
	Updated   int              `json:"updated"`
	Unchanged int              `json:"unchanged"`
	Failed    int              `json:"failed"`
	Orders    orders.Summary   `json:"orders"`
	Error     string           `json:"error,omitempty"`
	At        time.Time        `json:"at"`
}

// Snapshot is the externally visible state of the maker.
type Snapshot struct {
	Running   bool                   `json:"running"`
	DryRun    bool                   `json:"dry_run"`
	StartedAt time.Time              `json:"started_at"`
	LastTick  time.Time              `json:"last_tick"`
	Ticks     int64                  `json:"ticks"`
	Sides     []SideState            `json:"sides"`
	Cache     map[string]dedup.Entry `json:"cache"`
}

// Maker is the quoting loop. Each tick it resolves a price per direction,
// pushes it to the auto-managed listings when it changed, and runs the
// order tracker over pending orders.
type Maker struct {
	config   *config.Config
	venue    Venue
	resolver *pricing.Resolver
	balance  *balance.Calculator
	cache    *dedup.SyncCache
	tracker  *orders.Tracker
	metrics  *metrics.Metrics
	notifier Notifier
	events   Publisher
	logger   *zap.Logger

	running atomic.Bool
	ticks   atomic.Int64

	mu        sync.RWMutex
	startedAt time.Time
	lastTick  time.Time
	sides     map[p2p.Side]SideState
}

// NewMaker wires the core components around venue. A nil metrics set is
// replaced by one on a private registry.
func NewMaker(cfg *config.Config, venue Venue, orderLog orders.OrderLog, m *metrics.Metrics, logger *zap.Logger) (*Maker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if venue == nil {
		return nil, fmt.Errorf("venue is required")
	}
	if orderLog == nil {
		return nil, fmt.Errorf("order log is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}

	engine := rules.NewEngine(logger)
	return &Maker{
		config:   cfg,
		venue:    venue,
		resolver: pricing.NewResolver(engine, logger),
		balance:  balance.NewCalculator(cfg.P2P.Token, cfg.P2P.TotalCapital(), cfg.P2P.TerminalStatuses, logger),
		cache:    dedup.NewSyncCache(),
		tracker:  orders.NewTracker(venue, orderLog, cfg.Messages, logger),
		metrics:  m,
		logger:   logger.Named("maker"),
		sides:    make(map[p2p.Side]SideState, len(p2p.Sides)),
	}, nil
}

// SetNotifier attaches a notification sink.
func (m *Maker) SetNotifier(n Notifier) {
	m.notifier = n
}

// SetPublisher attaches an event fan-out.
func (m *Maker) SetPublisher(p Publisher) {
	m.events = p
}

// Start enables the loop. The next tick acts on the venue.
func (m *Maker) Start() {
	if m.running.Swap(true) {
		return
	}
	m.metrics.Running.Set(1)
	m.logger.Info("loop started")
	m.publish(EventLoopState, map[string]bool{"running": true})
}

// Stop disables the loop. Ticks keep firing but do nothing.
func (m *Maker) Stop() {
	if !m.running.Swap(false) {
		return
	}
	m.metrics.Running.Set(0)
	m.logger.Info("loop stopped")
	m.publish(EventLoopState, map[string]bool{"running": false})
}

// Running reports whether the loop is enabled.
func (m *Maker) Running() bool {
	return m.running.Load()
}

// Release confirms receipt of payment on an order and releases the asset.
func (m *Maker) Release(ctx context.Context, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("order id is required")
	}
	if err := m.venue.ReleaseOrder(ctx, orderID); err != nil {
		return fmt.Errorf("release order %s: %w", orderID, err)
	}
	m.logger.Info("order released", zap.String("order", orderID))
	return nil
}

// Run ticks every poll interval until ctx is cancelled. While the loop is
// stopped the ticks are skipped.
func (m *Maker) Run(ctx context.Context) error {
	m.mu.Lock()
	m.startedAt = time.Now()
	m.mu.Unlock()

	m.logger.Info("starting",
		zap.String("mode", m.modeString()),
		zap.String("token", m.config.P2P.Token),
		zap.String("currency", m.config.P2P.Currency),
		zap.Duration("interval", m.config.P2P.PollInterval()),
		zap.Bool("running", m.Running()),
	)

	ticker := time.NewTicker(m.config.P2P.PollInterval())
	defer ticker.Stop()

	m.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("shutting down")
			return ctx.Err()
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

func (m *Maker) runOnce(ctx context.Context) {
	if !m.Running() {
		m.logger.Debug("loop stopped, idling")
		return
	}
	if err := m.Tick(ctx); err != nil {
		m.logger.Error("tick finished with errors", zap.Error(err))
	}
}

// Tick processes BUY and then SELL once. The BUY quote becomes the SELL
// reference price. A panic anywhere in the tick is recovered and returned.
func (m *Maker) Tick(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
			m.metrics.Ticks.WithLabelValues("panic").Inc()
			m.logger.Error("recovered from panic", zap.Any("panic", r), zap.Stack("stack"))
			if m.notifier != nil {
				if nerr := m.notifier.NotifyError(err); nerr != nil {
					m.logger.Warn("failed to send error notification", zap.Error(nerr))
				}
			}
		}
		m.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	var (
		errs     []error
		buyQuote decimal.Decimal
	)
	for _, side := range p2p.Sides {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		sideCfg := m.config.Side(side)
		if side == p2p.SideSell {
			sideCfg = sideCfg.WithReference(buyQuote)
		}

		state, serr := m.syncSide(ctx, side, sideCfg)
		if side == p2p.SideBuy {
			buyQuote = state.Quote
		}
		if serr != nil {
			state.Error = serr.Error()
			errs = append(errs, fmt.Errorf("%s: %w", side, serr))
		}

		m.mu.Lock()
		m.sides[side] = state
		m.mu.Unlock()
	}

	n := m.ticks.Add(1)
	m.mu.Lock()
	m.lastTick = time.Now()
	m.mu.Unlock()

	err = errors.Join(errs...)
	if err != nil {
		m.metrics.Ticks.WithLabelValues("error").Inc()
	} else {
		m.metrics.Ticks.WithLabelValues("ok").Inc()
	}
	m.logger.Info("tick complete", zap.Int64("tick", n), zap.Duration("took", time.Since(start)))
	m.publish(EventTick, m.Snapshot())
	return err
}

// reads is the market snapshot of one direction. Read failures leave the
// corresponding field empty.
type reads struct {
	market   []p2p.Listing
	own      []p2p.ManagedListing
	quantity decimal.Decimal
	errs     []error
}

// fetch runs the independent reads of a side concurrently. Each goroutine
// writes its own field of r.
func (m *Maker) fetch(ctx context.Context, side p2p.Side) reads {
	var (
		r         reads
		marketErr error
		ownErr    error
		g         errgroup.Group
	)

	g.Go(func() (err error) {
		defer recoverInto(&err)
		r.market, marketErr = m.venue.MarketListings(ctx, side)
		return nil
	})
	g.Go(func() (err error) {
		defer recoverInto(&err)
		r.own, ownErr = m.venue.OwnListings(ctx, side)
		return nil
	})
	g.Go(func() (err error) {
		defer recoverInto(&err)
		r.quantity = m.balance.Quantity(ctx, side, m.venue)
		return nil
	})

	if err := g.Wait(); err != nil {
		r.errs = append(r.errs, err)
	}
	if marketErr != nil {
		m.metrics.ReadErrors.WithLabelValues("market_listings").Inc()
		m.logger.Error("failed to fetch market listings", zap.Stringer("side", side), zap.Error(marketErr))
		r.market = nil
		r.errs = append(r.errs, fmt.Errorf("market listings: %w", marketErr))
	}
	if ownErr != nil {
		m.metrics.ReadErrors.WithLabelValues("own_listings").Inc()
		m.logger.Error("failed to fetch own listings", zap.Stringer("side", side), zap.Error(ownErr))
		r.own = nil
		r.errs = append(r.errs, fmt.Errorf("own listings: %w", ownErr))
	}
	return r
}

// syncSide resolves, quotes and pushes one direction, then tracks its orders.
func (m *Maker) syncSide(ctx context.Context, side p2p.Side, cfg config.SideConfig) (SideState, error) {
	label := side.String()
	log := m.logger.With(zap.Stringer("side", side))
	state := SideState{Side: label, At: time.Now()}

	r := m.fetch(ctx, side)
	errs := r.errs

	res := m.resolver.Resolve(r.market, cfg, side)
	quote := res.Quote(side, m.config.P2P.Step(), m.config.P2P.PriceDecimals)

	state.Strategy = res.Strategy
	state.Resolved = res.Price
	state.Quote = quote
	state.Quantity = r.quantity
	state.Eligible = res.Eligible
	state.Rejected = len(res.Rejections)

	resolved, _ := res.Price.Float64()
	quoted, _ := quote.Float64()
	qty, _ := r.quantity.Float64()
	m.metrics.ResolvedPrice.WithLabelValues(label, string(res.Strategy)).Set(resolved)
	m.metrics.QuotedPrice.WithLabelValues(label).Set(quoted)
	m.metrics.AvailableQuantity.WithLabelValues(label).Set(qty)
	m.metrics.EligibleListings.WithLabelValues(label).Set(float64(res.Eligible))
	for _, rej := range res.Rejections {
		m.metrics.Rejections.WithLabelValues(label, rej.Rule).Inc()
	}

	log.Info("quote resolved",
		zap.String("strategy", string(res.Strategy)),
		zap.Stringer("resolved", res.Price),
		zap.Stringer("quote", quote),
		zap.Stringer("quantity", r.quantity),
	)

	switch {
	case !quote.IsPositive():
		log.Warn("quote is not positive, skipping listing updates", zap.Stringer("quote", quote))
		m.metrics.ListingUpdates.WithLabelValues(label, resultSkipped).Inc()
	case !r.quantity.IsPositive():
		log.Warn("no tradable quantity, skipping listing updates")
		m.metrics.ListingUpdates.WithLabelValues(label, resultSkipped).Inc()
	default:
		if err := m.updateListings(ctx, side, r.own, quote, r.quantity, &state); err != nil {
			errs = append(errs, err)
		}
	}

	pending, err := m.venue.PendingOrders(ctx, side)
	if err != nil {
		m.metrics.ReadErrors.WithLabelValues("pending_orders").Inc()
		log.Error("failed to fetch pending orders", zap.Error(err))
		errs = append(errs, fmt.Errorf("pending orders: %w", err))
		return state, errors.Join(errs...)
	}

	sum := m.tracker.Process(ctx, side, pending)
	state.Orders = sum
	m.metrics.OrderActions.WithLabelValues(label, "message").Add(float64(sum.Messages))
	m.metrics.OrderActions.WithLabelValues(label, "marked_paid").Add(float64(sum.MarkedPaid))
	m.metrics.OrderActions.WithLabelValues(label, "failed").Add(float64(sum.Failed))
	if sum.Failed > 0 {
		errs = append(errs, fmt.Errorf("%d of %d orders failed", sum.Failed, sum.Orders))
	}

	return state, errors.Join(errs...)
}

// updateListings pushes (price, quantity) to every auto-managed listing of
// side whose last applied values differ. The cache is written only after the
// venue accepted the update.
func (m *Maker) updateListings(ctx context.Context, side p2p.Side, own []p2p.ManagedListing, price, quantity decimal.Decimal, state *SideState) error {
	label := side.String()
	tag := m.config.P2P.Tag(side)

	var errs []error
	for _, l := range own {
		if !l.IsAutoManaged(tag) {
			m.logger.Debug("listing not auto-managed", zap.String("listing", l.ID), zap.String("tag", tag))
			continue
		}
		state.Managed++

		// an offline listing is pushed again with ACTIVE even at an unchanged quote
		if l.Status.Int() != p2p.ListingStatusOnline {
			m.cache.Forget(l.ID)
		}

		if !m.cache.Changed(l.ID, price, quantity) {
			state.Unchanged++
			m.metrics.ListingUpdates.WithLabelValues(label, resultUnchanged).Inc()
			m.logger.Debug("listing unchanged", zap.String("listing", l.ID))
			continue
		}

		req := p2p.NewUpdateRequest(l, price, quantity)
		if err := m.venue.UpdateListing(ctx, req); err != nil {
			state.Failed++
			m.metrics.ListingUpdates.WithLabelValues(label, resultFailed).Inc()
			m.logger.Error("failed to update listing",
				zap.String("listing", l.ID),
				zap.Stringer("side", side),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("update listing %s: %w", l.ID, err))
			continue
		}

		m.cache.Record(l.ID, price, quantity)
		state.Updated++
		m.metrics.ListingUpdates.WithLabelValues(label, resultApplied).Inc()
		m.logger.Info("listing updated",
			zap.String("listing", l.ID),
			zap.Stringer("side", side),
			zap.String("action", req.ActionType),
			zap.Stringer("price", price),
			zap.Stringer("quantity", quantity),
		)

		m.publish(EventListingUpdated, map[string]string{
			"side":     label,
			"listing":  l.ID,
			"price":    price.String(),
			"quantity": quantity.String(),
		})
		if m.notifier != nil {
			if err := m.notifier.NotifyListingUpdated(side, l.ID, price, quantity); err != nil {
				m.logger.Warn("failed to send listing notification", zap.Error(err))
			}
		}
	}
	return errors.Join(errs...)
}

// Snapshot returns a copy of the current state.
func (m *Maker) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Running:   m.Running(),
		DryRun:    m.config.DryRun,
		StartedAt: m.startedAt,
		LastTick:  m.lastTick,
		Ticks:     m.ticks.Load(),
		Cache:     m.cache.Snapshot(),
	}
	for _, side := range p2p.Sides {
		if s, ok := m.sides[side]; ok {
			snap.Sides = append(snap.Sides, s)
		}
	}
	return snap
}

func (m *Maker) publish(eventType string, data any) {
	if m.events != nil {
		m.events.Publish(eventType, data)
	}
}

// modeString returns "LIVE" or "DRY_RUN" based on config.
func (m *Maker) modeString() string {
	if m.config.DryRun {
		return "DRY_RUN"
	}
	return "LIVE"
}

// recoverInto turns a panic in a read goroutine into an error.
func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}
