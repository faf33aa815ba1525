package orders

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dantezy/p2p-quoter/internal/p2p"
)

// ErrNoPaymentTerms is returned when an order has no payment term to mark it paid with.
var ErrNoPaymentTerms = errors.New("order has no payment terms")

// Venue is the subset of the exchange client the tracker acts through.
type Venue interface {
	OrderDetails(ctx context.Context, orderID string) (*p2p.OrderDetails, error)
	MarkPaid(ctx context.Context, orderID, paymentType, paymentID string) error
	SendChatMessage(ctx context.Context, orderID, text string) error
}

// Templates returns the chat messages for an order status on a side.
// An empty result disables that notification.
type Templates interface {
	For(status int, side p2p.Side) []string
}

// State is the lifecycle position of an order from the tracker's point of view.
type State string

const (
	StateNew              State = "new"
	StateAwaitingNotify10 State = "awaiting_notify_10"
	StateNotified10       State = "notified_10"
	StateAwaitingPaidMark State = "awaiting_paid_mark"
	StatePaidMarked       State = "paid_marked"
	StateAwaitingNotify20 State = "awaiting_notify_20"
	StateNotified20       State = "notified_20"
	StateTerminal         State = "terminal"
	StateWaiting          State = "waiting"
)

// StateOf derives the state of an order from its venue status and log entry.
// A nil entry means the order has not been seen yet.
func StateOf(o p2p.Order, e *Entry, isTerminal func(int) bool) State {
	status := o.StatusCode()
	if isTerminal != nil && isTerminal(status) {
		return StateTerminal
	}
	if e == nil {
		return StateNew
	}

	switch status {
	case p2p.OrderStatusAwaitingPayment:
		if !e.Notified10 {
			return StateAwaitingNotify10
		}
		if o.Side == p2p.SideBuy {
			if e.MarkedPaid {
				return StatePaidMarked
			}
			return StateAwaitingPaidMark
		}
		return StateNotified10
	case p2p.OrderStatusAwaitingRelease:
		if e.Notified20 {
			return StateNotified20
		}
		return StateAwaitingNotify20
	default:
		return StateWaiting
	}
}

// Summary counts what one Process call did.
type Summary struct {
	Orders     int
	Messages   int
	MarkedPaid int
	Failed     int
}

// Tracker performs the once-per-order actions on pending orders: a chat
// message when the order awaits payment, marking BUY orders paid, and a
// message set when the order awaits release.
type Tracker struct {
	venue     Venue
	log       OrderLog
	templates Templates
	logger    *zap.Logger
}

// NewTracker creates a tracker.
func NewTracker(venue Venue, log OrderLog, templates Templates, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		venue:     venue,
		log:       log,
		templates: templates,
		logger:    logger.Named("orders"),
	}
}

// Process handles the pending orders of one side. A failure on one order is
// logged and does not stop the others; its flags stay unset so the action is
// retried on a later tick.
func (t *Tracker) Process(ctx context.Context, side p2p.Side, pending []p2p.Order) Summary {
	var sum Summary
	for _, o := range pending {
		if ctx.Err() != nil {
			break
		}
		sum.Orders++
		if err := t.processOrder(ctx, side, o, &sum); err != nil {
			sum.Failed++
			t.logger.Error("failed to process order",
				zap.String("order", o.ID),
				zap.Stringer("side", side),
				zap.Int("status", o.StatusCode()),
				zap.Error(err),
			)
		}
	}
	return sum
}

func (t *Tracker) processOrder(ctx context.Context, side p2p.Side, o p2p.Order, sum *Summary) error {
	entry, err := t.log.GetOrCreate(ctx, o)
	if err != nil {
		return fmt.Errorf("order log: %w", err)
	}

	t.logger.Debug("order state",
		zap.String("order", o.ID),
		zap.Int("status", o.StatusCode()),
		zap.String("state", string(StateOf(o, &entry, nil))),
	)

	var errs []error
	switch o.StatusCode() {
	case p2p.OrderStatusAwaitingPayment:
		if !entry.Notified10 {
			if err := t.notify(ctx, side, o, entry, p2p.OrderStatusAwaitingPayment, FlagNotified10, sum); err != nil {
				errs = append(errs, err)
			}
		}
		if side == p2p.SideBuy && !entry.MarkedPaid {
			marked, err := t.markPaid(ctx, o)
			if err != nil {
				errs = append(errs, err)
			} else if marked {
				sum.MarkedPaid++
			}
		}
	case p2p.OrderStatusAwaitingRelease:
		if !entry.Notified20 {
			if err := t.notify(ctx, side, o, entry, p2p.OrderStatusAwaitingRelease, FlagNotified20, sum); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// notify sends the message set for status, resuming after the messages the
// log already counts as delivered. Progress is recorded after every message
// and flag is set once the whole set went out.
func (t *Tracker) notify(ctx context.Context, side p2p.Side, o p2p.Order, entry Entry, status int, flag Flag, sum *Summary) error {
	messages := t.templates.For(status, side)
	if len(messages) == 0 {
		t.logger.Debug("no template configured", zap.String("order", o.ID), zap.Int("status", status))
		return nil
	}

	dryRun := false
	for i := min(entry.Sent(flag), len(messages)); i < len(messages); i++ {
		err := t.venue.SendChatMessage(ctx, o.ID, messages[i])
		if errors.Is(err, ErrDryRun) {
			dryRun = true
			continue
		}
		if err != nil {
			return fmt.Errorf("send status %d message %d/%d: %w", status, i+1, len(messages), err)
		}
		sum.Messages++
		if err := t.log.MarkSent(ctx, o.ID, flag, i+1); err != nil {
			return fmt.Errorf("record %s progress: %w", flag, err)
		}
	}
	if dryRun {
		t.logger.Info("DRY_RUN: order left unnotified", zap.String("order", o.ID), zap.Int("status", status))
		return nil
	}

	if err := t.log.MarkFlag(ctx, o.ID, flag); err != nil {
		return fmt.Errorf("set %s: %w", flag, err)
	}
	t.logger.Info("order notified",
		zap.String("order", o.ID),
		zap.Int("status", status),
		zap.Int("messages", len(messages)),
	)
	return nil
}

// markPaid marks a BUY order paid with the first payment term of the order.
// It reports false when the venue only pretended to do so.
func (t *Tracker) markPaid(ctx context.Context, o p2p.Order) (bool, error) {
	details, err := t.venue.OrderDetails(ctx, o.ID)
	if err != nil {
		return false, err
	}
	if len(details.PaymentTermList) == 0 {
		return false, fmt.Errorf("mark order %s paid: %w", o.ID, ErrNoPaymentTerms)
	}

	term := details.PaymentTermList[0]
	err = t.venue.MarkPaid(ctx, o.ID, term.PaymentType.String(), term.ID)
	if errors.Is(err, ErrDryRun) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := t.log.MarkFlag(ctx, o.ID, FlagMarkedPaid); err != nil {
		return false, fmt.Errorf("set %s: %w", FlagMarkedPaid, err)
	}
	t.logger.Info("order marked paid",
		zap.String("order", o.ID),
		zap.String("payment_type", term.PaymentType.String()),
		zap.String("payment_id", term.ID),
	)
	return true, nil
}
