package strategy

import (
	"context"

	"go.uber.org/zap"

	"github.com/dantezy/p2p-quoter/internal/orders"
	"github.com/dantezy/p2p-quoter/internal/p2p"
)

// DryRunVenue passes reads through to the wrapped venue and logs the
// mutating calls instead of sending them. Listing updates report success so
// quoting behaves as it would live. Order writes return orders.ErrDryRun so
// nothing durable is recorded for a call that never reached the venue.
type DryRunVenue struct {
	Venue
	logger *zap.Logger
}

// NewDryRunVenue wraps v.
func NewDryRunVenue(v Venue, logger *zap.Logger) *DryRunVenue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRunVenue{Venue: v, logger: logger.Named("dry_run")}
}

func (d *DryRunVenue) UpdateListing(_ context.Context, req p2p.UpdateListingRequest) error {
	d.logger.Info("DRY_RUN: would update listing",
		zap.String("listing", req.ID),
		zap.String("action", req.ActionType),
		zap.String("price", req.Price),
		zap.String("quantity", req.Quantity),
	)
	return nil
}

func (d *DryRunVenue) MarkPaid(_ context.Context, orderID, paymentType, paymentID string) error {
	d.logger.Info("DRY_RUN: would mark order paid",
		zap.String("order", orderID),
		zap.String("payment_type", paymentType),
		zap.String("payment_id", paymentID),
	)
	return orders.ErrDryRun
}

func (d *DryRunVenue) ReleaseOrder(_ context.Context, orderID string) error {
	d.logger.Info("DRY_RUN: would release order", zap.String("order", orderID))
	return orders.ErrDryRun
}

func (d *DryRunVenue) SendChatMessage(_ context.Context, orderID, text string) error {
	d.logger.Info("DRY_RUN: would send chat message", zap.String("order", orderID), zap.String("text", text))
	return orders.ErrDryRun
}
