package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/dantezy/p2p-quoter/internal/orders"
	"github.com/dantezy/p2p-quoter/internal/strategy"
)

// Chat commands understood by the bot.
const (
	CommandStart   = "start_bot"
	CommandStop    = "stop_bot"
	CommandStatus  = "status"
	CommandRelease = "release"
	CommandHelp    = "help"
)

const (
	replyAccessDenied = "🚫 Access denied."
	updateTimeout     = 30
	releaseTimeout    = 15 * time.Second
)

// Listen polls for chat updates and answers commands until ctx is cancelled.
// In disabled mode it only waits for ctx.
func (b *Bot) Listen(ctx context.Context) error {
	if b.disabled {
		<-ctx.Done()
		return ctx.Err()
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.logger.Info("listening for commands")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg := update.Message
			if msg == nil || !msg.IsCommand() {
				continue
			}

			reply := b.Handle(ctx, msg.Chat.ID, msg.Command(), msg.CommandArguments())
			if reply == "" {
				continue
			}
			if err := b.send(msg.Chat.ID, reply, false); err != nil {
				b.logger.Warn("failed to answer command", zap.String("command", msg.Command()), zap.Error(err))
			}
		}
	}
}

// Handle executes a command sent from chatID and returns the reply text.
// Only the configured owner chat may control the loop.
func (b *Bot) Handle(ctx context.Context, chatID int64, command, args string) string {
	if chatID != b.chatID {
		b.logger.Warn("command from unknown chat", zap.Int64("chat", chatID), zap.String("command", command))
		return replyAccessDenied
	}
	if b.control == nil {
		return "⚠️ Quoter is not ready yet."
	}

	b.logger.Info("command received", zap.String("command", command))

	switch command {
	case CommandStart:
		if b.control.Running() {
			return "ℹ️ Automation is already running."
		}
		b.control.Start()
		return "✅ Listing and order automation started."

	case CommandStop:
		if !b.control.Running() {
			return "ℹ️ Automation is already stopped."
		}
		b.control.Stop()
		return "⏹ Listing and order automation stopped."

	case CommandStatus:
		return formatStatus(b.control.Snapshot(), time.Now())

	case CommandRelease:
		orderID := strings.TrimSpace(args)
		if orderID == "" {
			return "Usage: /release <orderId>"
		}
		rctx, cancel := context.WithTimeout(ctx, releaseTimeout)
		defer cancel()
		err := b.control.Release(rctx, orderID)
		if errors.Is(err, orders.ErrDryRun) {
			return fmt.Sprintf("🧪 DRY_RUN: order %s would be released.", orderID)
		}
		if err != nil {
			b.logger.Error("release failed", zap.String("order", orderID), zap.Error(err))
			return fmt.Sprintf("❌ Release of %s failed: %v", orderID, err)
		}
		return fmt.Sprintf("✅ Order %s released.", orderID)

	case CommandHelp, "start":
		return helpText()

	default:
		return fmt.Sprintf("Unknown command /%s\n\n%s", command, helpText())
	}
}

func helpText() string {
	return strings.Join([]string{
		"/" + CommandStart + " - start listing and order automation",
		"/" + CommandStop + " - stop automation",
		"/" + CommandStatus + " - show loop state and last quotes",
		"/" + CommandRelease + " <orderId> - release an order",
	}, "\n")
}

// formatStatus renders a snapshot as plain text.
func formatStatus(s strategy.Snapshot, now time.Time) string {
	var sb strings.Builder

	state := "🔴 stopped"
	if s.Running {
		state = "🟢 running"
	}
	mode := "LIVE"
	if s.DryRun {
		mode = "DRY_RUN"
	}
	fmt.Fprintf(&sb, "Automation: %s\nMode: %s\n", state, mode)

	if !s.StartedAt.IsZero() {
		fmt.Fprintf(&sb, "Uptime: %s\n", formatDuration(now.Sub(s.StartedAt)))
	}
	if s.LastTick.IsZero() {
		sb.WriteString("Last tick: never\n")
	} else {
		fmt.Fprintf(&sb, "Last tick: %s ago (#%d)\n", formatDuration(now.Sub(s.LastTick)), s.Ticks)
	}

	for _, side := range s.Sides {
		fmt.Fprintf(&sb, "\n%s: quote %s (%s from %s), qty %s\n",
			side.Side, side.Quote.String(), side.Strategy, side.Resolved.String(), side.Quantity.String())
		fmt.Fprintf(&sb, "  listings: %d eligible, %d rejected; managed %d, updated %d, unchanged %d, failed %d\n",
			side.Eligible, side.Rejected, side.Managed, side.Updated, side.Unchanged, side.Failed)
		if side.Orders.Orders > 0 {
			fmt.Fprintf(&sb, "  orders: %d pending, %d messages, %d marked paid, %d failed\n",
				side.Orders.Orders, side.Orders.Messages, side.Orders.MarkedPaid, side.Orders.Failed)
		}
		if side.Error != "" {
			fmt.Fprintf(&sb, "  error: %s\n", side.Error)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
