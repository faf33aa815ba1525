package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dantezy/p2p-quoter/internal/p2p"
	"github.com/dantezy/p2p-quoter/internal/strategy"
)

// Controller is the quoting loop as seen from the chat.
type Controller interface {
	Start()
	Stop()
	Running() bool
	Snapshot() strategy.Snapshot
	Release(ctx context.Context, orderID string) error
}

// Bot is the Telegram control surface and notification sink of the quoter.
type Bot struct {
	api      *tgbotapi.BotAPI
	chatID   int64
	dryRun   bool
	disabled bool
	control  Controller
	logger   *zap.Logger
}

// NewBot creates a new Telegram bot instance.
// If token is empty, returns a no-op bot that logs messages instead of sending.
func NewBot(token, chatID string, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("telegram")

	if token == "" {
		logger.Info("no token provided, running in disabled mode (logging only)")
		return &Bot{disabled: true, logger: logger}, nil
	}

	parsedChatID, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID %q: %w", chatID, err)
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	logger.Info("authorized", zap.String("username", api.Self.UserName))

	return &Bot{
		api:    api,
		chatID: parsedChatID,
		logger: logger,
	}, nil
}

// SetDryRun sets the dry run mode flag for notifications.
func (b *Bot) SetDryRun(dryRun bool) {
	b.dryRun = dryRun
}

// SetController attaches the loop the chat commands act on.
func (b *Bot) SetController(c Controller) {
	b.control = c
}

// SendMessage sends a plain text message.
func (b *Bot) SendMessage(text string) error {
	return b.send(b.chatID, text, false)
}

// SendAlert sends a formatted alert with bold title.
func (b *Bot) SendAlert(title, message string) error {
	formatted := fmt.Sprintf("*%s*\n\n%s", escapeMarkdown(title), message)
	return b.send(b.chatID, formatted, true)
}

// NotifyStarted sends a notification that the service has started.
func (b *Bot) NotifyStarted(running bool) error {
	mode := "LIVE"
	if b.dryRun {
		mode = "DRY_RUN"
	}
	state := "stopped, send /start_bot to begin"
	if running {
		state = "running"
	}
	return b.SendAlert("Quoter Started", fmt.Sprintf("Mode: `%s`\nLoop: %s", mode, state))
}

// NotifyStopped sends a notification that the service has shut down.
func (b *Bot) NotifyStopped() error {
	return b.SendAlert("Quoter Stopped", "P2P quoter has been shut down")
}

// NotifyListingUpdated sends a notification when a managed listing gets a new quote.
func (b *Bot) NotifyListingUpdated(side p2p.Side, listingID string, price, quantity decimal.Decimal) error {
	return b.SendAlert("Listing Updated",
		fmt.Sprintf("Side: `%s`\nListing: `%s`\nPrice: `%s`\nQuantity: `%s`",
			side, listingID, price.String(), quantity.String(),
		),
	)
}

// NotifyError sends an error notification.
func (b *Bot) NotifyError(err error) error {
	return b.SendAlert("Error", fmt.Sprintf("`%s`", err.Error()))
}

// send handles the actual message sending with graceful error handling.
func (b *Bot) send(chatID int64, text string, useMarkdown bool) error {
	if b.disabled {
		b.logger.Info("(disabled) " + text)
		return nil
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if useMarkdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}

	_, err := b.api.Send(msg)
	if err != nil {
		b.logger.Warn("failed to send message", zap.Error(err))
		return fmt.Errorf("telegram send failed: %w", err)
	}

	return nil
}

// escapeMarkdown escapes special Markdown characters in text.
func escapeMarkdown(text string) string {
	replacer := []string{
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"(", "\\(",
		")", "\\)",
		"~", "\\~",
		"`", "\\`",
		">", "\\>",
		"#", "\\#",
		"+", "\\+",
		"-", "\\-",
		"=", "\\=",
		"|", "\\|",
		"{", "\\{",
		"}", "\\}",
		".", "\\.",
		"!", "\\!",
	}

	result := text
	for i := 0; i < len(replacer); i += 2 {
		result = replaceAll(result, replacer[i], replacer[i+1])
	}
	return result
}

// replaceAll replaces all occurrences of old with new in s.
func replaceAll(s, old, new string) string {
	var result []byte
	for i := 0; i < len(s); i++ {
		if i+len(old) <= len(s) && s[i:i+len(old)] == old {
			result = append(result, new...)
			i += len(old) - 1
		} else {
			result = append(result, s[i])
		}
	}
	return string(result)
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "n/a"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
