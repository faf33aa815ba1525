package orders

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dantezy/p2p-quoter/internal/p2p"
)

var (
	// ErrOrderNotFound is returned when a flag is marked on an order the log has never seen.
	ErrOrderNotFound = errors.New("order not found in log")
	// ErrUnknownFlag is returned when marking a flag the log does not know.
	ErrUnknownFlag = errors.New("unknown order flag")
	// ErrDryRun is returned by a venue that logged a write instead of sending it.
	// The tracker records nothing for such calls.
	ErrDryRun = errors.New("dry run: call not sent")
)

// Flag is a sticky per-order action marker. Once set it is never cleared.
type Flag string

const (
	FlagNotified10 Flag = "msg_status_10_sent"
	FlagNotified20 Flag = "msg_status_20_sent"
	FlagMarkedPaid Flag = "marked_paid"
)

// Valid reports whether f is a known flag.
func (f Flag) Valid() bool {
	switch f {
	case FlagNotified10, FlagNotified20, FlagMarkedPaid:
		return true
	}
	return false
}

// Counted reports whether f guards a message set whose progress is recorded
// message by message.
func (f Flag) Counted() bool {
	return f == FlagNotified10 || f == FlagNotified20
}

// Entry is the persisted record of an order as first seen, plus its flags.
type Entry struct {
	OrderID    string          `json:"orderId"`
	Side       p2p.Side        `json:"side"`
	Status     int             `json:"status"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	Quantity   decimal.Decimal `json:"quantity"`
	NickName   string          `json:"nickName"`
	RealName   string          `json:"realName"`
	Notified10 bool            `json:"notified10"`
	Notified20 bool            `json:"notified20"`
	MarkedPaid bool            `json:"markedPaid"`
	Sent10     int             `json:"sent10"`
	Sent20     int             `json:"sent20"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// NewEntry builds a fresh entry from an order with every flag unset.
func NewEntry(o p2p.Order, now time.Time) Entry {
	realName := o.SellerRealName
	if o.Side == p2p.SideBuy {
		realName = o.BuyerRealName
	}
	return Entry{
		OrderID:   o.ID,
		Side:      o.Side,
		Status:    o.StatusCode(),
		Price:     o.Price.Decimal(),
		Amount:    o.Amount.Decimal(),
		Quantity:  o.Volume(),
		NickName:  o.Counterparty(),
		RealName:  realName,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Has reports whether flag is set on the entry.
func (e Entry) Has(flag Flag) bool {
	switch flag {
	case FlagNotified10:
		return e.Notified10
	case FlagNotified20:
		return e.Notified20
	case FlagMarkedPaid:
		return e.MarkedPaid
	}
	return false
}

// Set sets flag on the entry.
func (e *Entry) Set(flag Flag) {
	switch flag {
	case FlagNotified10:
		e.Notified10 = true
	case FlagNotified20:
		e.Notified20 = true
	case FlagMarkedPaid:
		e.MarkedPaid = true
	}
}

// Sent returns how many messages of the set behind flag were delivered.
func (e Entry) Sent(flag Flag) int {
	switch flag {
	case FlagNotified10:
		return e.Sent10
	case FlagNotified20:
		return e.Sent20
	}
	return 0
}

// SetSent records that the first n messages of the set behind flag were delivered.
func (e *Entry) SetSent(flag Flag, n int) {
	switch flag {
	case FlagNotified10:
		e.Sent10 = n
	case FlagNotified20:
		e.Sent20 = n
	}
}

// OrderLog persists per-order flags across ticks, and across restarts for
// durable implementations.
type OrderLog interface {
	GetOrCreate(ctx context.Context, order p2p.Order) (Entry, error)
	MarkFlag(ctx context.Context, orderID string, flag Flag) error
	MarkSent(ctx context.Context, orderID string, flag Flag, sent int) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// MemoryLog is an OrderLog kept in process memory.
type MemoryLog struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewMemoryLog creates an empty in-memory order log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

func (m *MemoryLog) GetOrCreate(_ context.Context, order p2p.Order) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[order.ID]; ok {
		return *e, nil
	}
	e := NewEntry(order, m.now())
	m.entries[order.ID] = &e
	return e, nil
}

func (m *MemoryLog) MarkFlag(_ context.Context, orderID string, flag Flag) error {
	if !flag.Valid() {
		return ErrUnknownFlag
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	e.Set(flag)
	e.UpdatedAt = m.now()
	return nil
}

func (m *MemoryLog) MarkSent(_ context.Context, orderID string, flag Flag, sent int) error {
	if !flag.Counted() {
		return ErrUnknownFlag
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	e.SetSent(flag, sent)
	e.UpdatedAt = m.now()
	return nil
}

// Recent returns up to limit entries, newest first.
func (m *MemoryLog) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderID > out[j].OrderID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
