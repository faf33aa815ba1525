package p2p

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the trading direction of a listing or an order.
// The venue encodes BUY as 0 and SELL as 1.
type Side int

const (
	SideBuy  Side = 0
	SideSell Side = 1
)

// Sides lists both directions in processing order. BUY comes first because the
// SELL side uses the BUY quote of the same tick as a reference.
var Sides = []Side{SideBuy, SideSell}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// Code returns the venue's wire representation of the side.
func (s Side) Code() string {
	return strconv.Itoa(int(s))
}

// Valid reports whether s is one of the two known directions.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// ParseSide parses "BUY"/"SELL" (case-insensitive) or the numeric codes "0"/"1".
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "0":
		return SideBuy, nil
	case "SELL", "1":
		return SideSell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

// UnmarshalJSON accepts the side as a JSON number or a quoted number.
func (s *Side) UnmarshalJSON(data []byte) error {
	var n Number
	if err := n.UnmarshalJSON(data); err != nil {
		return err
	}
	*s = Side(n.Int())
	return nil
}

// Number is a venue numeric field. The API mixes JSON strings and numbers for
// the same fields, so the raw text is kept and parsed on demand. Absent or
// non-numeric values read as zero.
type Number string

// UnmarshalJSON accepts strings, numbers and null.
func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		*n = ""
		return nil
	}
	if s[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("invalid numeric string %s: %w", s, err)
		}
		*n = Number(strings.TrimSpace(unquoted))
		return nil
	}
	*n = Number(s)
	return nil
}

// MarshalJSON always emits a JSON string, which is what the mutating endpoints expect.
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(n))), nil
}

// Decimal returns the value as a decimal, or zero when it does not parse.
func (n Number) Decimal() decimal.Decimal {
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Float returns the value as a float64, or zero when it does not parse.
func (n Number) Float() float64 {
	f, _ := n.Decimal().Float64()
	return f
}

// Int returns the integer part of the value, or zero when it does not parse.
func (n Number) Int() int {
	return int(n.Decimal().IntPart())
}

func (n Number) String() string {
	return string(n)
}

// NumberFrom formats a decimal as a Number.
func NumberFrom(d decimal.Decimal) Number {
	return Number(d.String())
}

// StringList decodes either a JSON array of strings or a comma separated string.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*l = items
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		*l = nil
		return nil
	}

	var out []string
	for _, part := range strings.Split(joined, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*l = out
	return nil
}

// MarshalJSON emits the comma separated form used by the update endpoint.
func (l StringList) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strings.Join(l, ","))), nil
}

// TradingPreferences holds the advertiser restrictions attached to a listing.
type TradingPreferences struct {
	HasUnPostAd               Number     `json:"hasUnPostAd"`
	IsKyc                     Number     `json:"isKyc"`
	IsEmail                   Number     `json:"isEmail"`
	IsMobile                  Number     `json:"isMobile"`
	HasRegisterTime           Number     `json:"hasRegisterTime"`
	RegisterTimeThreshold     Number     `json:"registerTimeThreshold"`
	OrderFinishNumberDay30    Number     `json:"orderFinishNumberDay30"`
	CompleteRateDay30         Number     `json:"completeRateDay30"`
	NationalLimit             StringList `json:"nationalLimit"`
	HasOrderFinishNumberDay30 Number     `json:"hasOrderFinishNumberDay30"`
	HasCompleteRateDay30      Number     `json:"hasCompleteRateDay30"`
	HasNationalLimit          Number     `json:"hasNationalLimit"`
}

// Listing is a market-visible advertisement owned by some counterparty.
type Listing struct {
	ID                   string             `json:"id"`
	AccountID            string             `json:"accountId"`
	UserID               string             `json:"userId"`
	NickName             string             `json:"nickName"`
	TokenID              string             `json:"tokenId"`
	CurrencyID           string             `json:"currencyId"`
	Side                 Side               `json:"side"`
	Price                Number             `json:"price"`
	LastQuantity         Number             `json:"lastQuantity"`
	Quantity             Number             `json:"quantity"`
	MinAmount            Number             `json:"minAmount"`
	MaxAmount            Number             `json:"maxAmount"`
	Payments             []string           `json:"payments"`
	RecentOrderNum       Number             `json:"recentOrderNum"`
	RecentExecuteRate    Number             `json:"recentExecuteRate"`
	Remark               string             `json:"remark"`
	Status               Number             `json:"status"`
	TradingPreferenceSet TradingPreferences `json:"tradingPreferenceSet"`
}

// PriceDecimal returns the listing price.
func (l Listing) PriceDecimal() decimal.Decimal {
	return l.Price.Decimal()
}

// Owner identifies the counterparty behind the listing. Neighbor exclusion
// and targeting both key on the public nickname.
func (l Listing) Owner() string {
	return l.NickName
}

// Listing status codes.
const (
	ListingStatusOnline = 10
)

// Update action types.
const (
	ActionModify = "MODIFY"
	ActionActive = "ACTIVE"
)

// PaymentConfig describes the payment method behind a payment term.
type PaymentConfig struct {
	PaymentType Number `json:"paymentType"`
	PaymentName string `json:"paymentName"`
}

// PaymentTerm is a configured payment method of an account.
type PaymentTerm struct {
	ID              string        `json:"id"`
	PaymentType     Number        `json:"paymentType"`
	RealName        string        `json:"realName"`
	AccountNo       string        `json:"accountNo"`
	BankName        string        `json:"bankName"`
	BranchName      string        `json:"branchName"`
	PayMessage      string        `json:"payMessage"`
	PaymentConfigVo PaymentConfig `json:"paymentConfigVo"`
}

// ManagedListing is a listing owned by our own account.
type ManagedListing struct {
	Listing
	PriceType     Number        `json:"priceType"`
	Premium       Number        `json:"premium"`
	PaymentTerms  []PaymentTerm `json:"paymentTerms"`
	PaymentPeriod Number        `json:"paymentPeriod"`
}

// IsAutoManaged reports whether the listing carries the given remark tag.
func (m ManagedListing) IsAutoManaged(tag string) bool {
	return tag != "" && strings.HasPrefix(m.Remark, tag)
}

// UpdateListingRequest replays the literal fields of a managed listing with a new price and quantity.
type UpdateListingRequest struct {
	ID                   string             `json:"id"`
	PriceType            string             `json:"priceType"`
	Premium              string             `json:"premium"`
	Price                string             `json:"price"`
	MinAmount            string             `json:"minAmount"`
	MaxAmount            string             `json:"maxAmount"`
	Remark               string             `json:"remark"`
	TradingPreferenceSet TradingPreferences `json:"tradingPreferenceSet"`
	PaymentIDs           []string           `json:"paymentIds"`
	ActionType           string             `json:"actionType"`
	Quantity             string             `json:"quantity"`
	PaymentPeriod        string             `json:"paymentPeriod"`
}

// NewUpdateRequest builds a fixed-price update for a managed listing.
// Online listings are modified in place; offline ones are re-activated.
func NewUpdateRequest(l ManagedListing, price, quantity decimal.Decimal) UpdateListingRequest {
	paymentIDs := make([]string, 0, len(l.PaymentTerms))
	for _, term := range l.PaymentTerms {
		paymentIDs = append(paymentIDs, term.ID)
	}

	action := ActionActive
	if l.Status.Int() == ListingStatusOnline {
		action = ActionModify
	}

	return UpdateListingRequest{
		ID:                   l.ID,
		PriceType:            "0",
		Premium:              "0",
		Price:                price.String(),
		MinAmount:            l.MinAmount.String(),
		MaxAmount:            l.MaxAmount.String(),
		Remark:               l.Remark,
		TradingPreferenceSet: l.TradingPreferenceSet,
		PaymentIDs:           paymentIDs,
		ActionType:           action,
		Quantity:             quantity.String(),
		PaymentPeriod:        l.PaymentPeriod.String(),
	}
}

// Order status codes reported by the venue.
const (
	OrderStatusAwaitingChain     = 5
	OrderStatusAwaitingPayment   = 10
	OrderStatusAwaitingRelease   = 20
	OrderStatusAppeal            = 30
	OrderStatusCancelled         = 40
	OrderStatusCompleted         = 50
	OrderStatusPaying            = 60
	OrderStatusPayFailed         = 70
	OrderStatusExceptionCanceled = 80
)

// Order is a pending order as returned by the pending-orders listing.
type Order struct {
	ID                  string `json:"id"`
	Side                Side   `json:"side"`
	TokenID             string `json:"tokenId"`
	CurrencyID          string `json:"currencyId"`
	Price               Number `json:"price"`
	Amount              Number `json:"amount"`
	Quantity            Number `json:"quantity"`
	NotifyTokenQuantity Number `json:"notifyTokenQuantity"`
	Status              Number `json:"status"`
	NickName            string `json:"nickName"`
	TargetNickName      string `json:"targetNickName"`
	TargetUserID        string `json:"targetUserId"`
	BuyerRealName       string `json:"buyerRealName"`
	SellerRealName      string `json:"sellerRealName"`
	CreateDate          Number `json:"createDate"`
}

// StatusCode returns the venue status as an integer.
func (o Order) StatusCode() int {
	return o.Status.Int()
}

// Volume returns the traded asset quantity of the order.
func (o Order) Volume() decimal.Decimal {
	if q := o.NotifyTokenQuantity.Decimal(); !q.IsZero() {
		return q
	}
	return o.Quantity.Decimal()
}

// Counterparty returns the nickname of the other side of the order.
func (o Order) Counterparty() string {
	if o.TargetNickName != "" {
		return o.TargetNickName
	}
	return o.NickName
}

// OrderDetails is the full order record including payment terms.
type OrderDetails struct {
	Order
	PaymentTermList  []PaymentTerm `json:"paymentTermList"`
	ConfirmedPayTerm *PaymentTerm  `json:"confirmedPayTerm"`
}

// Balance is a single coin entry of the funding account.
type Balance struct {
	Coin            string `json:"coin"`
	WalletBalance   Number `json:"walletBalance"`
	TransferBalance Number `json:"transferBalance"`
}

// APIError represents a non-zero return code from the venue.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("p2p api error %d: %s", e.Code, e.Message)
}
