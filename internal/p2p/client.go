package p2p

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	mainnetURL         = "https://api.bybit.com"
	testnetURL         = "https://api-testnet.bybit.com"
	headerAPIKey       = "X-BAPI-API-KEY"
	headerSignature    = "X-BAPI-SIGN"
	headerTimestamp    = "X-BAPI-TIMESTAMP"
	headerRecvWindow   = "X-BAPI-RECV-WINDOW"
	recvWindow         = "20000"
	defaultTimeout     = 30 * time.Second
	defaultPageSize    = 20
	defaultMaxPages    = 5
	defaultRateLimit   = 5
	defaultRateBurst   = 5
	pendingOrdersLimit = 30
	fundingAccountType = "FUND"
)

// Client is the venue P2P REST API client with HMAC authentication.
type Client struct {
	apiKey     string
	secret     string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter

	tokenID    string
	currencyID string
	myUID      string
	pageSize   int
	maxPages   int
}

// NewClient creates a new P2P API client.
func NewClient(apiKey, secret string, testnet bool) *Client {
	base := mainnetURL
	if testnet {
		base = testnetURL
	}
	return &Client{
		apiKey: apiKey,
		secret: secret,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL:  base,
		limiter:  rate.NewLimiter(rate.Limit(defaultRateLimit), defaultRateBurst),
		pageSize: defaultPageSize,
		maxPages: defaultMaxPages,
	}
}

// WithHTTPClient sets a custom HTTP client.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// WithBaseURL sets a custom base URL (useful for testing).
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

// WithRateLimit sets the sustained request rate and burst.
func (c *Client) WithRateLimit(perSecond float64, burst int) *Client {
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return c
}

// WithMarket sets the traded token and quote currency used by listing queries.
func (c *Client) WithMarket(tokenID, currencyID string) *Client {
	c.tokenID = tokenID
	c.currencyID = currencyID
	return c
}

// WithAccount sets our own user id so market queries can exclude our listings.
func (c *Client) WithAccount(uid string) *Client {
	c.myUID = uid
	return c
}

// WithPaging sets the page size and the maximum number of pages fetched per market query.
func (c *Client) WithPaging(pageSize, maxPages int) *Client {
	if pageSize > 0 {
		c.pageSize = pageSize
	}
	if maxPages > 0 {
		c.maxPages = maxPages
	}
	return c
}

type itemsResult[T any] struct {
	Count int `json:"count"`
	Items []T `json:"items"`
}

// OnlineListings fetches one page of market listings for a side.
func (c *Client) OnlineListings(ctx context.Context, side Side, page, size int) ([]Listing, error) {
	payload := map[string]string{
		"tokenId":    c.tokenID,
		"currencyId": c.currencyID,
		"side":       side.Code(),
		"page":       strconv.Itoa(page),
		"size":       strconv.Itoa(size),
	}

	var result itemsResult[Listing]
	if err := c.post(ctx, "/v5/p2p/item/online", payload, &result); err != nil {
		return nil, fmt.Errorf("failed to get online listings: %w", err)
	}
	return result.Items, nil
}

// MarketListings pages through market listings until a short page is returned
// or the page cap is hit. Listings owned by our own account are dropped.
func (c *Client) MarketListings(ctx context.Context, side Side) ([]Listing, error) {
	var all []Listing
	for page := 1; page <= c.maxPages; page++ {
		items, err := c.OnlineListings(ctx, side, page, c.pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < c.pageSize {
			break
		}
	}
	return ExcludeOwner(all, c.myUID), nil
}

// ExcludeOwner drops listings posted by the given user id.
func ExcludeOwner(listings []Listing, uid string) []Listing {
	if uid == "" {
		return listings
	}
	out := make([]Listing, 0, len(listings))
	for _, l := range listings {
		if l.UserID != uid {
			out = append(out, l)
		}
	}
	return out
}

// OwnListings fetches our own listings for a side.
func (c *Client) OwnListings(ctx context.Context, side Side) ([]ManagedListing, error) {
	payload := map[string]string{
		"tokenId":    c.tokenID,
		"currencyId": c.currencyID,
		"side":       side.Code(),
	}

	var result itemsResult[ManagedListing]
	if err := c.post(ctx, "/v5/p2p/item/personal/list", payload, &result); err != nil {
		return nil, fmt.Errorf("failed to get own listings: %w", err)
	}
	return result.Items, nil
}

// Balance returns the transferable funding balance of a coin.
// A coin missing from the response has a zero balance.
func (c *Client) Balance(ctx context.Context, coin string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("accountType", fundingAccountType)
	params.Set("coin", coin)

	var result struct {
		Balance []Balance `json:"balance"`
	}
	if err := c.get(ctx, "/v5/asset/transfer/query-account-coins-balance", params, &result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}

	for _, b := range result.Balance {
		if b.Coin == coin {
			return b.TransferBalance.Decimal(), nil
		}
	}
	return decimal.Zero, nil
}

// PendingOrders fetches in-flight orders for a side.
func (c *Client) PendingOrders(ctx context.Context, side Side) ([]Order, error) {
	payload := map[string]any{
		"page":    1,
		"size":    pendingOrdersLimit,
		"tokenId": c.tokenID,
		"side":    []int{int(side)},
	}

	var result itemsResult[Order]
	if err := c.post(ctx, "/v5/p2p/order/pending/simplifyList", payload, &result); err != nil {
		return nil, fmt.Errorf("failed to get pending orders: %w", err)
	}
	return result.Items, nil
}

// OrderDetails fetches the full order record including payment terms.
func (c *Client) OrderDetails(ctx context.Context, orderID string) (*OrderDetails, error) {
	var details OrderDetails
	if err := c.post(ctx, "/v5/p2p/order/info", map[string]string{"orderId": orderID}, &details); err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	return &details, nil
}

// UpdateListing modifies one of our own listings.
func (c *Client) UpdateListing(ctx context.Context, req UpdateListingRequest) error {
	if err := c.post(ctx, "/v5/p2p/item/update", req, nil); err != nil {
		return fmt.Errorf("failed to update listing %s: %w", req.ID, err)
	}
	return nil
}

// MarkPaid marks an order as paid with the given payment method.
func (c *Client) MarkPaid(ctx context.Context, orderID, paymentType, paymentID string) error {
	payload := map[string]string{
		"orderId":     orderID,
		"paymentType": paymentType,
		"paymentId":   paymentID,
	}
	if err := c.post(ctx, "/v5/p2p/order/pay", payload, nil); err != nil {
		return fmt.Errorf("failed to mark order %s paid: %w", orderID, err)
	}
	return nil
}

// ReleaseOrder releases escrowed assets to the buyer.
func (c *Client) ReleaseOrder(ctx context.Context, orderID string) error {
	if err := c.post(ctx, "/v5/p2p/order/finish", map[string]string{"orderId": orderID}, nil); err != nil {
		return fmt.Errorf("failed to release order %s: %w", orderID, err)
	}
	return nil
}

// SendChatMessage posts a text message into the order chat.
func (c *Client) SendChatMessage(ctx context.Context, orderID, text string) error {
	payload := map[string]string{
		"message":     text,
		"contentType": "str",
		"orderId":     orderID,
		"msgUuid":     uuid.NewString(),
	}
	if err := c.post(ctx, "/v5/p2p/order/message/send", payload, nil); err != nil {
		return fmt.Errorf("failed to send message to order %s: %w", orderID, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	query := params.Encode()
	target := path
	if query != "" {
		target += "?" + query
	}
	return c.doRequest(ctx, http.MethodGet, target, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.doRequest(ctx, http.MethodPost, path, string(body), body, out)
}

// envelope covers both return-code spellings used across venue endpoints.
type envelope struct {
	RetCode       *int                `json:"retCode"`
	RetMsg        string              `json:"retMsg"`
	LegacyRetCode *int                `json:"ret_code"`
	LegacyRetMsg  string              `json:"ret_msg"`
	Result        jsoniter.RawMessage `json:"result"`
}

func (e envelope) code() (int, string) {
	if e.RetCode != nil {
		return *e.RetCode, e.RetMsg
	}
	if e.LegacyRetCode != nil {
		return *e.LegacyRetCode, e.LegacyRetMsg
	}
	return 0, ""
}

// doRequest performs an authenticated HTTP request and decodes the result field into out.
func (c *Client) doRequest(ctx context.Context, method, target, signPayload string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+target, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set(headerSignature, c.sign(timestamp, signPayload))
	req.Header.Set(headerTimestamp, timestamp)
	req.Header.Set(headerRecvWindow, recvWindow)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{Code: resp.StatusCode, Message: string(raw)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if code, msg := env.code(); code != 0 {
		return &APIError{Code: code, Message: msg}
	}

	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// sign generates the HMAC-SHA256 signature for a request.
func (c *Client) sign(timestamp, payload string) string {
	message := timestamp + c.apiKey + recvWindow + payload

	h := hmac.New(sha256.New, []byte(c.secret))
	h.Write([]byte(message))

	return hex.EncodeToString(h.Sum(nil))
}
