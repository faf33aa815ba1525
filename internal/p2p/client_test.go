package p2p

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient("test-key", "test-secret", false).
		WithBaseURL(server.URL).
		WithRateLimit(1000, 1000).
		WithMarket("USDT", "PLN")
}

func TestClient_SignsRequests(t *testing.T) {
	var gotBody string
	var gotHeaders http.Header

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotHeaders = r.Header.Clone()
		fmt.Fprint(w, `{"ret_code":0,"ret_msg":"SUCCESS","result":{}}`)
	})

	if err := client.ReleaseOrder(context.Background(), "order-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotHeaders.Get(headerAPIKey) != "test-key" {
		t.Errorf("api key header = %q", gotHeaders.Get(headerAPIKey))
	}
	if gotHeaders.Get(headerRecvWindow) != recvWindow {
		t.Errorf("recv window header = %q", gotHeaders.Get(headerRecvWindow))
	}

	timestamp := gotHeaders.Get(headerTimestamp)
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(timestamp + "test-key" + recvWindow + gotBody))
	want := hex.EncodeToString(mac.Sum(nil))

	if got := gotHeaders.Get(headerSignature); got != want {
		t.Errorf("signature = %q, want %q", got, want)
	}
}

func TestClient_APIError(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantCode int
	}{
		{"legacy spelling", `{"ret_code":10001,"ret_msg":"bad params"}`, 10001},
		{"v5 spelling", `{"retCode":10003,"retMsg":"invalid key"}`, 10003},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.response)
			})

			err := client.MarkPaid(context.Background(), "1", "14", "77")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", apiErr.Code, tt.wantCode)
			}
		})
	}
}

func TestClient_HTTPStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream down")
	})

	_, err := client.OwnListings(context.Background(), SideSell)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 APIError, got %v", err)
	}
}

func TestClient_MarketListingsPagesAndExcludesOwn(t *testing.T) {
	var mu sync.Mutex
	var pages []string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/p2p/item/online" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]string
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad body: %v", err)
		}

		mu.Lock()
		pages = append(pages, req["page"])
		mu.Unlock()

		switch req["page"] {
		case "1":
			fmt.Fprint(w, `{"ret_code":0,"result":{"count":3,"items":[
				{"id":"a","userId":"u1","nickName":"alice","price":"4.01"},
				{"id":"b","userId":"me","nickName":"self","price":"4.02"}]}}`)
		default:
			fmt.Fprint(w, `{"ret_code":0,"result":{"count":3,"items":[
				{"id":"c","userId":"u2","nickName":"bob","price":4.03}]}}`)
		}
	}).WithAccount("me").WithPaging(2, 5)

	listings, err := client.MarketListings(context.Background(), SideSell)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Join(pages, ",") != "1,2" {
		t.Errorf("pages fetched = %v, want [1 2]", pages)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}
	if listings[0].ID != "a" || listings[1].ID != "c" {
		t.Errorf("unexpected listings order: %s, %s", listings[0].ID, listings[1].ID)
	}
	if !listings[1].PriceDecimal().Equal(decimal.RequireFromString("4.03")) {
		t.Errorf("numeric price not decoded: %s", listings[1].Price)
	}
}

func TestClient_MarketListingsPageCap(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"ret_code":0,"result":{"items":[{"id":"x","price":"1"}]}}`)
	}).WithPaging(1, 3)

	if _, err := client.MarketListings(context.Background(), SideBuy); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 page requests, got %d", calls)
	}
}

func TestClient_Balance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Query().Get("accountType") != "FUND" {
			t.Errorf("accountType = %q", r.URL.Query().Get("accountType"))
		}
		fmt.Fprint(w, `{"retCode":0,"retMsg":"success","result":{"balance":[
			{"coin":"BTC","transferBalance":"0.5"},
			{"coin":"USDT","transferBalance":"212.75"}]}}`)
	})

	got, err := client.Balance(context.Background(), "USDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("212.75")) {
		t.Errorf("balance = %s, want 212.75", got)
	}

	missing, err := client.Balance(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !missing.IsZero() {
		t.Errorf("missing coin balance = %s, want 0", missing)
	}
}

func TestClient_OrderDetails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ret_code":0,"result":{"id":"o1","side":0,"status":10,
			"paymentTermList":[{"id":"pt-9","paymentType":"14","realName":"J"}]}}`)
	})

	details, err := client.OrderDetails(context.Background(), "o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.StatusCode() != OrderStatusAwaitingPayment {
		t.Errorf("status = %d", details.StatusCode())
	}
	if len(details.PaymentTermList) != 1 || details.PaymentTermList[0].ID != "pt-9" {
		t.Fatalf("unexpected payment terms: %+v", details.PaymentTermList)
	}
	if details.PaymentTermList[0].PaymentType.String() != "14" {
		t.Errorf("payment type = %s", details.PaymentTermList[0].PaymentType)
	}
}

func TestClient_SendChatMessageUsesUniqueUUID(t *testing.T) {
	var uuids []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		uuids = append(uuids, req["msgUuid"])
		fmt.Fprint(w, `{"ret_code":0,"result":{}}`)
	})

	for i := 0; i < 2; i++ {
		if err := client.SendChatMessage(context.Background(), "o1", "hello"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(uuids) != 2 || uuids[0] == "" || uuids[0] == uuids[1] {
		t.Errorf("expected two distinct message uuids, got %v", uuids)
	}
}
