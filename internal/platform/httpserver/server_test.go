package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	marketplaceservice "tiof/contexts/token-trading/marketplace-service"
	"tiof/contexts/token-trading/marketplace-service/application/workers"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	httptransport "tiof/contexts/token-trading/marketplace-service/transport/http"
	contractsv1 "tiof/contracts/gen/events/v1"
	"tiof/internal/platform/chain"
	"tiof/internal/platform/messaging"
	"tiof/internal/platform/metrics"

	"github.com/gorilla/websocket"
)

const (
	testAdmin  = "tz1Admin"
	testEscrow = "KT1Marketplace"
	testSeller = "tz1Seller"
	testBuyer  = "tz1Buyer"
	testAsset  = "KT1Multi"
)

type testServer struct {
	*Server
	module  marketplaceservice.Module
	sandbox *chain.Sandbox
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	sandbox := chain.NewSandbox(quietLogger())
	if err := sandbox.DeployFA2(testAsset, 7); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if err := sandbox.Mint(testAsset, testSeller, 7, 1); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := sandbox.AddOperator(testAsset, testSeller, testEscrow, 7); err != nil {
		t.Fatalf("add operator: %v", err)
	}
	sandbox.Credit(testBuyer, 10_000)

	module := marketplaceservice.NewInMemoryModule(testAdmin, testEscrow, sandbox, quietLogger())
	server := New(module, NewEventStream(quietLogger()), metrics.NewRecorder(), quietLogger(), ":0")
	return testServer{Server: server, module: module, sandbox: sandbox}
}

func (s testServer) do(t *testing.T, method string, path string, caller string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-Caller-Address", caller)
	}
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) httptransport.ErrorResponse {
	t.Helper()
	var resp httptransport.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return resp
}

func TestMutatingRoutesRequireCallerHeader(t *testing.T) {
	server := newTestServer(t)
	cases := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPut, "/v1/administrator", `{"administrator":"tz1Next"}`},
		{http.MethodPost, "/v1/markets", `{"contract":"KT1Multi","token_kind":"fa2"}`},
		{http.MethodDelete, "/v1/markets/KT1Multi", ""},
		{http.MethodPost, "/v1/sales", `{"contract":"KT1Multi","token_id":7,"amount":1,"price_mutez":1}`},
		{http.MethodPost, "/v1/sales/1/buy", `{"amount_mutez":1}`},
		{http.MethodDelete, "/v1/sales/1", ""},
	}
	for _, tc := range cases {
		rr := server.do(t, tc.method, tc.path, "", tc.body)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d body=%s", tc.method, tc.path, rr.Code, rr.Body.String())
		}
	}
}

func TestRegisterMarketRequiresAdministrator(t *testing.T) {
	server := newTestServer(t)

	rr := server.do(t, http.MethodPost, "/v1/markets", testSeller, `{"contract":"KT1Multi","token_kind":"fa2"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
	if code := decodeError(t, rr).Code; code != "TIOF_NOT_ADMIN" {
		t.Fatalf("expected TIOF_NOT_ADMIN, got %s", code)
	}

	rr = server.do(t, http.MethodPost, "/v1/markets", testAdmin, `{"contract":"KT1Multi","token_kind":"fa2"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = server.do(t, http.MethodPost, "/v1/markets", testAdmin, `{"contract":"KT1Multi","token_kind":"fa2"}`)
	if rr.Code != http.StatusConflict || decodeError(t, rr).Code != "TIOF_ALREADY_REGISTERED" {
		t.Fatalf("expected 409 already registered, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t)
	if rr := server.do(t, http.MethodPost, "/v1/markets", testAdmin, `{"contract":"KT1Multi","token_kind":"fa2"}`); rr.Code != http.StatusCreated {
		t.Fatalf("register: %d body=%s", rr.Code, rr.Body.String())
	}

	rr := server.do(t, http.MethodPost, "/v1/sales", testSeller, `{"contract":"KT1Multi","token_id":7,"amount":1,"price_mutez":2500}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("sell: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var listed httptransport.GetSaleResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if listed.Item.SaleID != 1 || listed.Item.PriceTez != "0.002500" {
		t.Fatalf("unexpected sale %+v", listed.Item)
	}

	if rr := server.do(t, http.MethodGet, "/v1/sales/1", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("get sale: expected 200, got %d", rr.Code)
	}

	rr = server.do(t, http.MethodPost, "/v1/sales/1/buy", testBuyer, `{"amount_mutez":2499}`)
	if rr.Code != http.StatusUnprocessableEntity || decodeError(t, rr).Code != "TIOF_PRICE_MISMATCH" {
		t.Fatalf("expected 422 price mismatch, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = server.do(t, http.MethodDelete, "/v1/sales/1", testBuyer, "")
	if rr.Code != http.StatusForbidden || decodeError(t, rr).Code != "TIOF_NOT_ADMIN_OR_SELLER" {
		t.Fatalf("expected 403 not admin or seller, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = server.do(t, http.MethodPost, "/v1/sales/1/buy", testBuyer, `{"amount_mutez":2500}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("buy: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got := server.sandbox.TezBalance(testSeller); got != 2500 {
		t.Fatalf("seller not paid: %d", got)
	}

	rr = server.do(t, http.MethodGet, "/v1/sales/1", "", "")
	if rr.Code != http.StatusNotFound || decodeError(t, rr).Code != "TIOF_NOT_EXISTENT_SALE" {
		t.Fatalf("expected 404 sale, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSellWithoutOperatorIsUnprocessable(t *testing.T) {
	server := newTestServer(t)
	server.do(t, http.MethodPost, "/v1/markets", testAdmin, `{"contract":"KT1Multi","token_kind":"fa2"}`)

	rr := server.do(t, http.MethodPost, "/v1/sales", testBuyer, `{"contract":"KT1Multi","token_id":7,"amount":1,"price_mutez":1}`)
	if rr.Code != http.StatusUnprocessableEntity || decodeError(t, rr).Code != "TIOF_TRANSFER_REJECTED" {
		t.Fatalf("expected 422 transfer rejected, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMalformedRequestsAreBadRequests(t *testing.T) {
	server := newTestServer(t)
	cases := []struct {
		method string
		path   string
		caller string
		body   string
	}{
		{http.MethodGet, "/v1/sales/abc", "", ""},
		{http.MethodGet, "/v1/sales?limit=many", "", ""},
		{http.MethodPost, "/v1/sales", testSeller, `{"contract":`},
		{http.MethodPost, "/v1/markets", testAdmin, `{"contract":"KT1Multi","token_kind":"erc721"}`},
		{http.MethodPost, "/v1/sales", testSeller, `{"contract":"KT1Multi","token_id":7,"amount":0,"price_mutez":1}`},
	}
	for _, tc := range cases {
		rr := server.do(t, tc.method, tc.path, tc.caller, tc.body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d body=%s", tc.method, tc.path, rr.Code, rr.Body.String())
		}
		if code := decodeError(t, rr).Code; code != "TIOF_INVALID_REQUEST" {
			t.Fatalf("%s %s: expected TIOF_INVALID_REQUEST, got %s", tc.method, tc.path, code)
		}
	}
}

func TestUnknownMarketIsNotFound(t *testing.T) {
	server := newTestServer(t)

	rr := server.do(t, http.MethodGet, "/v1/markets/KT1Nowhere", "", "")
	if rr.Code != http.StatusNotFound || decodeError(t, rr).Code != "TIOF_NOT_EXISTENT_MARKET" {
		t.Fatalf("expected 404 market, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = server.do(t, http.MethodDelete, "/v1/markets/KT1Nowhere", testAdmin, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 removing unknown market, got %d", rr.Code)
	}
}

func TestSettlementConflictIsConflict(t *testing.T) {
	server := newTestServer(t)
	rr := httptest.NewRecorder()

	server.writeMarketplaceDomainError(rr, fmt.Errorf("%w: %w", domainerrors.ErrSettlementConflict, chain.ErrStaleSession))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if code := decodeError(t, rr).Code; code != "TIOF_SETTLEMENT_CONFLICT" {
		t.Fatalf("expected TIOF_SETTLEMENT_CONFLICT, got %s", code)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	server := newTestServer(t)

	if rr := server.do(t, http.MethodGet, "/healthz", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rr.Code)
	}
	server.do(t, http.MethodGet, "/v1/administrator", "", "")

	rr := server.do(t, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `tiof_http_requests_total{route="GET /v1/administrator",status="200"} 1`) {
		t.Fatalf("metrics missing administrator request:\n%s", rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), `route="GET /healthz"`) {
		t.Fatalf("healthz should not be instrumented")
	}
}

func TestEventStreamDeliversRelayedEnvelopes(t *testing.T) {
	server := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := messaging.NewBus(nil, quietLogger())
	if err := server.stream.Start(ctx, bus, workers.EventsTopic); err != nil {
		t.Fatalf("start stream: %v", err)
	}

	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/v1/events/stream?contract=" + testAsset
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for server.stream.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// An envelope for another contract is filtered out.
	server.stream.Broadcast(contractsv1.Envelope{EventID: "other", EventType: "marketplace.market_registered", PartitionKey: "KT1Other"})

	if rr := server.do(t, http.MethodPost, "/v1/markets", testAdmin, `{"contract":"KT1Multi","token_kind":"fa2"}`); rr.Code != http.StatusCreated {
		t.Fatalf("register: %d", rr.Code)
	}
	relay := server.module.Relay
	relay.Publisher = bus
	if sent, err := relay.RunOnce(ctx); err != nil || sent != 1 {
		t.Fatalf("relay sent %d err=%v", sent, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var envelope contractsv1.Envelope
	if err := conn.ReadJSON(&envelope); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	if envelope.EventType != "marketplace.market_registered" || envelope.PartitionKey != testAsset {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
}
