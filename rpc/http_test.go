package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"nhooyr.io/websocket"

	"landescrow/core/events"
	"landescrow/core/state"
	"landescrow/core/types"
	"landescrow/native/escrow"
	"landescrow/native/property"
	"landescrow/observability/logging"
	"landescrow/services/indexer"
	"landescrow/storage"
)

const (
	testSecret = "rpc-test-secret"
	testIssuer = "rpc-tests"
)

var (
	ownerAddr     = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	buyerAddr     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	sellerAddr    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	strangerAddr  = common.HexToAddress("0x9999999999999999999999999999999999999999")
	collectorAddr = common.HexToAddress("0x00000000000000000000000000000000000000fc")
)

type testEnv struct {
	server  *Server
	engine  *escrow.Engine
	stream  *events.Broadcaster
	history *indexer.Store
	handler http.Handler
}

func newTestEnv(t *testing.T, mutate ...func(*ServerConfig)) *testEnv {
	t.Helper()
	engine := escrow.NewEngine()
	engine.SetState(state.NewManager(storage.NewMemDB()))
	engine.SetOwner(ownerAddr)
	engine.SetDirectory(property.NewStatic(
		property.Land{ID: 1, Owner: sellerAddr, Price: big.NewInt(5_000), ForSale: true},
		property.Land{ID: 2, Owner: buyerAddr, Price: big.NewInt(1_000), ForSale: true},
	))
	params := escrow.DefaultParams()
	params.FeeCollector = collectorAddr
	require.NoError(t, engine.SetDefaultParams(params))

	history, err := indexer.Open(filepath.Join(t.TempDir(), "events.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })
	stream := events.NewBroadcaster(8)
	engine.SetEmitter(events.Multi{stream, history})

	cfg := ServerConfig{JWTSecret: []byte(testSecret), JWTIssuer: testIssuer}
	for _, fn := range mutate {
		fn(&cfg)
	}
	lands := property.NewStatic(
		property.Land{ID: 1, Owner: sellerAddr, Price: big.NewInt(5_000), ForSale: true},
	)
	server, err := NewServer(engine, lands, cfg)
	require.NoError(t, err)
	server.SetEventHistory(history)
	server.SetBroadcaster(stream)
	return &testEnv{server: server, engine: engine, stream: stream, history: history, handler: server.Handler()}
}

func tokenFor(t *testing.T, addr [20]byte) string {
	t.Helper()
	token, err := IssueToken([]byte(testSecret), testIssuer, addr, time.Hour, time.Now())
	require.NoError(t, err)
	return token
}

func (env *testEnv) call(t *testing.T, token, methodName string, params interface{}) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": methodName}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	httpReq.RemoteAddr = "192.0.2.1:4000"
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, httpReq)

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return recorder, resp
}

func decodeResult(t *testing.T, resp RPCResponse, dst interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}

func TestCreateLogMasksContactInfo(t *testing.T) {
	var buf bytes.Buffer
	env := newTestEnv(t, func(cfg *ServerConfig) {
		cfg.Logger = slog.New(slog.NewJSONHandler(&buf, nil))
	})
	owner, buyer := tokenFor(t, ownerAddr), tokenFor(t, buyerAddr)
	_, resp := env.call(t, owner, "ledger_credit", map[string]interface{}{"address": buyerAddr.Hex(), "amount": "100"})
	require.Nil(t, resp.Error)
	_, resp = env.call(t, buyer, "escrow_create", map[string]interface{}{
		"landId": 1, "durationDays": 7, "deposit": "100", "contactInfo": "jane@example.com",
	})
	require.Nil(t, resp.Error)

	var created map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["msg"] == "escrow created" {
			created = entry
		}
	}
	require.NotNil(t, created, "escrow created log missing: %s", buf.String())
	require.Equal(t, logging.RedactedValue, created["contactInfo"])
	require.NotContains(t, buf.String(), "jane@example.com")
}

func TestFreeTextIsNormalised(t *testing.T) {
	env := newTestEnv(t)
	owner, buyer := tokenFor(t, ownerAddr), tokenFor(t, buyerAddr)
	_, resp := env.call(t, owner, "ledger_credit", map[string]interface{}{"address": buyerAddr.Hex(), "amount": "100"})
	require.Nil(t, resp.Error)
	_, resp = env.call(t, buyer, "escrow_create", map[string]interface{}{
		"landId": 1, "durationDays": 7, "deposit": "100", "contactInfo": "  Jose\u0301 Pe\u0301rez ",
	})
	var created escrowJSON
	decodeResult(t, resp, &created)
	require.Equal(t, "Jos\u00e9 P\u00e9rez", created.ContactInfo)

	_, resp = env.call(t, buyer, "escrow_cancel", map[string]interface{}{"id": created.ID, "reason": "financ\u0327ing"})
	var cancelled escrowJSON
	decodeResult(t, resp, &cancelled)
	require.Equal(t, "finan\u00e7ing", cancelled.CancelReason)
}

func TestDispatchRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	env := newTestEnv(t, func(cfg *ServerConfig) { cfg.TracerProvider = tp })

	_, resp := env.call(t, "", "escrow_getParams", nil)
	require.Nil(t, resp.Error)
	_, resp = env.call(t, "", "escrow_get", map[string]interface{}{"id": 42})
	require.NotNil(t, resp.Error)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "escrow_getParams", spans[0].Name())
	require.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Equal(t, "escrow_get", spans[1].Name())
	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Contains(t, spans[1].Attributes(), attribute.Int("rpc.jsonrpc.error_code", codeEscrowNotFound))
}

func TestEscrowHappyPathOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	owner, buyer, seller := tokenFor(t, ownerAddr), tokenFor(t, buyerAddr), tokenFor(t, sellerAddr)

	_, resp := env.call(t, owner, "ledger_credit", map[string]interface{}{"address": buyerAddr.Hex(), "amount": "10000"})
	var credited balanceResult
	decodeResult(t, resp, &credited)
	require.Equal(t, "10000", credited.Balance)

	_, resp = env.call(t, buyer, "escrow_create", map[string]interface{}{
		"landId":        1,
		"durationDays":  30,
		"deposit":       "0x2710",
		"contactInfo":   "buyer@example.com",
		"agreementHash": escrow.AgreementDigest([]byte("purchase agreement")),
	})
	var created escrowJSON
	decodeResult(t, resp, &created)
	require.Equal(t, uint64(1), created.ID)
	require.Equal(t, "10000", created.Amount)
	require.Equal(t, "created", created.State)
	require.Equal(t, buyerAddr.Hex(), created.Buyer)
	require.Equal(t, sellerAddr.Hex(), created.Seller)

	_, resp = env.call(t, seller, "escrow_confirm", map[string]interface{}{"id": "1"})
	var confirmed escrowJSON
	decodeResult(t, resp, &confirmed)
	require.Equal(t, "confirmed", confirmed.State)

	_, resp = env.call(t, buyer, "escrow_complete", map[string]interface{}{"id": 1})
	var completed escrowJSON
	decodeResult(t, resp, &completed)
	require.Equal(t, "completed", completed.State)
	require.Equal(t, "100", completed.FeePaid)
	require.Equal(t, "9900", completed.SellerPaid)
	require.NotZero(t, completed.CompletedAt)

	_, resp = env.call(t, "", "ledger_getBalance", map[string]interface{}{"address": sellerAddr.Hex()})
	var balance balanceResult
	decodeResult(t, resp, &balance)
	require.Equal(t, "9900", balance.Balance)

	_, resp = env.call(t, "", "escrow_listByUser", map[string]interface{}{"address": sellerAddr.Hex()})
	var listed escrowListResult
	decodeResult(t, resp, &listed)
	require.Equal(t, []uint64{1}, listed.IDs)
	require.True(t, completed.Terminal)

	_, resp = env.call(t, "", "escrow_listByUser", map[string]interface{}{"address": buyerAddr.Hex(), "state": "Completed"})
	decodeResult(t, resp, &listed)
	require.Equal(t, []uint64{1}, listed.IDs)
	_, resp = env.call(t, "", "escrow_listByUser", map[string]interface{}{"address": buyerAddr.Hex(), "state": "disputed"})
	decodeResult(t, resp, &listed)
	require.Empty(t, listed.IDs)
	_, resp = env.call(t, "", "escrow_listByUser", map[string]interface{}{"address": buyerAddr.Hex(), "open": true})
	decodeResult(t, resp, &listed)
	require.Empty(t, listed.IDs)
	recorder, resp := env.call(t, "", "escrow_listByUser", map[string]interface{}{"address": buyerAddr.Hex(), "state": "pending"})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	_, resp = env.call(t, "", "escrow_listByLand", map[string]interface{}{"landId": 7})
	decodeResult(t, resp, &listed)
	require.Empty(t, listed.IDs)

	_, resp = env.call(t, "", "escrow_verifyAgreement", map[string]interface{}{"id": 1, "document": "purchase agreement"})
	var verified verifyResult
	decodeResult(t, resp, &verified)
	require.True(t, verified.Match)

	_, resp = env.call(t, "", "escrow_listEvents", map[string]interface{}{"id": 1})
	var history []indexer.Record
	decodeResult(t, resp, &history)
	require.Len(t, history, 3)
	require.Equal(t, escrow.EventTypeEscrowCreated, history[0].Type)
	require.Equal(t, escrow.EventTypeEscrowCompleted, history[2].Type)
}

func TestDisputeAndAdminOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	owner, buyer, seller := tokenFor(t, ownerAddr), tokenFor(t, buyerAddr), tokenFor(t, sellerAddr)
	_, resp := env.call(t, owner, "ledger_credit", map[string]interface{}{"address": buyerAddr.Hex(), "amount": "500"})
	require.Nil(t, resp.Error)
	_, resp = env.call(t, buyer, "escrow_create", map[string]interface{}{"landId": 1, "durationDays": 7, "deposit": "500"})
	require.Nil(t, resp.Error)
	_, resp = env.call(t, seller, "escrow_confirm", map[string]interface{}{"id": 1})
	require.Nil(t, resp.Error)

	_, resp = env.call(t, seller, "escrow_partialRefund", map[string]interface{}{"id": 1, "amount": "100", "notes": "repairs"})
	var partial escrowJSON
	decodeResult(t, resp, &partial)
	require.Equal(t, "400", partial.Amount)
	require.Equal(t, "100", partial.Refunded)

	_, resp = env.call(t, buyer, "escrow_raiseDispute", map[string]interface{}{"id": 1, "reason": "survey mismatch"})
	var disputed escrowJSON
	decodeResult(t, resp, &disputed)
	require.Equal(t, "disputed", disputed.State)
	require.Equal(t, "survey mismatch", disputed.DisputeReason)

	recorder, resp := env.call(t, seller, "escrow_resolveDispute", map[string]interface{}{"id": 1, "refundToBuyer": true})
	require.Equal(t, http.StatusForbidden, recorder.Code)
	require.Equal(t, codeEscrowForbidden, resp.Error.Code)

	_, resp = env.call(t, owner, "escrow_resolveDispute", map[string]interface{}{"id": 1, "refundToBuyer": true, "notes": "refund"})
	var resolved escrowJSON
	decodeResult(t, resp, &resolved)
	require.Equal(t, "refunded", resolved.State)
	require.Equal(t, "500", resolved.Refunded)

	_, resp = env.call(t, owner, "escrow_updatePlatformFee", map[string]interface{}{"feeBps": 250})
	var params paramsJSON
	decodeResult(t, resp, &params)
	require.Equal(t, uint32(250), params.FeeBps)
	require.Equal(t, ownerAddr.Hex(), params.Owner)

	recorder, resp = env.call(t, owner, "escrow_updatePlatformFee", map[string]interface{}{"feeBps": 5_000})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Equal(t, codeEscrowInvalidFee, resp.Error.Code)

	_, resp = env.call(t, owner, "escrow_updateArbiter", map[string]interface{}{"address": strangerAddr.Hex()})
	decodeResult(t, resp, &params)
	require.Equal(t, strangerAddr.Hex(), params.Arbiter)

	_, resp = env.call(t, owner, "escrow_updateFeeCollector", map[string]interface{}{"address": ownerAddr.Hex()})
	decodeResult(t, resp, &params)
	require.Equal(t, ownerAddr.Hex(), params.FeeCollector)

	_, resp = env.call(t, "", "escrow_getParams", nil)
	decodeResult(t, resp, &params)
	require.Equal(t, uint32(250), params.FeeBps)
}

func TestCancelAndExpireOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	owner, buyer := tokenFor(t, ownerAddr), tokenFor(t, buyerAddr)
	_, resp := env.call(t, owner, "ledger_credit", map[string]interface{}{"address": buyerAddr.Hex(), "amount": "300"})
	require.Nil(t, resp.Error)
	for i := 0; i < 2; i++ {
		_, resp = env.call(t, buyer, "escrow_create", map[string]interface{}{"landId": 1, "durationDays": 1, "deposit": "150"})
		require.Nil(t, resp.Error)
	}

	_, resp = env.call(t, buyer, "escrow_cancel", map[string]interface{}{"id": 1, "reason": "changed plans"})
	var cancelled escrowJSON
	decodeResult(t, resp, &cancelled)
	require.Equal(t, "refunded", cancelled.State)
	require.Equal(t, "changed plans", cancelled.CancelReason)

	recorder, resp := env.call(t, tokenFor(t, strangerAddr), "escrow_expire", map[string]interface{}{"id": 2})
	require.Equal(t, http.StatusConflict, recorder.Code)
	require.Equal(t, codeEscrowInvalidState, resp.Error.Code)
	require.Equal(t, escrow.KindInvalidState, resp.Error.Message)

	env.engine.SetNowFunc(func() int64 { return time.Now().Add(48 * time.Hour).Unix() })
	_, resp = env.call(t, tokenFor(t, strangerAddr), "escrow_expire", map[string]interface{}{"id": 2})
	var expired escrowJSON
	decodeResult(t, resp, &expired)
	require.Equal(t, "refunded", expired.State)
	require.Equal(t, escrow.ExpiredReason, expired.CancelReason)
}

func TestEscrowErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	owner, buyer, seller := tokenFor(t, ownerAddr), tokenFor(t, buyerAddr), tokenFor(t, sellerAddr)

	cases := []struct {
		name       string
		token      string
		method     string
		params     interface{}
		wantStatus int
		wantCode   int
	}{
		{"not found", "", "escrow_get", map[string]interface{}{"id": 42}, http.StatusNotFound, codeEscrowNotFound},
		{"missing id", "", "escrow_get", map[string]interface{}{}, http.StatusBadRequest, codeInvalidParams},
		{"bad id", "", "escrow_get", map[string]interface{}{"id": "abc"}, http.StatusBadRequest, codeInvalidParams},
		{"bad address", "", "ledger_getBalance", map[string]interface{}{"address": "0x12"}, http.StatusBadRequest, codeInvalidParams},
		{"bad amount", owner, "ledger_credit", map[string]interface{}{"address": buyerAddr.Hex(), "amount": "-5"}, http.StatusBadRequest, codeInvalidParams},
		{"credit not owner", buyer, "ledger_credit", map[string]interface{}{"address": buyerAddr.Hex(), "amount": "5"}, http.StatusForbidden, codeEscrowForbidden},
		{"zero deposit", buyer, "escrow_create", map[string]interface{}{"landId": 1, "durationDays": 5, "deposit": "0"}, http.StatusBadRequest, codeEscrowInvalidAmount},
		{"duration", buyer, "escrow_create", map[string]interface{}{"landId": 1, "durationDays": 91, "deposit": "5"}, http.StatusBadRequest, codeEscrowInvalidDuration},
		{"self dealing", buyer, "escrow_create", map[string]interface{}{"landId": 2, "durationDays": 5, "deposit": "5"}, http.StatusBadRequest, codeEscrowSelfDealing},
		{"unknown land", buyer, "escrow_create", map[string]interface{}{"landId": 9, "durationDays": 5, "deposit": "5"}, http.StatusBadRequest, codeEscrowInvalidLand},
		{"unfunded", seller, "escrow_create", map[string]interface{}{"landId": 2, "durationDays": 5, "deposit": "5"}, http.StatusConflict, codeEscrowTransferFailed},
		{"land lookup", "", "land_get", map[string]interface{}{"landId": 2}, http.StatusBadRequest, codeEscrowInvalidLand},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder, resp := env.call(t, tc.token, tc.method, tc.params)
			require.NotNil(t, resp.Error)
			require.Equal(t, tc.wantStatus, recorder.Code)
			require.Equal(t, tc.wantCode, resp.Error.Code)
		})
	}

	_, resp := env.call(t, "", "land_get", map[string]interface{}{"landId": 1})
	var land landJSON
	decodeResult(t, resp, &land)
	require.Equal(t, sellerAddr.Hex(), land.Owner)
	require.Equal(t, "5000", land.Price)
}

func TestAuthenticationFailures(t *testing.T) {
	env := newTestEnv(t)

	recorder, resp := env.call(t, "", "escrow_confirm", map[string]interface{}{"id": 1})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	forged, err := IssueToken([]byte("other-secret"), testIssuer, buyerAddr, time.Hour, time.Now())
	require.NoError(t, err)
	recorder, _ = env.call(t, forged, "escrow_confirm", map[string]interface{}{"id": 1})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	expired, err := IssueToken([]byte(testSecret), testIssuer, buyerAddr, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	recorder, _ = env.call(t, expired, "escrow_confirm", map[string]interface{}{"id": 1})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	wrongIssuer, err := IssueToken([]byte(testSecret), "someone-else", buyerAddr, time.Hour, time.Now())
	require.NoError(t, err)
	recorder, _ = env.call(t, wrongIssuer, "escrow_confirm", map[string]interface{}{"id": 1})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	auth := NewAuthenticator([]byte(testSecret), testIssuer)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	_, rpcErr := auth.Authenticate(req)
	require.NotNil(t, rpcErr)

	req.Header.Set("Authorization", "Bearer "+tokenFor(t, sellerAddr))
	caller, rpcErr := auth.Authenticate(req)
	require.Nil(t, rpcErr)
	require.Equal(t, [20]byte(sellerAddr), caller)
}

func TestEnvelopeErrors(t *testing.T) {
	env := newTestEnv(t)
	post := func(body string) (*httptest.ResponseRecorder, RPCResponse) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		recorder := httptest.NewRecorder()
		env.handler.ServeHTTP(recorder, req)
		var resp RPCResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		return recorder, resp
	}

	_, resp := post("")
	require.Equal(t, codeInvalidRequest, resp.Error.Code)
	_, resp = post("{")
	require.Equal(t, codeParseError, resp.Error.Code)
	_, resp = post(`{"jsonrpc":"1.0","method":"escrow_get","id":1}`)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)
	recorder, resp := post(`{"jsonrpc":"2.0","method":"escrow_destroy","id":"abc"}`)
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
	require.Equal(t, "abc", resp.ID)
	_, resp = post(`{"jsonrpc":"2.0","method":"escrow_get","params":[{"id":1},{"id":2}],"id":1}`)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	require.Len(t, env.server.Methods(), 20)
}

func TestRateLimitRejectsBursts(t *testing.T) {
	env := newTestEnv(t, func(cfg *ServerConfig) {
		cfg.RateLimitPerSecond = 0.001
		cfg.RateLimitBurst = 2
	})
	for i := 0; i < 2; i++ {
		_, resp := env.call(t, "", "escrow_getParams", nil)
		require.Nil(t, resp.Error)
	}
	recorder, resp := env.call(t, "", "escrow_getParams", nil)
	require.Equal(t, http.StatusTooManyRequests, recorder.Code)
	require.Equal(t, codeRateLimited, resp.Error.Code)

	limiter := NewRateLimiter(0.001, 1)
	require.True(t, limiter.Allow("a"))
	require.False(t, limiter.Allow("a"))
	require.True(t, limiter.Allow("b"))
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	_, resp := env.call(t, "", "escrow_getParams", nil)
	require.Nil(t, resp.Error)

	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "ok")

	recorder = httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "landescrow_module_requests_total")
}

func TestEventStreamOverWebsocket(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/events?escrowId=1", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	require.Eventually(t, func() bool { return env.stream.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = env.engine.Credit(ownerAddr, buyerAddr, big.NewInt(50))
	require.NoError(t, err)
	_, err = env.engine.Create(ctx, buyerAddr, 1, 10, "", "", big.NewInt(50))
	require.NoError(t, err)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var evt types.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, escrow.EventTypeEscrowCreated, evt.Type)
	require.Equal(t, "1", evt.Attributes["escrowId"])
}

func TestNewServerValidation(t *testing.T) {
	engine := escrow.NewEngine()
	lands := property.NewStatic()
	_, err := NewServer(nil, lands, ServerConfig{JWTSecret: []byte("x")})
	require.Error(t, err)
	_, err = NewServer(engine, nil, ServerConfig{JWTSecret: []byte("x")})
	require.Error(t, err)
	_, err = NewServer(engine, lands, ServerConfig{})
	require.Error(t, err)
}
