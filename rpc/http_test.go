package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"yetifarm/config"
	"yetifarm/core/events"
	"yetifarm/core/state"
	"yetifarm/crypto"
	"yetifarm/explorer"
	"yetifarm/native/bank"
	nativecommon "yetifarm/native/common"
	"yetifarm/native/farm"
	"yetifarm/observability/metrics"
	"yetifarm/storage"
)

const (
	testToken         = "secret-token"
	testAccountSecret = "account-secret"
	testStart         = 1_700_000_000
)

type testServer struct {
	handler http.Handler
	clock   *farm.ManualClock
	module  crypto.Address
	staked  *bank.Ledger
	reward  *bank.Ledger
	pauses  *nativecommon.PauseSet
}

type testResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func newTestServer(t *testing.T, limit config.RateLimit) *testServer {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	staked, err := bank.NewLedger("STK", db)
	require.NoError(t, err)
	reward, err := bank.NewLedger("RWD", db)
	require.NoError(t, err)

	module := crypto.ModuleAddress(farm.ModuleName)
	clock := farm.NewManualClock(testStart)
	pauses := nativecommon.NewPauseSet()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, explorer.AutoMigrate(gdb))
	journal := explorer.NewJournal(gdb, "STK", "RWD", nil)

	engine := farm.NewEngine(module, bank.NewGateway(staked, module), bank.NewGateway(reward, module))
	engine.SetState(state.NewManager(db))
	engine.SetClock(clock)
	engine.SetPauses(pauses)
	engine.SetEmitter(events.MultiEmitter{journal})

	registry := prometheus.NewRegistry()
	server, err := NewServer(Options{
		Engine:          engine,
		Staked:          staked,
		Reward:          reward,
		Journal:         journal,
		Pauses:          pauses,
		AuthToken:       testToken,
		AccountAuth:     config.AccountAuth{Issuer: "yetifarm-test", ClockSkewSeconds: 5},
		AccountSecret:   testAccountSecret,
		DefaultDuration: 100,
		RateLimit:       limit,
		Metrics:         metrics.NewRPCMetrics(registry),
		Gatherer:        registry,
	})
	require.NoError(t, err)
	return &testServer{
		handler: server.Handler(),
		clock:   clock,
		module:  module,
		staked:  staked,
		reward:  reward,
		pauses:  pauses,
	}
}

func generousLimit() config.RateLimit {
	return config.RateLimit{RequestsPerMinute: 60000, Burst: 1000}
}

func testAddress(b byte) string {
	return crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{b}, 20)).String()
}

// signAccountToken issues an HS256 token for subject signed with secret.
func signAccountToken(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "yetifarm-test",
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func accountToken(t *testing.T, account string) string {
	t.Helper()
	return signAccountToken(t, testAccountSecret, account, time.Now().Add(time.Hour))
}

func (s *testServer) call(t *testing.T, token, method string, params ...interface{}) (int, testResponse) {
	t.Helper()
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		require.NoError(t, err)
		raw = append(raw, encoded)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: raw, ID: 1})
	require.NoError(t, err)
	return s.post(t, token, body)
}

func (s *testServer) post(t *testing.T, token string, body []byte) (int, testResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.RemoteAddr = "192.0.2.10:4321"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func (s *testServer) mustCall(t *testing.T, token, method string, out interface{}, params ...interface{}) {
	t.Helper()
	status, resp := s.call(t, token, method, params...)
	require.Equal(t, http.StatusOK, status, "method %s: %+v", method, resp.Error)
	require.Nil(t, resp.Error)
	if out != nil {
		require.NoError(t, json.Unmarshal(resp.Result, out))
	}
}

// fund mints reward into custody and opens a 100 second period.
func (s *testServer) fund(t *testing.T, amount string) {
	t.Helper()
	s.mustCall(t, testToken, "token_mint", nil, map[string]string{"asset": "RWD", "to": s.module.String(), "amount": amount})
	s.mustCall(t, testToken, "farm_notifyRewardAmount", nil, map[string]interface{}{"amount": amount})
}

func (s *testServer) approveAndMint(t *testing.T, owner, amount string) {
	t.Helper()
	s.mustCall(t, testToken, "token_mint", nil, map[string]string{"asset": "STK", "to": owner, "amount": amount})
	s.mustCall(t, accountToken(t, owner), "token_approve", nil, map[string]string{"asset": "stk", "owner": owner, "amount": "max"})
}

func TestStakeAccrueAndExit(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	alice := testAddress(0x01)
	srv.approveAndMint(t, alice, "100")
	srv.fund(t, "1000")

	var position farmPositionResult
	srv.mustCall(t, accountToken(t, alice), "farm_stake", &position, map[string]string{"caller": alice, "amount": "100"})
	require.Equal(t, "100", position.Balance)
	require.Equal(t, "0", position.Earned)

	srv.clock.Advance(50)

	var earned map[string]string
	srv.mustCall(t, "", "farm_earned", &earned, map[string]string{"address": alice})
	require.Equal(t, "500", earned["earned"])

	var status farmStatusResult
	srv.mustCall(t, "", "farm_status", &status)
	require.Equal(t, "active", status.Period)
	require.Equal(t, "10", status.RewardRate)
	require.Equal(t, uint64(testStart+100), status.PeriodFinish)
	require.Equal(t, "100", status.TotalStaked)

	var exit farmExitResult
	srv.mustCall(t, accountToken(t, alice), "farm_exit", &exit, map[string]string{"caller": alice})
	require.Equal(t, "100", exit.Withdrawn)
	require.Equal(t, "500", exit.Paid)

	var balance tokenBalanceResult
	srv.mustCall(t, "", "token_balance", &balance, map[string]string{"asset": "RWD", "address": alice})
	require.Equal(t, "500", balance.Balance)
	srv.mustCall(t, "", "token_balance", &balance, map[string]string{"asset": "STK", "address": alice})
	require.Equal(t, "100", balance.Balance)
}

func TestGetRewardAndRewardViews(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	alice := testAddress(0x01)
	srv.approveAndMint(t, alice, "100")
	srv.fund(t, "1000")
	srv.mustCall(t, accountToken(t, alice), "farm_stake", nil, map[string]string{"caller": alice, "amount": "100"})
	srv.clock.Advance(20)

	var rpt map[string]interface{}
	srv.mustCall(t, "", "farm_rewardPerToken", &rpt)
	require.Equal(t, "2000000000000000000", rpt["rewardPerToken"])

	var forDuration map[string]interface{}
	srv.mustCall(t, "", "farm_rewardForDuration", &forDuration)
	require.Equal(t, "1000", forDuration["reward"])

	var paid farmRewardResult
	srv.mustCall(t, accountToken(t, alice), "farm_getReward", &paid, map[string]string{"caller": alice})
	require.Equal(t, "200", paid.Paid)
	srv.mustCall(t, accountToken(t, alice), "farm_getReward", &paid, map[string]string{"caller": alice})
	require.Equal(t, "0", paid.Paid)

	var staked map[string]string
	srv.mustCall(t, "", "farm_balanceOf", &staked, map[string]string{"address": alice})
	require.Equal(t, "100", staked["balance"])
	require.Equal(t, "100", staked["totalSupply"])
}

func TestPrivilegedMethodsRequireToken(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	mint := map[string]string{"asset": "RWD", "to": testAddress(0x01), "amount": "5"}

	status, resp := srv.call(t, "", "token_mint", mint)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, resp = srv.call(t, "wrong", "farm_notifyRewardAmount", map[string]string{"amount": "1"})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "invalid RPC credentials", resp.Error.Message)

	status, resp = srv.call(t, "", "farm_setPaused", map[string]bool{"paused": true})
	require.Equal(t, http.StatusUnauthorized, status)
	require.False(t, srv.pauses.IsPaused(farm.ModuleName))
}

func TestAccountMethodsRequireMatchingToken(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	alice := testAddress(0x01)
	bob := testAddress(0x02)
	srv.approveAndMint(t, alice, "10")
	stake := map[string]string{"caller": alice, "amount": "10"}

	status, resp := srv.call(t, "", "farm_stake", stake)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "missing bearer token", resp.Error.Message)

	status, resp = srv.call(t, accountToken(t, bob), "farm_stake", stake)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "token subject does not match caller", resp.Error.Message)

	status, _ = srv.call(t, testToken, "farm_stake", stake)
	require.Equal(t, http.StatusUnauthorized, status, "the operator token does not act for accounts")

	forged := signAccountToken(t, "other-secret", alice, time.Now().Add(time.Hour))
	status, resp = srv.call(t, forged, "farm_stake", stake)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "invalid account token", resp.Error.Message)

	expired := signAccountToken(t, testAccountSecret, alice, time.Now().Add(-time.Hour))
	status, _ = srv.call(t, expired, "farm_stake", stake)
	require.Equal(t, http.StatusUnauthorized, status)

	for _, method := range []string{"farm_withdraw", "farm_getReward", "farm_exit"} {
		status, _ = srv.call(t, accountToken(t, bob), method, map[string]string{"caller": alice, "amount": "1"})
		require.Equal(t, http.StatusUnauthorized, status, method)
	}
	status, _ = srv.call(t, accountToken(t, bob), "token_approve", map[string]string{"asset": "STK", "owner": alice, "amount": "0"})
	require.Equal(t, http.StatusUnauthorized, status)

	var allowance tokenAllowanceResult
	srv.mustCall(t, "", "token_allowance", &allowance, map[string]string{"asset": "STK", "owner": alice})
	require.Equal(t, unlimitedAllowance.String(), allowance.Allowance, "rejected approve must not change the allowance")
	var position farmPositionResult
	srv.mustCall(t, "", "farm_position", &position, map[string]string{"address": alice})
	require.Equal(t, "0", position.Balance)
}

func TestCustodyAccountCannotStakeOverRPC(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	alice := testAddress(0x01)
	srv.approveAndMint(t, alice, "10")
	srv.mustCall(t, accountToken(t, alice), "farm_stake", nil, map[string]string{"caller": alice, "amount": "10"})

	module := srv.module.String()
	srv.mustCall(t, accountToken(t, module), "token_approve", nil, map[string]string{"asset": "STK", "owner": module, "amount": "max"})
	_, resp := srv.call(t, accountToken(t, module), "farm_stake", map[string]string{"caller": module, "amount": "10"})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	var staked map[string]string
	srv.mustCall(t, "", "farm_balanceOf", &staked, map[string]string{"address": alice})
	require.Equal(t, "10", staked["totalSupply"])
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	alice := testAddress(0x01)

	status, resp := srv.call(t, "", "farm_unknown")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	status, resp = srv.post(t, "", []byte("{not json"))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeParseError, resp.Error.Code)

	status, resp = srv.post(t, "", []byte("   "))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)

	_, resp = srv.call(t, accountToken(t, alice), "farm_stake", map[string]string{"caller": alice, "amount": "abc"})
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	_, resp = srv.call(t, "", "farm_stake", map[string]string{"caller": "not-an-address", "amount": "1"})
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	_, resp = srv.call(t, "", "farm_stake")
	require.Equal(t, codeInvalidParams, resp.Error.Code)
	require.Equal(t, "exactly one parameter object expected", resp.Error.Message)

	// No allowance granted yet.
	_, resp = srv.call(t, accountToken(t, alice), "farm_stake", map[string]string{"caller": alice, "amount": "10"})
	require.Equal(t, codeInsufficientFunds, resp.Error.Code)

	_, resp = srv.call(t, accountToken(t, alice), "farm_withdraw", map[string]string{"caller": alice, "amount": "10"})
	require.Equal(t, codeInsufficientFunds, resp.Error.Code)

	_, resp = srv.call(t, accountToken(t, alice), "farm_exit", map[string]string{"caller": alice})
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	// Funding beyond the custody balance.
	_, resp = srv.call(t, testToken, "farm_notifyRewardAmount", map[string]string{"amount": "1000"})
	require.Equal(t, codeInsufficientFunds, resp.Error.Code)

	_, resp = srv.call(t, "", "token_balance", map[string]string{"asset": "XYZ", "address": alice})
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestPausedFarmRejectsMutations(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	alice := testAddress(0x01)
	srv.approveAndMint(t, alice, "10")

	var paused map[string]bool
	srv.mustCall(t, testToken, "farm_setPaused", &paused, map[string]bool{"paused": true})
	require.True(t, paused["paused"])

	status, resp := srv.call(t, accountToken(t, alice), "farm_stake", map[string]string{"caller": alice, "amount": "10"})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeModuleUnavailable, resp.Error.Code)

	// Views stay available while paused.
	srv.mustCall(t, "", "farm_status", nil)

	srv.mustCall(t, testToken, "farm_setPaused", &paused, map[string]bool{"paused": false})
	require.False(t, paused["paused"])
	srv.mustCall(t, accountToken(t, alice), "farm_stake", nil, map[string]string{"caller": alice, "amount": "10"})
}

func TestEventsAreJournaled(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	alice := testAddress(0x01)
	bob := testAddress(0x02)
	srv.approveAndMint(t, alice, "10")
	srv.approveAndMint(t, bob, "10")
	srv.fund(t, "1000")
	srv.mustCall(t, accountToken(t, alice), "farm_stake", nil, map[string]string{"caller": alice, "amount": "10"})
	srv.mustCall(t, accountToken(t, bob), "farm_stake", nil, map[string]string{"caller": bob, "amount": "5"})

	var all []farmEventResult
	srv.mustCall(t, "", "farm_events", &all)
	require.Len(t, all, 3)
	require.Equal(t, events.TypeFarmStaked, all[0].Type)
	require.Equal(t, "Staked 5 STK", all[0].Label)
	require.Equal(t, events.TypeFarmRewardAdded, all[2].Type)

	var filtered []farmEventResult
	srv.mustCall(t, "", "farm_events", &filtered, map[string]interface{}{"address": alice, "type": events.TypeFarmStaked})
	require.Len(t, filtered, 1)
	require.Equal(t, alice, filtered[0].Address)
	require.Equal(t, "10", filtered[0].Attributes["amount"])

	_, resp := srv.call(t, "", "farm_events", map[string]int{"limit": -1})
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestRateLimitRejectsBurst(t *testing.T) {
	srv := newTestServer(t, config.RateLimit{RequestsPerMinute: 1, Burst: 1})

	status, resp := srv.call(t, "", "farm_status")
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	status, resp = srv.call(t, "", "farm_status")
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, resp.Error.Code)
}

func TestHealthMetricsAndRequestID(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	srv.mustCall(t, "", "farm_status", nil)

	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "yetifarm_rpc_requests_total"))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jsonrpc":"2.0","method":"farm_status","id":7}`))
	req.Header.Set(requestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "req-42", rec.Header().Get(requestIDHeader))

	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rpc", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestApproveReportsAllowance(t *testing.T) {
	srv := newTestServer(t, generousLimit())
	alice := testAddress(0x01)

	var allowance tokenAllowanceResult
	srv.mustCall(t, accountToken(t, alice), "token_approve", &allowance, map[string]string{"asset": "STK", "owner": alice, "amount": "25"})
	require.Equal(t, "25", allowance.Allowance)
	require.Equal(t, srv.module.String(), allowance.Spender)

	srv.mustCall(t, "", "token_allowance", &allowance, map[string]string{"asset": "STK", "owner": alice})
	require.Equal(t, "25", allowance.Allowance)

	srv.mustCall(t, accountToken(t, alice), "token_approve", &allowance, map[string]string{"asset": "STK", "owner": alice, "amount": "max"})
	require.Equal(t, unlimitedAllowance.String(), allowance.Allowance)
}
