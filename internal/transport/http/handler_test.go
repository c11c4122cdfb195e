package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/ledger-core/internal/audit"
	"github.com/richardliu001/ledger-core/internal/auth"
	"github.com/richardliu001/ledger-core/internal/config"
	"github.com/richardliu001/ledger-core/internal/logger"
	"github.com/richardliu001/ledger-core/internal/repo"
	"github.com/richardliu001/ledger-core/internal/service"
	"github.com/richardliu001/ledger-core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	clock  *service.FixedClock
	events *eventLog
	user   string
	admin  string
}

type eventLog struct {
	mu     sync.Mutex
	events []audit.Event
}

func (l *eventLog) Emit(_ context.Context, e audit.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []audit.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]audit.Event(nil), l.events...)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()
	store := repo.NewRepository(testutil.OpenDB(t), nil, nil, log)
	clock := &service.FixedClock{T: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	wallet := service.NewWalletService(store, log)
	catalog, err := service.NewCatalog(config.PositionsConfig{
		Staking:     map[string]config.TermsConfig{"basic": {Rate: 0.1, Duration: 24 * time.Hour}},
		Investments: map[string]config.TermsConfig{"starter": {Rate: 0.2, Duration: 24 * time.Hour}},
	})
	require.NoError(t, err)
	events := &eventLog{}
	h := NewHandler(
		wallet,
		service.NewDepositWorkflow(store, wallet, events, clock, log),
		service.NewWithdrawalWorkflow(store, wallet, events, clock, log),
		service.NewPositionEngine(store, wallet, events, clock, log),
		catalog, log,
	)
	tokens := auth.NewTokenService("test-secret", time.Hour)
	userTok, err := tokens.Issue(auth.Actor{UserID: "alice", Role: auth.RoleUser})
	require.NoError(t, err)
	adminTok, err := tokens.Issue(auth.Actor{UserID: "root", Role: auth.RoleAdmin})
	require.NoError(t, err)

	return &testServer{
		router: NewRouter(h, tokens, config.RateLimitConfig{RPS: 1000, Burst: 1000}, log),
		clock:  clock,
		events: events,
		user:   userTok,
		admin:  adminTok,
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	out := map[string]interface{}{}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w.Code, out
}

func errKind(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	k, _ := e["kind"].(string)
	return k
}

func field(body map[string]interface{}, obj, key string) interface{} {
	m, _ := body[obj].(map[string]interface{})
	return m[key]
}

func TestAPI_DepositApprovalFlow(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/v1/deposit-requests", s.user,
		gin.H{"amount": "150", "payment_method": "card"})
	require.Equal(t, http.StatusCreated, code)
	id, _ := field(body, "request", "id").(string)
	require.NotEmpty(t, id)

	code, _ = s.do(t, http.MethodPut, "/v1/admin/deposits/"+id+"/process?approved=true", s.user, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(t, http.MethodPut, "/v1/admin/deposits/"+id+"/process?approved=true&admin_note=ok", s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "approved", field(body, "request", "status"))
	assert.Nil(t, body["already_processed"])

	code, body = s.do(t, http.MethodPut, "/v1/admin/deposits/"+id+"/process?approved=false", s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["already_processed"])
	assert.Equal(t, "approved", field(body, "request", "status"))

	code, body = s.do(t, http.MethodGet, "/v1/wallet", s.user, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "150", field(body, "wallet", "balance"))

	code, body = s.do(t, http.MethodGet, "/v1/wallet/reconcile", s.user, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["balanced"])

	code, body = s.do(t, http.MethodGet, "/v1/admin/dashboard", s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["total_wallets"])
}

func TestAPI_AuditCarriesRequestOrigin(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/v1/deposit-requests", s.user,
		gin.H{"amount": "40", "payment_method": "card"})
	require.Equal(t, http.StatusCreated, code)
	id, _ := field(body, "request", "id").(string)

	req := httptest.NewRequest(http.MethodPut, "/v1/admin/deposits/"+id+"/process?approved=true", nil)
	req.RemoteAddr = "203.0.113.9:5123"
	req.Header.Set("User-Agent", "admin-console/2.1")
	req.Header.Set("Authorization", "Bearer "+s.admin)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	events := s.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionDepositApproved, events[0].Action)
	assert.Equal(t, "alice", events[0].UserID)
	assert.Equal(t, "root", events[0].ActorID)
	assert.Equal(t, "203.0.113.9", events[0].IP)
	assert.Equal(t, "admin-console/2.1", events[0].UserAgent)
}

func TestAPI_WithdrawalAutoReject(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/v1/withdrawal-requests", s.user,
		gin.H{"amount": "80", "withdrawal_method": "bank", "withdrawal_address": "DE00"})
	require.Equal(t, http.StatusCreated, code)
	id, _ := field(body, "request", "id").(string)

	code, body = s.do(t, http.MethodPut, "/v1/admin/withdrawals/"+id+"/process?approved=true", s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "rejected", field(body, "request", "status"))
	assert.Equal(t, "auto-rejected: insufficient funds (balance 0, requested 80)", field(body, "request", "admin_note"))

	code, body = s.do(t, http.MethodGet, "/v1/admin/transactions?status=failed", s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["transactions"], 1)
}

func TestAPI_ErrorMapping(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodGet, "/v1/wallet", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := s.do(t, http.MethodGet, "/v1/wallet", s.user, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", errKind(body))

	code, body = s.do(t, http.MethodPost, "/v1/deposit-requests", s.user, gin.H{"amount": "-3", "payment_method": "card"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_argument", errKind(body))

	code, body = s.do(t, http.MethodPost, "/v1/deposit-requests", s.user, gin.H{"amount": "abc", "payment_method": "card"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_argument", errKind(body))

	code, _ = s.do(t, http.MethodPut, "/v1/admin/deposits/x/process?approved=maybe", s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodPut, "/v1/admin/deposits/missing/process?approved=true", s.admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", errKind(body))

	code, body = s.do(t, http.MethodGet, "/v1/wallet/transactions?type=gift", s.user, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_argument", errKind(body))

	code, body = s.do(t, http.MethodGet, "/v1/staking?status=frozen", s.user, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_argument", errKind(body))

	code, body = s.do(t, http.MethodGet, "/v1/investments?status=paused", s.user, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_argument", errKind(body))

	code, _ = s.do(t, http.MethodGet, "/v1/staking?status=active", s.user, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAPI_StakingAndPurchase(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/v1/deposit-requests", s.user, gin.H{"amount": "100", "payment_method": "card"})
	require.Equal(t, http.StatusCreated, code)
	id, _ := field(body, "request", "id").(string)
	code, _ = s.do(t, http.MethodPut, "/v1/admin/deposits/"+id+"/process?approved=true", s.admin, nil)
	require.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodPost, "/v1/purchases", s.user, gin.H{"amount": "500", "request_id": "order-1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "insufficient_funds", errKind(body))

	code, _ = s.do(t, http.MethodPost, "/v1/purchases", s.user, gin.H{"amount": "10", "request_id": "order-2"})
	assert.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodPost, "/v1/staking", s.user, gin.H{"plan": "basic", "amount": "50"})
	require.Equal(t, http.StatusCreated, code)
	posID, _ := field(body, "position", "id").(string)

	code, body = s.do(t, http.MethodPost, "/v1/staking", s.user, gin.H{"plan": "vip", "amount": "5"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodPost, "/v1/staking/"+posID+"/unstake", s.user, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "not_matured", errKind(body))

	s.clock.Advance(24 * time.Hour)
	code, body = s.do(t, http.MethodPost, "/v1/staking/"+posID+"/unstake", s.user, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "5", field(body, "position", "rewards_earned"))

	code, body = s.do(t, http.MethodPost, "/v1/staking/"+posID+"/unstake", s.user, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["already_processed"])

	code, body = s.do(t, http.MethodGet, "/v1/wallet", s.user, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "95", field(body, "wallet", "balance"))

	code, body = s.do(t, http.MethodPost, "/v1/investments", s.user, gin.H{"package": "starter", "amount": "50"})
	require.Equal(t, http.StatusCreated, code)
	invID, _ := field(body, "position", "id").(string)
	assert.Equal(t, "10", field(body, "position", "expected_return"))

	code, _ = s.do(t, http.MethodPost, "/v1/admin/investments/"+invID+"/complete", s.admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	s.clock.Advance(24 * time.Hour)
	code, body = s.do(t, http.MethodPost, "/v1/admin/investments/"+invID+"/complete", s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", field(body, "position", "status"))

	code, body = s.do(t, http.MethodGet, "/v1/investments", s.user, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["positions"], 1)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	code, body := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ledger_http_requests_total")
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(1, 1))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestIPLimiter_EvictsIdleVisitors(t *testing.T) {
	l := newIPLimiter(1, 1, time.Minute)
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.allow("10.0.0.1", t0))
	assert.True(t, l.allow("10.0.0.2", t0))
	assert.False(t, l.allow("10.0.0.1", t0), "bucket is spent")
	assert.Equal(t, 2, l.size())

	// 10.0.0.2 stays active, 10.0.0.1 goes quiet
	assert.True(t, l.allow("10.0.0.2", t0.Add(90*time.Second)))
	assert.True(t, l.allow("10.0.0.3", t0.Add(2*time.Minute)))
	assert.Equal(t, 2, l.size())

	l.mu.Lock()
	_, kept := l.visitors["10.0.0.2"]
	_, dropped := l.visitors["10.0.0.1"]
	l.mu.Unlock()
	assert.True(t, kept)
	assert.False(t, dropped)
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())
	assert.Equal(t, "abc", w.Header().Get(requestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Header().Get(requestIDHeader), 36)
}
