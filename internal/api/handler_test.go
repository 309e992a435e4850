package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trade-settlement-go/internal/config"
	"trade-settlement-go/internal/database"
	"trade-settlement-go/internal/models"
	"trade-settlement-go/internal/scheduler"
	"trade-settlement-go/internal/settlement"
	"trade-settlement-go/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var t0 = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

// MockPriceSource is a mock implementation of the quotes.PriceSource interface.
type MockPriceSource struct {
	mock.Mock
}

func (m *MockPriceSource) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type fixedSampler float64

func (s fixedSampler) Float64() float64 { return float64(s) }

type testEnv struct {
	router   *gin.Engine
	handler  *Handler
	accounts *store.AccountStore
	registry *prometheus.Registry
}

// setupTest builds the full router over a fresh sqlite database. Every sample is 0.5,
// so trades win with a 13% profit.
func setupTest(t *testing.T, prices *MockPriceSource) *testEnv {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))

	engine, err := settlement.NewEngine(zap.NewNop(), db, config.Settlement{
		WinProbability: 0.85, MinProfit: 0.07, MaxProfit: 0.19, MinLoss: 0.01, MaxLoss: 0.05,
	},
		settlement.WithClock(func() time.Time { return t0 }),
		settlement.WithSampler(fixedSampler(0.5)),
	)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	sched, err := scheduler.New(zap.NewNop(), engine, time.Hour,
		scheduler.WithClock(func() time.Time { return t0.Add(time.Hour) }),
		scheduler.WithMetrics(scheduler.NewMetrics(registry)),
	)
	require.NoError(t, err)

	h := NewHandler(zap.NewNop(), engine, sched, nil)
	if prices != nil {
		h.prices = prices
	}
	h.now = func() time.Time { return t0 }

	router := NewRouter(zap.NewNop(), h, config.Admin{Identities: []string{"ops@example.com"}}, registry)
	return &testEnv{router: router, handler: h, accounts: store.NewAccountStore(db), registry: registry}
}

func (env *testEnv) openAccount(t *testing.T, id, balance string) {
	require.NoError(t, env.accounts.Create(context.Background(), &models.Account{
		ID:      id,
		Balance: decimal.RequireFromString(balance),
	}))
}

func (env *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, Response) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	var resp Response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func tradeBody(accountID string) map[string]any {
	return map[string]any{
		"account_id":           accountID,
		"asset_id":             "btc",
		"asset_name":           "Bitcoin",
		"asset_symbol":         "BTCUSDT",
		"direction":            "up",
		"amount":               "1000",
		"entry_price":          "60000",
		"delivery_deadline_ms": t0.UnixMilli() + 60_000,
	}
}

func dataMap(t *testing.T, resp Response) map[string]any {
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "response data is not an object: %#v", resp.Data)
	return data
}

func TestCreateTrade(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		env := setupTest(t, nil)
		env.openAccount(t, "acc", "10000")

		w, resp := env.do(t, http.MethodPost, "/api/v1/trades", tradeBody("acc"))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, CodeSuccess, resp.Code)

		data := dataMap(t, resp)
		assert.NotEmpty(t, data["id"])
		assert.Equal(t, "pending", data["status"])
		assert.Equal(t, "1000", data["amount_wagered"])
		assert.Nil(t, data["outcome"])

		_, resp = env.do(t, http.MethodGet, "/api/v1/accounts/acc/balance", nil)
		assert.Equal(t, "9000", dataMap(t, resp)["balance"])
	})

	t.Run("DurationSeconds", func(t *testing.T) {
		env := setupTest(t, nil)
		env.openAccount(t, "acc", "10000")

		body := tradeBody("acc")
		delete(body, "delivery_deadline_ms")
		body["duration_seconds"] = 30
		body["id"] = "client-id-1"

		w, resp := env.do(t, http.MethodPost, "/api/v1/trades", body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		data := dataMap(t, resp)
		assert.Equal(t, "client-id-1", data["id"])
		assert.Equal(t, float64(t0.Add(30*time.Second).UnixMilli()), data["delivery_deadline_ms"])
	})

	t.Run("EntryPriceFromQuotes", func(t *testing.T) {
		prices := new(MockPriceSource)
		prices.On("GetPrice", mock.Anything, "BTCUSDT").Return(decimal.RequireFromString("61234.5"), nil).Once()
		env := setupTest(t, prices)
		env.openAccount(t, "acc", "10000")

		body := tradeBody("acc")
		delete(body, "entry_price")

		w, resp := env.do(t, http.MethodPost, "/api/v1/trades", body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, "61234.5", dataMap(t, resp)["entry_price"])
		prices.AssertExpectations(t)
	})

	t.Run("QuoteFailure", func(t *testing.T) {
		prices := new(MockPriceSource)
		prices.On("GetPrice", mock.Anything, "BTCUSDT").Return(decimal.Zero, errors.New("upstream down"))
		env := setupTest(t, prices)
		env.openAccount(t, "acc", "10000")

		body := tradeBody("acc")
		delete(body, "entry_price")

		w, resp := env.do(t, http.MethodPost, "/api/v1/trades", body)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, CodeQuoteUnavailable, resp.Code)

		_, resp = env.do(t, http.MethodGet, "/api/v1/accounts/acc/balance", nil)
		assert.Equal(t, "10000", dataMap(t, resp)["balance"])
	})

	t.Run("InsufficientBalance", func(t *testing.T) {
		env := setupTest(t, nil)
		env.openAccount(t, "acc", "500")

		w, resp := env.do(t, http.MethodPost, "/api/v1/trades", tradeBody("acc"))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, CodeBalanceNotEnough, resp.Code)

		_, resp = env.do(t, http.MethodGet, "/api/v1/accounts/acc/trades", nil)
		assert.Equal(t, float64(0), dataMap(t, resp)["total"])
	})

	t.Run("AccountNotFound", func(t *testing.T) {
		env := setupTest(t, nil)

		w, resp := env.do(t, http.MethodPost, "/api/v1/trades", tradeBody("ghost"))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, CodeAccountNotFound, resp.Code)
	})

	invalid := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"BadDirection", func(b map[string]any) { b["direction"] = "sideways" }},
		{"ZeroAmount", func(b map[string]any) { b["amount"] = "0" }},
		{"NegativeAmount", func(b map[string]any) { b["amount"] = "-5" }},
		{"MalformedAmount", func(b map[string]any) { b["amount"] = "lots" }},
		{"MissingAccount", func(b map[string]any) { delete(b, "account_id") }},
		{"PastDeadline", func(b map[string]any) { b["delivery_deadline_ms"] = t0.UnixMilli() }},
		{"NoDeadline", func(b map[string]any) { delete(b, "delivery_deadline_ms") }},
		{"BothDeadlines", func(b map[string]any) { b["duration_seconds"] = 60 }},
		{"NoEntryPriceWithoutQuotes", func(b map[string]any) { delete(b, "entry_price") }},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			env := setupTest(t, nil)
			env.openAccount(t, "acc", "10000")

			body := tradeBody("acc")
			tc.mutate(body)
			w, _ := env.do(t, http.MethodPost, "/api/v1/trades", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			_, resp := env.do(t, http.MethodGet, "/api/v1/accounts/acc/balance", nil)
			assert.Equal(t, "10000", dataMap(t, resp)["balance"])
		})
	}
}

func TestGetTrade(t *testing.T) {
	env := setupTest(t, nil)
	env.openAccount(t, "acc", "10000")

	body := tradeBody("acc")
	body["id"] = "t-1"
	w, _ := env.do(t, http.MethodPost, "/api/v1/trades", body)
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := env.do(t, http.MethodGet, "/api/v1/trades/t-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t-1", dataMap(t, resp)["id"])

	w, resp = env.do(t, http.MethodGet, "/api/v1/trades/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeTradeNotFound, resp.Code)
}

func TestListTrades_UnknownAccountIsEmpty(t *testing.T) {
	env := setupTest(t, nil)

	w, resp := env.do(t, http.MethodGet, "/api/v1/accounts/nobody/trades", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, resp)
	assert.Equal(t, float64(0), data["total"])
	assert.Empty(t, data["trades"])
}

func TestGetBalance_NotFound(t *testing.T) {
	env := setupTest(t, nil)

	w, resp := env.do(t, http.MethodGet, "/api/v1/accounts/nobody/balance", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeAccountNotFound, resp.Code)
}

func TestRunSettlement(t *testing.T) {
	t.Run("MissingIdentity", func(t *testing.T) {
		env := setupTest(t, nil)
		w, _ := env.do(t, http.MethodPost, "/api/v1/admin/settlements/run", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("NotAdmin", func(t *testing.T) {
		env := setupTest(t, nil)
		w, _ := env.do(t, http.MethodPost, "/api/v1/admin/settlements/run", nil,
			AdminIdentityHeader, "mallory@example.com")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("ResolvesDueTrades", func(t *testing.T) {
		env := setupTest(t, nil)
		env.openAccount(t, "acc", "10000")
		for _, id := range []string{"t-1", "t-2"} {
			body := tradeBody("acc")
			body["id"] = id
			w, _ := env.do(t, http.MethodPost, "/api/v1/trades", body)
			require.Equal(t, http.StatusCreated, w.Code)
		}

		w, resp := env.do(t, http.MethodPost, "/api/v1/admin/settlements/run", nil,
			AdminIdentityHeader, "OPS@example.com")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		data := dataMap(t, resp)
		assert.Equal(t, float64(2), data["examined"])
		assert.Equal(t, float64(2), data["resolved"])

		_, resp = env.do(t, http.MethodGet, "/api/v1/trades/t-1", nil)
		trade := dataMap(t, resp)
		assert.Equal(t, "completed", trade["status"])
		assert.Equal(t, "win", trade["outcome"])
		assert.Equal(t, "1130", trade["final_amount"])

		// 10000 - 2*1000 + 2*1130
		_, resp = env.do(t, http.MethodGet, "/api/v1/accounts/acc/balance", nil)
		assert.Equal(t, "10260", dataMap(t, resp)["balance"])

		// A second run finds nothing left to settle.
		_, resp = env.do(t, http.MethodPost, "/api/v1/admin/settlements/run", nil,
			AdminIdentityHeader, "ops@example.com")
		assert.Equal(t, float64(0), dataMap(t, resp)["resolved"])

		w, resp = env.do(t, http.MethodGet, "/api/v1/accounts/acc/statistics", nil)
		require.Equal(t, http.StatusOK, w.Code)
		allTime := dataMap(t, resp)["all_time"].(map[string]any)
		assert.Equal(t, float64(2), allTime["total_trades"])
		assert.Equal(t, float64(2), allTime["wins"])
		assert.Equal(t, "260", allTime["net_profit"])
	})
}

func TestStatistics_NotFound(t *testing.T) {
	env := setupTest(t, nil)
	w, _ := env.do(t, http.MethodGet, "/api/v1/accounts/nobody/statistics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := setupTest(t, nil)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"scheduler":"idle"`)

	_, err := env.handler.sweeper.Trigger(context.Background())
	require.NoError(t, err)

	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `settlement_sweeps_total{result="ok",trigger="manual"} 1`)
}
