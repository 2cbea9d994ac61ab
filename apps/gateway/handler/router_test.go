package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cartservice "go-storefront/apps/cart/service"
	"go-storefront/apps/gateway/middleware"
	orderservice "go-storefront/apps/order/service"
	productservice "go-storefront/apps/product/service"
	userservice "go-storefront/apps/user/service"
	"go-storefront/pkg/jwt"
	"go-storefront/pkg/metrics"
	"go-storefront/pkg/payment"
	"go-storefront/pkg/response"
	"go-storefront/pkg/store/memstore"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	testWebhookSecret = "hook-secret"
	adminEmail        = "admin@example.com"
	adminPassword     = "admin-pass-1"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memstore.New()
	log := zap.NewNop()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tokens := jwt.NewManager("test-secret", time.Hour, 24*time.Hour)
	users := userservice.New(st, tokens, log, userservice.Options{BcryptCost: bcrypt.MinCost})
	require.NoError(t, users.EnsureAdmin(t.Context(), adminEmail, adminPassword))

	router := NewRouter(Deps{
		Users:   users,
		Catalog: productservice.New(st, log),
		Carts:   cartservice.New(st, log),
		Orders: orderservice.New(orderservice.Deps{
			Store:    st,
			Provider: payment.Demo{},
			Metrics:  m,
			Log:      log,
		}, orderservice.Options{}),
		Metrics:       m,
		Gatherer:      reg,
		Log:           log,
		WebhookSecret: testWebhookSecret,
	})
	return &testServer{t: t, router: router}
}

func (s *testServer) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) login(email, password string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/v1/auth/token", "", gin.H{"email": email, "password": password})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	return decode[jwt.TokenPair](s.t, w).Access
}

func (s *testServer) register(email string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": email, "password": "password-123"})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return s.login(email, "password-123")
}

func assertEnvelope(t *testing.T, w *httptest.ResponseRecorder, status int) response.ErrorResponse {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	body := decode[response.ErrorResponse](t, w)
	assert.False(t, body.Success)
	assert.Equal(t, status, body.Error.StatusCode)
	assert.NotEmpty(t, body.Error.Message)
	return body
}

type productBody struct {
	ID       string `json:"id"`
	Variants []struct {
		ID string `json:"id"`
	} `json:"variants"`
}

type orderBody struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

func (s *testServer) seedProduct(adminToken string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/v1/products", adminToken, gin.H{
		"name":     "Canvas Tote",
		"slug":     "canvas-tote",
		"price":    "10.00",
		"currency": "USD",
		"variants": []gin.H{{"sku": "TOTE-1", "quantity": 5}},
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[productBody](s.t, w)
	require.Len(s.t, p.Variants, 1)
	return p.Variants[0].ID
}

func TestCatalogReadIsPublicWriteIsGated(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.login(adminEmail, adminPassword)
	s.seedProduct(adminToken)

	w := s.do(http.MethodGet, "/api/v1/products?page=1&page_size=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[response.Page[productBody]](t, w)
	assert.Equal(t, int64(1), page.Count)
	assert.Equal(t, 5, page.PageSize)
	require.Len(t, page.Results, 1)

	w = s.do(http.MethodGet, "/api/v1/products/"+page.Results[0].ID, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 匿名用户写入 401，普通顾客写入 403
	w = s.do(http.MethodPost, "/api/v1/products", "", gin.H{"name": "x"})
	assertEnvelope(t, w, http.StatusUnauthorized)

	customer := s.register("carol@example.com")
	w = s.do(http.MethodPost, "/api/v1/products", customer, gin.H{"name": "x"})
	assertEnvelope(t, w, http.StatusForbidden)

	w = s.do(http.MethodGet, "/api/v1/products?is_active=maybe", "", nil)
	assertEnvelope(t, w, http.StatusBadRequest)
}

func TestOrderPayAndWebhookFlow(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.login(adminEmail, adminPassword)
	variantID := s.seedProduct(adminToken)
	alice := s.register("alice@example.com")
	bob := s.register("bob@example.com")

	// 1. 下单
	w := s.do(http.MethodPost, "/api/v1/orders", alice, gin.H{
		"items": []gin.H{{"variant_id": variantID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	o := decode[orderBody](t, w)
	assert.Equal(t, "pending", o.Status)
	assert.True(t, decimal.RequireFromString("20.00").Equal(o.TotalAmount))

	// 2. 其他人看不到，也不能支付
	w = s.do(http.MethodGet, "/api/v1/orders/"+o.ID, bob, nil)
	assertEnvelope(t, w, http.StatusNotFound)
	w = s.do(http.MethodPost, "/api/v1/orders/"+o.ID+"/pay", bob, nil)
	assertEnvelope(t, w, http.StatusNotFound)

	// 3. 所有者发起支付
	w = s.do(http.MethodPost, "/api/v1/orders/"+o.ID+"/pay", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pay := decode[struct {
		PaymentURL string `json:"payment_url"`
		Payment    struct {
			ProviderPaymentID string `json:"provider_payment_id"`
			Status            string `json:"status"`
		} `json:"payment"`
	}](t, w)
	assert.NotEmpty(t, pay.PaymentURL)
	assert.Equal(t, "pending", pay.Payment.Status)

	// 4. 回调需要共享密钥
	hook := gin.H{"provider_payment_id": pay.Payment.ProviderPaymentID, "status": "success"}
	w = s.do(http.MethodPost, "/api/v1/payments/webhook", "", hook)
	assertEnvelope(t, w, http.StatusForbidden)
	w = s.do(http.MethodPost, "/api/v1/payments/webhook", "", hook, middleware.WebhookHeader, testWebhookSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/orders/"+o.ID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paid", decode[orderBody](t, w).Status)

	// 5. 已支付订单不能再次支付
	w = s.do(http.MethodPost, "/api/v1/orders/"+o.ID+"/pay", alice, nil)
	assertEnvelope(t, w, http.StatusConflict)

	// 6. 管理员可见全部订单
	w = s.do(http.MethodGet, "/api/v1/orders", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decode[response.Page[orderBody]](t, w).Count)

	w = s.do(http.MethodGet, "/api/v1/orders", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), decode[response.Page[orderBody]](t, w).Count)
}

func TestOrderRequiresLogin(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodPost, "/api/v1/orders", "", gin.H{"items": []gin.H{}})
	assertEnvelope(t, w, http.StatusUnauthorized)

	w = s.do(http.MethodGet, "/api/v1/orders", "not-a-token", nil)
	assertEnvelope(t, w, http.StatusUnauthorized)
}

func TestInsufficientStockIsConflict(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.login(adminEmail, adminPassword)
	variantID := s.seedProduct(adminToken)
	alice := s.register("alice@example.com")

	w := s.do(http.MethodPost, "/api/v1/orders", alice, gin.H{
		"items": []gin.H{{"variant_id": variantID, "quantity": 6}},
	})
	assertEnvelope(t, w, http.StatusConflict)
}

func TestRegisterDuplicateEmailIsConflict(t *testing.T) {
	s := newTestServer(t)
	s.register("dora@example.com")

	w := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "dora@example.com", "password": "password-456"})
	body := assertEnvelope(t, w, http.StatusConflict)
	assert.Equal(t, "An account with this email already exists.", body.Error.Message)
}

func TestSessionCartWithoutLogin(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.login(adminEmail, adminPassword)
	variantID := s.seedProduct(adminToken)

	w := s.do(http.MethodPost, "/api/v1/carts", "", nil)
	assertEnvelope(t, w, http.StatusUnauthorized)

	w = s.do(http.MethodPost, "/api/v1/carts", "", nil, middleware.SessionHeader, "sess-42")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cartID := decode[struct {
		ID string `json:"id"`
	}](t, w).ID

	w = s.do(http.MethodPost, "/api/v1/carts/"+cartID+"/items", "",
		gin.H{"variant_id": variantID, "quantity": 3}, middleware.SessionHeader, "sess-42")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cart := decode[struct {
		Total decimal.Decimal `json:"total"`
	}](t, w)
	assert.True(t, decimal.RequireFromString("30").Equal(cart.Total))

	w = s.do(http.MethodGet, "/api/v1/carts/"+cartID, "", nil, middleware.SessionHeader, "other")
	assertEnvelope(t, w, http.StatusNotFound)
}

func TestMalformedRequests(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/nowhere", "", nil)
	assertEnvelope(t, w, http.StatusNotFound)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assertEnvelope(t, rec, http.StatusBadRequest)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Token abc")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assertEnvelope(t, rec, http.StatusUnauthorized)

	w = s.do(http.MethodPost, "/api/v1/auth/token", "", gin.H{"email": adminEmail, "password": "wrong"})
	assertEnvelope(t, w, http.StatusUnauthorized)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.do(http.MethodGet, "/api/v1/products", "", nil)
	w = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/products")
}
