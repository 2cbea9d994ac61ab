// Package handler maps the REST API onto the services.
package handler

import (
	"net/http"
	"strconv"

	cartservice "go-storefront/apps/cart/service"
	"go-storefront/apps/gateway/middleware"
	orderservice "go-storefront/apps/order/service"
	productservice "go-storefront/apps/product/service"
	userservice "go-storefront/apps/user/service"
	"go-storefront/pkg/apperr"
	"go-storefront/pkg/metrics"
	"go-storefront/pkg/ratelimit"
	"go-storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

type Deps struct {
	ServiceName   string
	Users         *userservice.Service
	Catalog       *productservice.Service
	Carts         *cartservice.Service
	Orders        *orderservice.Service
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	Log           *zap.Logger
	WebhookSecret string
	// RateLimit 为 true 时对下单和支付挂 sentinel 限流，需先调用 ratelimit.Init
	RateLimit bool
}

type Handler struct {
	users   *userservice.Service
	catalog *productservice.Service
	carts   *cartservice.Service
	orders  *orderservice.Service
}

// NewRouter 注册全部路由
func NewRouter(d Deps) *gin.Engine {
	h := &Handler{users: d.Users, catalog: d.Catalog, carts: d.Carts, orders: d.Orders}

	r := gin.New()
	r.Use(middleware.Recovery(d.Log))
	if d.ServiceName != "" {
		r.Use(otelgin.Middleware(d.ServiceName))
	}
	r.Use(middleware.AccessLog(d.Log, d.Metrics))
	r.NoRoute(response.NotFoundRoute)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(d.Gatherer)))
	}

	limit := func(resource string) gin.HandlerFunc {
		if !d.RateLimit {
			return func(c *gin.Context) { c.Next() }
		}
		return ratelimit.Middleware(resource)
	}

	v1 := r.Group("/api/v1")

	// 支付渠道回调，不走 token 鉴权
	v1.POST("/payments/webhook", middleware.WebhookSecret(d.WebhookSecret), h.PaymentWebhook)

	api := v1.Group("")
	api.Use(middleware.Auth(d.Users))
	{
		// --- 认证 ---
		api.POST("/auth/register", h.Register)
		api.POST("/auth/token", h.Token)
		api.POST("/auth/token/refresh", h.RefreshToken)

		// --- 商品目录 (公开读) ---
		api.GET("/products", h.ListProducts)
		api.POST("/products", h.CreateProduct)
		api.GET("/products/:id", h.GetProduct)
		api.PATCH("/products/:id", h.UpdateProduct)
		api.DELETE("/products/:id", h.DeleteProduct)
		api.POST("/products/:id/variants", h.AddVariant)
		api.GET("/products/:id/reviews", h.ListReviews)
		api.POST("/products/:id/reviews", h.CreateReview)
		api.PUT("/variants/:id/stock", h.SetStock)

		api.GET("/categories", h.ListCategories)
		api.POST("/categories", h.CreateCategory)
		api.GET("/categories/:id", h.GetCategory)
		api.PUT("/categories/:id", h.UpdateCategory)
		api.DELETE("/categories/:id", h.DeleteCategory)

		api.GET("/vendors", h.ListVendors)
		api.POST("/vendors", h.CreateVendor)
		api.GET("/vendors/:id", h.GetVendor)

		// --- 购物车 (登录用户或携带会话) ---
		api.GET("/carts", h.ListCarts)
		api.POST("/carts", h.CreateCart)
		api.GET("/carts/:id", h.GetCart)
		api.POST("/carts/:id/items", h.AddCartItem)
		api.PATCH("/carts/:id/items/:item_id", h.UpdateCartItem)
		api.DELETE("/carts/:id/items/:item_id", h.RemoveCartItem)

		// --- 需要登录 ---
		authed := api.Group("")
		authed.Use(middleware.RequireAuth())
		{
			authed.GET("/auth/me", h.Me)

			authed.GET("/orders", h.ListOrders)
			authed.POST("/orders", limit(ratelimit.ResOrderCreate), h.CreateOrder)
			authed.GET("/orders/:id", h.GetOrder)
			authed.POST("/orders/:id/pay", limit(ratelimit.ResOrderPay), h.PayOrder)
			authed.GET("/orders/:id/payments", h.ListPayments)
			authed.GET("/orders/:id/payments/latest", h.LatestPayment)
			authed.POST("/orders/:id/cancel", h.CancelOrder)
			authed.POST("/orders/:id/status", h.UpdateOrderStatus)
			authed.GET("/orders/:id/history", h.OrderHistory)

			authed.GET("/addresses", h.ListAddresses)
			authed.POST("/addresses", h.CreateAddress)
			authed.POST("/addresses/:id/default", h.SetDefaultAddress)

			authed.POST("/accounts/:id/roles", h.AssignRole)
			authed.POST("/accounts/:id/active", h.SetAccountActive)
		}
	}
	return r
}

// bind 请求体解析失败统一返回 400
func bind(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		response.Error(c, apperr.Validation("JSON parse error.", gin.H{"body": err.Error()}))
		return false
	}
	return true
}

// pageParams 读取 page / page_size，非数字按默认值处理
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))
	return productservice.NormalizePage(page, size)
}

// boolQuery 未提供时返回 nil
func boolQuery(c *gin.Context, key string) (*bool, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validation("", gin.H{key: "Must be a boolean."})
	}
	return &v, nil
}
