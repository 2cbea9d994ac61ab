package handler

import (
	"net/http"
	"strconv"

	"go-storefront/apps/gateway/middleware"
	"go-storefront/apps/order/model"
	orderservice "go-storefront/apps/order/service"
	"go-storefront/pkg/audit"
	"go-storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

// ListOrders 管理员可用 account 参数筛选
func (h *Handler) ListOrders(c *gin.Context) {
	page, size := pageParams(c)
	list, count, err := h.orders.ListOrders(c.Request.Context(), middleware.CurrentActor(c), orderservice.OrderQuery{
		AccountID: c.Query("account"),
		Status:    c.Query("status"),
		Page:      page,
		PageSize:  size,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, response.NewPage(list, count, page, size))
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req orderservice.CreateOrderInput
	if !bind(c, &req) {
		return
	}
	o, err := h.orders.CreateOrder(c.Request.Context(), middleware.CurrentActor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, o)
}

func (h *Handler) GetOrder(c *gin.Context) {
	o, err := h.orders.GetOrder(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, o)
}

// PayOrder 返回渠道支付链接
func (h *Handler) PayOrder(c *gin.Context) {
	res, err := h.orders.Pay(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func (h *Handler) ListPayments(c *gin.Context) {
	list, err := h.orders.ListPayments(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []model.Payment{}
	}
	response.Success(c, http.StatusOK, list)
}

func (h *Handler) LatestPayment(c *gin.Context) {
	p, err := h.orders.LatestPayment(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, p)
}

func (h *Handler) CancelOrder(c *gin.Context) {
	o, err := h.orders.Cancel(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, o)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req statusRequest
	if !bind(c, &req) {
		return
	}
	o, err := h.orders.UpdateStatus(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), model.Status(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, o)
}

func (h *Handler) OrderHistory(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)
	entries, err := h.orders.History(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	response.Success(c, http.StatusOK, entries)
}

// PaymentWebhook 渠道回调确认或失败一次支付
func (h *Handler) PaymentWebhook(c *gin.Context) {
	var req orderservice.ConfirmInput
	if !bind(c, &req) {
		return
	}
	p, err := h.orders.ConfirmPayment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, p)
}
