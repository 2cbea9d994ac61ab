package handler

import (
	"net/http"

	"go-storefront/apps/cart/model"
	cartservice "go-storefront/apps/cart/service"
	"go-storefront/apps/gateway/middleware"
	"go-storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// cartView 购物车附带按快照价计算的总额
type cartView struct {
	*model.Cart
	Total decimal.Decimal `json:"total"`
}

func viewCart(c *model.Cart) cartView {
	if c.Items == nil {
		c.Items = []model.CartItem{}
	}
	return cartView{Cart: c, Total: c.Total()}
}

func (h *Handler) ListCarts(c *gin.Context) {
	carts, err := h.carts.ListCarts(c.Request.Context(), middleware.CurrentActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	views := make([]cartView, 0, len(carts))
	for i := range carts {
		views = append(views, viewCart(&carts[i]))
	}
	response.Success(c, http.StatusOK, views)
}

func (h *Handler) CreateCart(c *gin.Context) {
	cart, err := h.carts.CreateCart(c.Request.Context(), middleware.CurrentActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, viewCart(cart))
}

func (h *Handler) GetCart(c *gin.Context) {
	cart, err := h.carts.GetCart(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, viewCart(cart))
}

func (h *Handler) AddCartItem(c *gin.Context) {
	var req cartservice.ItemInput
	if !bind(c, &req) {
		return
	}
	cart, err := h.carts.AddItem(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, viewCart(cart))
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) UpdateCartItem(c *gin.Context) {
	var req quantityRequest
	if !bind(c, &req) {
		return
	}
	cart, err := h.carts.UpdateItem(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), c.Param("item_id"), req.Quantity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, viewCart(cart))
}

func (h *Handler) RemoveCartItem(c *gin.Context) {
	cart, err := h.carts.RemoveItem(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), c.Param("item_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, viewCart(cart))
}
