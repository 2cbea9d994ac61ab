package handler

import (
	"net/http"

	"go-storefront/apps/gateway/middleware"
	"go-storefront/apps/product/model"
	productservice "go-storefront/apps/product/service"
	reviewmodel "go-storefront/apps/review/model"
	"go-storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

// ListProducts 支持 category / vendor / is_active / search / ordering 筛选
func (h *Handler) ListProducts(c *gin.Context) {
	active, err := boolQuery(c, "is_active")
	if err != nil {
		response.Error(c, err)
		return
	}
	page, size := pageParams(c)
	list, count, err := h.catalog.ListProducts(c.Request.Context(), productservice.ProductQuery{
		CategoryID: c.Query("category"),
		VendorID:   c.Query("vendor"),
		IsActive:   active,
		Search:     c.Query("search"),
		Ordering:   c.Query("ordering"),
		Page:       page,
		PageSize:   size,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, response.NewPage(list, count, page, size))
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var req productservice.ProductInput
	if !bind(c, &req) {
		return
	}
	p, err := h.catalog.CreateProduct(c.Request.Context(), middleware.CurrentActor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, p)
}

func (h *Handler) GetProduct(c *gin.Context) {
	p, err := h.catalog.GetProduct(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, p)
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	var req productservice.ProductPatch
	if !bind(c, &req) {
		return
	}
	p, err := h.catalog.UpdateProduct(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, p)
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), middleware.CurrentActor(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusNoContent, nil)
}

func (h *Handler) AddVariant(c *gin.Context) {
	var req productservice.VariantInput
	if !bind(c, &req) {
		return
	}
	v, err := h.catalog.AddVariant(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, v)
}

func (h *Handler) SetStock(c *gin.Context) {
	var req productservice.StockInput
	if !bind(c, &req) {
		return
	}
	inv, err := h.catalog.SetStock(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, inv)
}

func (h *Handler) ListReviews(c *gin.Context) {
	list, err := h.catalog.ListReviews(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []reviewmodel.Review{}
	}
	response.Success(c, http.StatusOK, list)
}

func (h *Handler) CreateReview(c *gin.Context) {
	var req productservice.ReviewInput
	if !bind(c, &req) {
		return
	}
	r, err := h.catalog.CreateReview(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, r)
}

func (h *Handler) ListCategories(c *gin.Context) {
	list, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []model.Category{}
	}
	response.Success(c, http.StatusOK, list)
}

func (h *Handler) CreateCategory(c *gin.Context) {
	var req productservice.CategoryInput
	if !bind(c, &req) {
		return
	}
	cat, err := h.catalog.CreateCategory(c.Request.Context(), middleware.CurrentActor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, cat)
}

func (h *Handler) GetCategory(c *gin.Context) {
	cat, err := h.catalog.GetCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, cat)
}

func (h *Handler) UpdateCategory(c *gin.Context) {
	var req productservice.CategoryInput
	if !bind(c, &req) {
		return
	}
	cat, err := h.catalog.UpdateCategory(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, cat)
}

func (h *Handler) DeleteCategory(c *gin.Context) {
	if err := h.catalog.DeleteCategory(c.Request.Context(), middleware.CurrentActor(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusNoContent, nil)
}

func (h *Handler) ListVendors(c *gin.Context) {
	list, err := h.catalog.ListVendors(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []model.Vendor{}
	}
	response.Success(c, http.StatusOK, list)
}

func (h *Handler) CreateVendor(c *gin.Context) {
	var req productservice.VendorInput
	if !bind(c, &req) {
		return
	}
	v, err := h.catalog.CreateVendor(c.Request.Context(), middleware.CurrentActor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, v)
}

func (h *Handler) GetVendor(c *gin.Context) {
	v, err := h.catalog.GetVendor(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, v)
}
