package handler

import (
	"net/http"

	"go-storefront/apps/gateway/middleware"
	"go-storefront/apps/user/model"
	userservice "go-storefront/apps/user/service"
	"go-storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Register(c *gin.Context) {
	var req userservice.RegisterInput
	if !bind(c, &req) {
		return
	}
	p, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, p)
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Token 邮箱密码换取 access / refresh token
func (h *Handler) Token(c *gin.Context) {
	var req tokenRequest
	if !bind(c, &req) {
		return
	}
	pair, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, pair)
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (h *Handler) RefreshToken(c *gin.Context) {
	var req refreshRequest
	if !bind(c, &req) {
		return
	}
	access, err := h.users.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"access": access})
}

func (h *Handler) Me(c *gin.Context) {
	p, err := h.users.Me(c.Request.Context(), middleware.CurrentActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, p)
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) AssignRole(c *gin.Context) {
	var req roleRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.users.AssignRole(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), req.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, p)
}

type activeRequest struct {
	IsActive bool `json:"is_active"`
}

func (h *Handler) SetAccountActive(c *gin.Context) {
	var req activeRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.users.SetActive(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), req.IsActive)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, p)
}

func (h *Handler) ListAddresses(c *gin.Context) {
	list, err := h.users.ListAddresses(c.Request.Context(), middleware.CurrentActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []model.Address{}
	}
	response.Success(c, http.StatusOK, list)
}

func (h *Handler) CreateAddress(c *gin.Context) {
	var req model.Address
	if !bind(c, &req) {
		return
	}
	addr, err := h.users.CreateAddress(c.Request.Context(), middleware.CurrentActor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, addr)
}

func (h *Handler) SetDefaultAddress(c *gin.Context) {
	addr, err := h.users.SetDefaultAddress(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, addr)
}
