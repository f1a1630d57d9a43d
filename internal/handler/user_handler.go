package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmail/internal/model"
	"webmail/internal/service/user"
)

type UserHandler struct {
	userService *user.Service
	logger      *zap.Logger
}

func NewUserHandler(userService *user.Service, logger *zap.Logger) *UserHandler {
	return &UserHandler{userService: userService, logger: logger}
}

func actor(c *gin.Context) (user.Actor, bool) {
	id, role, ok := currentUser(c)
	return user.Actor{ID: id, Role: role}, ok
}

// Get handles GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	u, err := h.userService.Get(c.Request.Context(), a, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// UpdateProfile handles PUT /api/users/:id
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req struct {
		Email       *string        `json:"email"`
		FirstName   *string        `json:"firstName"`
		LastName    *string        `json:"lastName"`
		Phone       *string        `json:"phone"`
		DateOfBirth *string        `json:"dateOfBirth"`
		Address     *model.Address `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	u, err := h.userService.UpdateProfile(c.Request.Context(), a, id, user.ProfileInput{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		DateOfBirth: req.DateOfBirth,
		Address:     req.Address,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// List handles GET /api/users?page=&limit=&search=
func (h *UserHandler) List(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	res, err := h.userService.List(c.Request.Context(), a, queryInt(c, "page"), queryInt(c, "limit"), c.Query("search"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Activate handles PUT /api/users/:id/activate
func (h *UserHandler) Activate(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	u, err := h.userService.Activate(c.Request.Context(), a, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// Deactivate handles DELETE /api/users/:id
func (h *UserHandler) Deactivate(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	u, err := h.userService.Deactivate(c.Request.Context(), a, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// SetRole handles PUT /api/users/:id/role
func (h *UserHandler) SetRole(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	u, err := h.userService.SetRole(c.Request.Context(), a, id, req.Role)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}
