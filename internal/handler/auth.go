package handler

import (
	"MedVault/internal/dto"
	"MedVault/internal/service"
	"MedVault/utils"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Register creates an account, or mails an activation link when SMTP is configured.
func (h *Handler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	res, err := h.Users.Register(c.Request.Context(), service.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	}, utils.RequestOrigin(c, h.BaseURL))
	if err != nil {
		h.fail(c, err)
		return
	}
	msg := "activation email sent"
	if res.Activated {
		msg = "account created"
	}
	c.JSON(http.StatusOK, gin.H{"msg": msg, "activated": res.Activated})
}

// Activate opens an activation link.
func (h *Handler) Activate(c *gin.Context) {
	err := h.Users.Activate(c.Request.Context(), c.Query("token"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"msg": "account activated"})
	case errors.Is(err, service.ErrAlreadyActivated):
		c.JSON(http.StatusOK, gin.H{"msg": "account already activated"})
	default:
		h.fail(c, err)
	}
}

// Login authenticates a user and returns a token.
func (h *Handler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	token, user, err := h.Users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.LoginResponse{Message: "success", Token: token, User: user})
}
