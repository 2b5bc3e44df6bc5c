package handler

import (
	"MedVault/internal/dto"
	"MedVault/internal/service"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handler carries the services behind the HTTP routes.
type Handler struct {
	Users      *service.UserService
	Records    *service.RecordService
	Shares     *service.ShareService
	AccessLogs *service.AccessLogService
	Resolver   *service.URLResolver

	BaseURL            string
	PlatformConfigured bool
	Log                *logrus.Logger
}

// Healthz reports liveness and whether the storage platform is configured.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":              "ok",
		"platform_configured": h.PlatformConfigured,
	})
}

// NotFound answers unknown routes with JSON.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotAuthenticated),
		errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrPermissionDenied),
		errors.Is(err, service.ErrFileAccessDenied),
		errors.Is(err, service.ErrAccountInactive),
		errors.Is(err, service.ErrInvalidOrExpiredLink),
		errors.Is(err, service.ErrMaxUsesExceeded):
		return http.StatusForbidden
	case errors.Is(err, service.ErrRecordNotFound),
		errors.Is(err, service.ErrShareLinkNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrUnsupportedFileType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, service.ErrInvalidFileName),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrActivationInvalid):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUserExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// failShare renders share view failures. Validation failures all look alike to the viewer.
func (h *Handler) failShare(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidOrExpiredLink), errors.Is(err, service.ErrMaxUsesExceeded):
		c.JSON(http.StatusForbidden, dto.ShareDeniedResponse{State: dto.ShareStateAccessDenied, Error: err.Error()})
	case errors.Is(err, service.ErrAccessConfiguration):
		h.Log.WithError(err).Error("share view misconfigured")
		c.JSON(http.StatusInternalServerError, dto.ShareDeniedResponse{State: dto.ShareStateConfiguration, Error: err.Error()})
	default:
		h.Log.WithError(err).Error("share view failed")
		c.JSON(http.StatusInternalServerError, dto.ShareDeniedResponse{State: dto.ShareStateAccessDenied, Error: "share view failed"})
	}
}

func parsePositiveInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
