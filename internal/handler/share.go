package handler

import (
	"MedVault/internal/dto"
	"MedVault/internal/service"
	"MedVault/utils"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CreateShareLink issues a token over all of the caller's records.
func (h *Handler) CreateShareLink(c *gin.Context) {
	userID, _ := utils.CurrentUserID(c)
	var req dto.CreateShareLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	res, err := h.Shares.CreateShareLink(c.Request.Context(), userID, utils.RequestOrigin(c, h.BaseURL), service.ShareOptions{
		Days:    req.Days,
		MaxUses: req.MaxUses,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListShareLinks(c *gin.Context) {
	userID, _ := utils.CurrentUserID(c)
	links, err := h.Shares.GetUserShareLinks(c.Request.Context(), userID, utils.RequestOrigin(c, h.BaseURL))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": links})
}

func (h *Handler) RevokeShareLink(c *gin.Context) {
	userID, _ := utils.CurrentUserID(c)
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.Shares.RevokeShareLink(c.Request.Context(), userID, id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "share link revoked"})
}

// ShareLinkQRCode serves the share URL as a PNG. ?size= is clamped to 128..1024.
func (h *Handler) ShareLinkQRCode(c *gin.Context) {
	userID, _ := utils.CurrentUserID(c)
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	size := parsePositiveInt(c.Query("size"), service.DefaultQRCodeSize)
	png, err := h.Shares.ShareLinkQRCode(c.Request.Context(), userID, id, utils.RequestOrigin(c, h.BaseURL), size)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// ViewShare is the share view. It is reachable without a session; a session only changes
// how download URLs are issued.
func (h *Handler) ViewShare(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	ctx := c.Request.Context()

	records, link, err := h.Shares.GetSharedRecords(ctx, token, service.AccessorInfo{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Name:      strings.TrimSpace(c.Query("accessor")),
	})
	if err != nil {
		h.failShare(c, err)
		return
	}

	_, authenticated := utils.CurrentUserID(c)
	c.JSON(http.StatusOK, dto.SharedRecordsResponse{
		State:         dto.ShareStateGranted,
		Authenticated: authenticated,
		Share: dto.ShareInfo{
			ExpiresAt: link.ExpiresAt,
			MaxUses:   link.MaxUses,
			UseCount:  link.UseCount,
		},
		Records: h.Resolver.ResolveAll(ctx, records, authenticated),
	})
}
