package router

import (
	"MedVault/internal/handler"
	"MedVault/internal/metrics"
	"MedVault/utils"
	"fmt"

	"github.com/gin-gonic/gin"
)

type Options struct {
	JWT          *utils.JWTManager
	Metrics      *metrics.Metrics
	ShareLimiter *utils.IPRateLimiter
	CORSOrigin   string

	// TrustedProxies may set the client address through X-Forwarded-For. Empty trusts none.
	TrustedProxies []string
}

// InitRouter builds API routes.
func InitRouter(h *handler.Handler, opts Options) (*gin.Engine, error) {
	r := gin.Default()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(utils.CORSMiddleware(opts.CORSOrigin))
	r.NoRoute(handler.NotFound)

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))

	shareView := []gin.HandlerFunc{utils.OptionalAuthMiddleware(opts.JWT)}
	if opts.ShareLimiter != nil {
		shareView = append([]gin.HandlerFunc{opts.ShareLimiter.Middleware()}, shareView...)
	}
	r.GET("/share/:token", append(shareView, h.ViewShare)...)

	api := r.Group("/api")
	{
		api.POST("/register", h.Register)
		api.GET("/activate", h.Activate)
		api.POST("/login", h.Login)
		api.GET("/share/:token", append(shareView, h.ViewShare)...)

		auth := api.Group("")
		auth.Use(utils.AuthMiddleware(opts.JWT))

		records := auth.Group("/records")
		{
			records.GET("", h.ListRecords)
			records.GET("/search", h.SearchRecords)
			records.POST("/upload", h.UploadRecords)
			records.GET("/:id/url", h.RecordURL)
			records.DELETE("/:id", h.DeleteRecord)
		}

		links := auth.Group("/share/links")
		{
			links.POST("", h.CreateShareLink)
			links.GET("", h.ListShareLinks)
			links.DELETE("/:id", h.RevokeShareLink)
			links.GET("/:id/qrcode", h.ShareLinkQRCode)
			links.GET("/:id/access-logs", h.ListShareLinkAccessLogs)
		}

		auth.GET("/access-logs", h.ListAccessLogs)
	}
	return r, nil
}
