package utils

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// RequestOrigin returns the configured base URL, or scheme://host of the request
// honouring X-Forwarded-Proto and X-Forwarded-Host.
func RequestOrigin(c *gin.Context, baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		scheme := "http"
		if forwarded := strings.TrimSpace(c.GetHeader("X-Forwarded-Proto")); forwarded != "" {
			scheme = forwarded
		} else if c.Request.TLS != nil {
			scheme = "https"
		}
		host := strings.TrimSpace(c.GetHeader("X-Forwarded-Host"))
		if host == "" {
			host = c.Request.Host
		}
		baseURL = scheme + "://" + host
	}
	return strings.TrimRight(baseURL, "/")
}
