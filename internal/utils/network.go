package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetRealIP extracts the client IP address for audit records.
//
// Priority order:
//  1. X-Real-IP header (set by reverse proxies like Nginx)
//  2. First public address in X-Forwarded-For
//  3. Gin's ClientIP() (direct connections)
func GetRealIP(c *gin.Context) string {
	realIP := strings.TrimSpace(c.Request.Header.Get("X-Real-IP"))
	if ip := net.ParseIP(realIP); ip != nil && !isPrivateIP(ip) {
		return realIP
	}

	if forwarded := c.Request.Header.Get("X-Forwarded-For"); forwarded != "" {
		for _, candidate := range strings.Split(forwarded, ",") {
			candidate = strings.TrimSpace(candidate)
			if ip := net.ParseIP(candidate); ip != nil && !isPrivateIP(ip) {
				return candidate
			}
		}
	}

	return c.ClientIP()
}

// GetUserAgent returns the request User-Agent or "Unknown"
func GetUserAgent(c *gin.Context) string {
	if userAgent := c.Request.UserAgent(); userAgent != "" {
		return userAgent
	}
	return "Unknown"
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
