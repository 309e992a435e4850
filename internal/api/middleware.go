package api

import (
	"net/http"
	"strings"

	"trade-settlement-go/internal/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminIdentityHeader carries the caller identity resolved by the upstream auth gateway.
const AdminIdentityHeader = "X-Admin-Identity"

// requireAdmin only lets through callers listed in the admin identities.
func requireAdmin(admin config.Admin, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := strings.TrimSpace(c.GetHeader(AdminIdentityHeader))
		if identity == "" {
			fail(c, http.StatusUnauthorized, 0, "missing "+AdminIdentityHeader+" header")
			return
		}
		if !admin.IsAdmin(identity) {
			logger.Warn("Admin capability denied",
				zap.String("identity", identity),
				zap.String("path", c.FullPath()))
			fail(c, http.StatusForbidden, 0, "admin capability required")
			return
		}
		c.Set("admin_identity", identity)
		c.Next()
	}
}
