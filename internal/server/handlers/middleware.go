package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inhapress/stockledger/internal/service/auth"
)

// AdminHeader carries the shared admin password.
const AdminHeader = "X-Admin-Password"

// Authorizer checks the admin password presented by a client.
type Authorizer interface {
	Authorize(client, password string) (bool, error)
}

// AdminOnly rejects requests without a valid admin password.
func AdminOnly(gate Authorizer, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		ok, err := gate.Authorize(c.ClientIP(), c.GetHeader(AdminHeader))
		if errors.Is(err, auth.ErrRateLimited) {
			logger.Warn("admin login throttled", zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: err.Error()})
			return
		}
		if err != nil || !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "admin password required"})
			return
		}
		c.Next()
	}
}
