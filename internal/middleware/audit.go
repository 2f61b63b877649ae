package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/query-kb-api/pkg/middleware/requestid"
)

// Audit writes a structured audit record for every successful mutation on the route.
func Audit(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("audit")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status >= 400 {
			return
		}
		fields := []zap.Field{
			zap.String("action", action),
			zap.String("resource_id", c.Param("id")),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", requestid.Value(c)),
			zap.String("ip", c.ClientIP()),
		}
		if claims := Claims(c); claims != nil {
			fields = append(fields, zap.String("actor_id", claims.UserID), zap.String("actor_role", string(claims.Role)))
		}
		logger.Info("audit", fields...)
	}
}
