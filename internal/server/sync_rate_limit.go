package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kassa/internal/observability/logger"
	terminaldomain "github.com/smallbiznis/kassa/internal/terminal/domain"
	"go.uber.org/zap"
)

const (
	rateLimitReasonTenantRate          = "tenant-rate"
	rateLimitReasonTerminalRate        = "terminal-rate"
	rateLimitReasonTerminalConcurrency = "terminal-concurrency"

	contextSyncLockTokenKey = "sync_lock_token"
)

// SyncIngestRateLimit throttles batch submissions per tenant and per
// terminal. Runs after TerminalRequired so the limits key off verified
// identity, not client-supplied headers.
func (s *Server) SyncIngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.syncLimiter == nil || !s.syncLimiter.Enabled() {
			c.Next()
			return
		}

		terminal := terminalFromContext(c)
		if terminal == nil {
			AbortWithError(c, terminaldomain.ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		tenantID := terminal.TenantID.String()
		endpoint := c.FullPath()

		res, err := s.syncLimiter.AllowTenant(ctx, tenantID)
		if err != nil {
			logger.FromContext(ctx).Warn("sync tenant rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			s.denySyncRateLimit(c, tenantID, endpoint, rateLimitReasonTenantRate)
			return
		}

		res, err = s.syncLimiter.AllowTerminal(ctx, terminal.Code)
		if err != nil {
			logger.FromContext(ctx).Warn("sync terminal rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			s.denySyncRateLimit(c, tenantID, endpoint, rateLimitReasonTerminalRate)
			return
		}

		lockToken, acquired, err := s.syncLimiter.TryLockTerminal(ctx, terminal.Code)
		if err != nil {
			logger.FromContext(ctx).Warn("sync concurrency lock failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !acquired {
			s.denySyncRateLimit(c, tenantID, endpoint, rateLimitReasonTerminalConcurrency)
			return
		}
		c.Set(contextSyncLockTokenKey, lockToken)
		s.recordSyncRateLimitAllowed(c, tenantID, endpoint)

		defer func() {
			if err := s.syncLimiter.ReleaseTerminal(ctx, terminal.Code, lockToken); err != nil {
				logger.FromContext(ctx).Warn("sync concurrency unlock failed", zap.Error(err))
			}
		}()

		c.Next()
	}
}

func (s *Server) denySyncRateLimit(c *gin.Context, tenantID, endpoint, reason string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), tenantID, endpoint, reason)
	}
	AbortWithError(c, ErrTooManyRequests)
}

func (s *Server) recordSyncRateLimitAllowed(c *gin.Context, tenantID, endpoint string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), tenantID, endpoint)
	}
}
