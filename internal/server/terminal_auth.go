package server

import (
	"bytes"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/kassa/internal/observability/context"
	terminaldomain "github.com/smallbiznis/kassa/internal/terminal/domain"
	"github.com/smallbiznis/kassa/pkg/tenantctx"
)

const (
	HeaderTerminal  = "X-Terminal-Id"
	HeaderSignature = "X-Signature"

	contextTerminalKey = "terminal"
)

// TerminalRequired authenticates a request as a registered device. The
// terminal, not a human user, is the authorization principal: tenant
// identity comes solely from the terminals table, never from the
// request.
func (s *Server) TerminalRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		code := strings.TrimSpace(c.GetHeader(HeaderTerminal))
		signature := strings.TrimSpace(c.GetHeader(HeaderSignature))
		if code == "" || signature == "" {
			AbortWithError(c, terminaldomain.ErrUnauthorized)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			AbortWithError(c, terminaldomain.ErrUnauthorized)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		terminal, err := s.terminalSvc.Authenticate(c.Request.Context(), code, signature, body)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		ctx = tenantctx.WithTenantID(ctx, terminal.TenantID)
		ctx = obscontext.WithTenantID(ctx, terminal.TenantID.String())
		ctx = obscontext.WithActor(ctx, "terminal", terminal.ID.String())
		c.Request = c.Request.WithContext(ctx)

		c.Set(contextTerminalKey, terminal)
		c.Set("terminal_code", terminal.Code)
		c.Next()
	}
}

// RequireTerminalScope gates a route on one of the scopes granted at
// registration. Runs after TerminalRequired.
func (s *Server) RequireTerminalScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		terminal := terminalFromContext(c)
		if terminal == nil {
			AbortWithError(c, terminaldomain.ErrUnauthorized)
			return
		}
		if !terminal.HasScope(scope) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func terminalFromContext(c *gin.Context) *terminaldomain.Terminal {
	value, ok := c.Get(contextTerminalKey)
	if !ok {
		return nil
	}
	terminal, ok := value.(*terminaldomain.Terminal)
	if !ok {
		return nil
	}
	return terminal
}
