package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	approvaldomain "github.com/smallbiznis/kassa/internal/approval/domain"
	inventorydomain "github.com/smallbiznis/kassa/internal/inventory/domain"
	obscontext "github.com/smallbiznis/kassa/internal/observability/context"
	productdomain "github.com/smallbiznis/kassa/internal/product/domain"
	tenantdomain "github.com/smallbiznis/kassa/internal/tenant/domain"
	terminaldomain "github.com/smallbiznis/kassa/internal/terminal/domain"
	"github.com/smallbiznis/kassa/pkg/tenantctx"
)

const contextTenantIDKey = "tenant_id"

// TenantRequired resolves the :slug path segment to a tenant and
// stashes its ID for the handlers below it.
func (s *Server) TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		slug := strings.TrimSpace(c.Param("slug"))
		if slug == "" {
			AbortWithError(c, tenantdomain.ErrInvalidID)
			return
		}

		resp, err := s.tenantSvc.GetBySlug(c.Request.Context(), slug)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		tenantID, err := snowflake.ParseString(resp.ID)
		if err != nil {
			AbortWithError(c, ErrInternal)
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
		ctx = obscontext.WithTenantID(ctx, resp.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextTenantIDKey, tenantID)
		c.Next()
	}
}

func tenantIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextTenantIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(snowflake.ID)
	return id, ok
}

func (s *Server) CreateTenant(c *gin.Context) {
	var req tenantdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenantSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetTenant(c *gin.Context) {
	resp, err := s.tenantSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListTerminals(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	items, err := s.terminalSvc.List(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"terminals": items})
}

func (s *Server) GetTerminal(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	resp, err := s.terminalSvc.Get(c.Request.Context(), tenantID, c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) RegisterTerminal(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	var req terminaldomain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.terminalSvc.Register(c.Request.Context(), tenantID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) RotateTerminalSecret(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	resp, err := s.terminalSvc.RotateSecret(c.Request.Context(), tenantID, c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) LockTerminal(c *gin.Context) {
	s.setTerminalLock(c, true)
}

func (s *Server) UnlockTerminal(c *gin.Context) {
	s.setTerminalLock(c, false)
}

func (s *Server) setTerminalLock(c *gin.Context, locked bool) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	var err error
	if locked {
		err = s.terminalSvc.Lock(c.Request.Context(), tenantID, c.Param("code"))
	} else {
		err = s.terminalSvc.Unlock(c.Request.Context(), tenantID, c.Param("code"))
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locked": locked})
}

func (s *Server) DeactivateTerminal(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	if err := s.terminalSvc.Deactivate(c.Request.Context(), tenantID, c.Param("code")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListProducts(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	items, err := s.productSvc.List(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": items})
}

func (s *Server) CreateProduct(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	var req productdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.productSvc.Create(c.Request.Context(), tenantID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) DeactivateProduct(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	if err := s.productSvc.Deactivate(c.Request.Context(), tenantID, c.Param("sku")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) RegisterApprover(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	var req approvaldomain.RegisterApproverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	approver, err := s.approvalSvc.RegisterApprover(c.Request.Context(), tenantID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"code": approver.Code,
		"name": approver.Name,
	})
}

func (s *Server) GetOrder(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	orderID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.orderSvc.GetByID(c.Request.Context(), tenantID, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

type adjustInventoryRequest struct {
	SKU    string `json:"sku"`
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

func (s *Server) AdjustInventory(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	var req adjustInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = inventorydomain.ReasonManualAdjustment
	}

	level, err := s.inventorySvc.Adjust(c.Request.Context(), s.db, tenantID, nil, req.SKU, req.Delta, reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sku": strings.TrimSpace(req.SKU), "on_hand": level})
}

func (s *Server) GetStockLevel(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	sku := strings.TrimSpace(c.Param("sku"))
	level, err := s.inventorySvc.OnHand(c.Request.Context(), s.db, tenantID, sku)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sku": sku, "on_hand": level})
}
