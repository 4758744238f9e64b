package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/controlplane/internal/billing/domain"
)

func (s *Server) CreateCheckout(c *gin.Context) {
	tenant, _, err := tenantAndPrincipal(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req billingdomain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.PlanID == 0 {
		AbortWithError(c, newValidationError("plan_id", "required", "plan_id is required"))
		return
	}

	resp, err := s.billing.CreateCheckout(c.Request.Context(), tenant.ID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetCheckout(c *gin.Context) {
	tenant, _, err := tenantAndPrincipal(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		AbortWithError(c, billingdomain.ErrInvalidSessionID)
		return
	}

	session, err := s.billing.GetCheckout(c.Request.Context(), tenant.ID, sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}
