package server

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/controlplane/internal/authorization"
)

// authorizeTenantAction checks the authenticated user's role inside the
// request tenant.
func (s *Server) authorizeTenantAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, principal, err := tenantAndPrincipal(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.authorize(c, userSubject(principal.UserID), tenant.ID, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// authorizeOperatorAction checks the operator policy for a tenant lifecycle
// action. The target tenant comes from the :id path parameter.
func (s *Server) authorizeOperatorAction(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isOperator(c) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		tenantID, err := parseIDParam(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.authorize(c, authorization.ActorOperator, tenantID, authorization.ObjectTenant, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorize(c *gin.Context, actor string, tenantID snowflake.ID, object string, action string) error {
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(c.Request.Context(), actor, tenantID, strings.TrimSpace(object), strings.TrimSpace(action))
}

func userSubject(userID snowflake.ID) string {
	return fmt.Sprintf("user:%s", userID)
}
