package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/controlplane/internal/admission"
	auditdomain "github.com/smallbiznis/controlplane/internal/audit/domain"
	authdomain "github.com/smallbiznis/controlplane/internal/auth/domain"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateUserRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

func (s *Server) Login(c *gin.Context) {
	tenant, ok := admission.TenantFromContext(c)
	if !ok {
		AbortWithError(c, catalogdomain.ErrTenantNotFound)
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		TenantID: tenant.ID,
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateUser adds a member to the tenant. The users slot was reserved by
// admission and is released there when this handler fails.
func (s *Server) CreateUser(c *gin.Context) {
	tenant, _, err := tenantAndPrincipal(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = authdomain.RoleMember
	}
	if role == authdomain.RoleOwner {
		AbortWithError(c, newValidationError("role", "invalid_role", "a tenant has exactly one owner"))
		return
	}

	user, err := s.authsvc.CreateUser(c.Request.Context(), authdomain.CreateUserRequest{
		TenantID:  tenant.ID,
		Username:  strings.TrimSpace(req.Username),
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Role:      role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c.Request.Context(), auditdomain.Entry{
		TenantID:   tenant.ID,
		Action:     auditdomain.ActionUserCreate,
		TargetType: "user",
		TargetID:   user.ID.String(),
		Metadata:   map[string]any{"role": user.Role},
	})

	c.JSON(http.StatusCreated, gin.H{"data": user})
}

func (s *Server) DeleteUser(c *gin.Context) {
	tenant, _, err := tenantAndPrincipal(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	userID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.authsvc.DeleteUser(c.Request.Context(), tenant.ID, userID); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c.Request.Context(), auditdomain.Entry{
		TenantID:   tenant.ID,
		Action:     auditdomain.ActionUserDelete,
		TargetType: "user",
		TargetID:   userID.String(),
	})

	c.Status(http.StatusNoContent)
}
