package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service decides whether an actor may perform an action on an object
// inside a tenant. Actors are "user:<id>" or "operator".
type Service interface {
	Authorize(ctx context.Context, actor string, tenantID snowflake.ID, object string, action string) error
}
