package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authorize checks that the actor may perform action on object within
	// the organization. A denial is ErrForbidden.
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
	// Grant assigns a role to an actor within an organization.
	Grant(ctx context.Context, actor string, orgID string, role string) error
	// Revoke removes an actor's role within an organization.
	Revoke(ctx context.Context, actor string, orgID string, role string) error
}

var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrInvalidRole         = errors.New("invalid_role")
)
