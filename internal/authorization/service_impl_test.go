package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	return NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Enforcer: enforcer,
	})
}

func TestGrantAuthorizeRevoke(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	actor := "user:" + node.Generate().String()
	orgID := node.Generate().String()

	// No role yet: everything is denied.
	err = svc.Authorize(ctx, actor, orgID, ObjectMetric, ActionMetricView)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.Grant(ctx, actor, orgID, RoleMember))

	// Members browse and bind but do not manage definitions.
	assert.NoError(t, svc.Authorize(ctx, actor, orgID, ObjectMetric, ActionMetricView))
	assert.NoError(t, svc.Authorize(ctx, actor, orgID, ObjectUsage, ActionUsageBind))
	err = svc.Authorize(ctx, actor, orgID, ObjectMetric, ActionMetricCreate)
	assert.ErrorIs(t, err, ErrForbidden)

	// The grant is scoped to its organization.
	otherOrg := node.Generate().String()
	err = svc.Authorize(ctx, actor, otherOrg, ObjectMetric, ActionMetricView)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.Revoke(ctx, actor, orgID, RoleMember))
	err = svc.Authorize(ctx, actor, orgID, ObjectMetric, ActionMetricView)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestOwnerManagesRoles(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	owner := "user:" + node.Generate().String()
	member := "user:" + node.Generate().String()
	orgID := node.Generate().String()

	require.NoError(t, svc.Grant(ctx, owner, orgID, RoleOwner))
	assert.NoError(t, svc.Authorize(ctx, owner, orgID, ObjectRole, ActionRoleManage))

	require.NoError(t, svc.Grant(ctx, member, orgID, RoleAdmin))
	assert.NoError(t, svc.Authorize(ctx, member, orgID, ObjectMetric, ActionMetricDelete))
	err = svc.Authorize(ctx, member, orgID, ObjectRole, ActionRoleManage)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSystemActorImplicitRole(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	orgID := node.Generate().String()

	assert.NoError(t, svc.Authorize(ctx, "system", orgID, ObjectMetric, ActionMetricCreate))
	assert.NoError(t, svc.Authorize(ctx, "system", orgID, ObjectRole, ActionRoleManage))
}

func TestGrantValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	actor := "user:" + node.Generate().String()
	orgID := node.Generate().String()

	assert.ErrorIs(t, svc.Grant(ctx, actor, orgID, "superuser"), ErrInvalidRole)
	assert.ErrorIs(t, svc.Grant(ctx, "service-account", orgID, RoleMember), ErrInvalidActor)
	assert.ErrorIs(t, svc.Grant(ctx, actor, " ", RoleMember), ErrInvalidOrganization)
}
