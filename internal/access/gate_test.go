package access_test

import (
	"testing"

	"GoldLedger/internal/access"
	"GoldLedger/internal/errs"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleSet_GrantRevoke(t *testing.T) {
	roles := access.NewRoleSet()
	admin := uuid.New()

	require.NoError(t, roles.Grant(access.RoleAdmin, admin))
	assert.True(t, roles.HasRole(access.RoleAdmin, admin))
	assert.False(t, roles.HasRole(access.RoleManager, admin))

	err := roles.Grant(access.RoleAdmin, admin)
	require.ErrorIs(t, err, errs.ErrState, "double grant is a state error")

	require.NoError(t, roles.Revoke(access.RoleAdmin, admin))
	assert.False(t, roles.HasRole(access.RoleAdmin, admin))
	require.ErrorIs(t, roles.Revoke(access.RoleAdmin, admin), errs.ErrState)
}

func TestRequire(t *testing.T) {
	roles := access.NewRoleSet()
	keeper := uuid.New()
	require.NoError(t, roles.Grant(access.RoleKeeper, keeper))

	require.NoError(t, access.Require(roles, access.RoleKeeper, keeper, "refresh"))
	require.ErrorIs(t, access.Require(roles, access.RoleAdmin, keeper, "cancel"), errs.ErrUnauthorized)
	require.ErrorIs(t, access.Require(nil, access.RoleAdmin, keeper, "cancel"), errs.ErrUnauthorized)
}

func TestParseRole(t *testing.T) {
	r, err := access.ParseRole("Pauser")
	require.NoError(t, err)
	assert.Equal(t, access.RolePauser, r)

	_, err = access.ParseRole("Owner")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestGuard_Paused(t *testing.T) {
	var sw access.Switch
	require.NoError(t, access.Guard(&sw, "deposit"))

	require.NoError(t, sw.Pause())
	require.ErrorIs(t, access.Guard(&sw, "deposit"), errs.ErrState)
	require.ErrorIs(t, sw.Pause(), errs.ErrState)

	require.NoError(t, sw.Unpause())
	require.NoError(t, access.Guard(&sw, "deposit"))
	require.NoError(t, access.Guard(nil, "deposit"))
}
