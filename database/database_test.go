package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateInMemory(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	assert.True(t, db.Migrator().HasTable("messages"))
	assert.True(t, db.Migrator().HasTable("reactions"))
	assert.True(t, db.Migrator().HasTable("users"))
	assert.True(t, db.Migrator().HasIndex("reactions", "idx_reactions_unique"))
}

func TestCasbinMessagePolicy(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)

	e, err := Casbin(db)
	require.NoError(t, err)

	allowed := func(role, action string) bool {
		ok, err := e.Enforce(role, ObjectMessage, action)
		require.NoError(t, err)
		return ok
	}

	assert.True(t, allowed(RoleSender, ActionEdit))
	assert.True(t, allowed(RoleSender, ActionDeleteEveryone))
	assert.True(t, allowed(RoleSender, ActionPin))
	assert.True(t, allowed(RoleReceiver, ActionPin))
	assert.True(t, allowed(RoleReceiver, ActionReact))
	assert.True(t, allowed(RoleReceiver, ActionDeleteSelf))
	assert.False(t, allowed(RoleReceiver, ActionEdit))
	assert.False(t, allowed(RoleReceiver, ActionDeleteEveryone))
	assert.False(t, allowed(RoleOutsider, ActionRead))
	assert.False(t, allowed(RoleOutsider, ActionReact))
}

func TestCasbinSeedsOnce(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)

	_, err = Casbin(db)
	require.NoError(t, err)
	_, err = Casbin(db)
	require.NoError(t, err)

	var policies, groups int64
	require.NoError(t, db.Table("casbin_rule").Where("ptype = ?", "p").Count(&policies).Error)
	require.NoError(t, db.Table("casbin_rule").Where("ptype = ?", "g").Count(&groups).Error)
	assert.EqualValues(t, len(defaultPolicies), policies)
	assert.EqualValues(t, len(defaultGroups), groups)
}
