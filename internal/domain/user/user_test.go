package user_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lllypuk/teamboard/internal/domain/user"
)

func TestRole_String(t *testing.T) {
	assert.Equal(t, "Admin", user.RoleAdmin.String())
	assert.Equal(t, "Project Manager", user.RoleProjectManager.String())
	assert.Equal(t, "Developer", user.RoleDeveloper.String())
	assert.Equal(t, "Tester", user.RoleTester.String())
}

func TestRole_CanAssignTasks(t *testing.T) {
	assert.True(t, user.RoleAdmin.CanAssignTasks())
	assert.True(t, user.RoleProjectManager.CanAssignTasks())
	assert.False(t, user.RoleDeveloper.CanAssignTasks())
	assert.False(t, user.RoleTester.CanAssignTasks())
}
