package service

import (
	"context"

	"github.com/noah-isme/course-admin-api/internal/models"
)

// SystemActor is recorded in audit fields when no authenticated user is present.
const SystemActor = "system"

// PermissionChecker answers whether a role may perform a named action.
type PermissionChecker interface {
	HasPermission(role models.UserRole, permission string) bool
}

// IdentityProvider resolves the acting user for audit fields.
type IdentityProvider interface {
	CurrentActorID(ctx context.Context) string
}

// RolePermissions maps roles to the permissions they hold.
type RolePermissions map[models.UserRole][]string

// DefaultRolePermissions grants edit rights to administrators and read access to everyone else.
func DefaultRolePermissions() RolePermissions {
	return RolePermissions{
		models.RoleSuperAdmin: {models.PermissionViewCourses, models.PermissionEditCourses},
		models.RoleAdmin:      {models.PermissionViewCourses, models.PermissionEditCourses},
		models.RoleTeacher:    {models.PermissionViewCourses},
		models.RoleViewer:     {models.PermissionViewCourses},
	}
}

// HasPermission implements PermissionChecker.
func (r RolePermissions) HasPermission(role models.UserRole, permission string) bool {
	for _, p := range r[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// ContextIdentity reads the actor from JWT claims stored on the context.
type ContextIdentity struct{}

// CurrentActorID implements IdentityProvider.
func (ContextIdentity) CurrentActorID(ctx context.Context) string {
	if claims, ok := models.ClaimsFromContext(ctx); ok && claims.UserID != "" {
		return claims.UserID
	}
	return SystemActor
}
