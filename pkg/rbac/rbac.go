package rbac

import "slices"

// 权限常量
const (
	PermissionReadMail   = "mail:read"
	PermissionSendMail   = "mail:send"
	PermissionUpdateMail = "mail:update"
	PermissionDeleteMail = "mail:delete"

	PermissionReadProfile   = "profile:read"
	PermissionUpdateProfile = "profile:update"

	// 管理权限
	PermissionManageUsers  = "user:manage"
	PermissionReplayOutbox = "outbox:replay"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var userPermissions = []string{
	PermissionReadMail,
	PermissionSendMail,
	PermissionUpdateMail,
	PermissionDeleteMail,
	PermissionReadProfile,
	PermissionUpdateProfile,
}

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleUser:  userPermissions,
	RoleAdmin: append(slices.Clone(userPermissions), PermissionManageUsers, PermissionReplayOutbox),
}

// ValidRole 判断角色是否存在
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasPermission 检查角色是否有指定权限，未知角色没有任何权限
func HasPermission(role, permission string) bool {
	return slices.Contains(rolePermissions[role], permission)
}

// CheckPermission 返回错误而不是布尔值，便于 handler 处理
func CheckPermission(userID int64, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int64
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
