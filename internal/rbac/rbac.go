package rbac

import "lexdraft/api/internal/store"

type Role string
type Action string

const (
	RoleNone      Role = ""
	RoleViewer    Role = "viewer"
	RoleCommenter Role = "commenter"
	RoleEditor    Role = "editor"
	RoleMember    Role = "member"
	RoleOwner     Role = "owner"
)

const (
	ActionRead    Action = "read"
	ActionComment Action = "comment"
	ActionWrite   Action = "write"
	ActionShare   Action = "share"
	ActionDelete  Action = "delete"
)

// Can reports whether role may perform action. Share roles (viewer,
// commenter, editor) describe what a share grants; only read is served
// through the anonymous path.
func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleMember:
		return action == ActionRead || action == ActionComment || action == ActionWrite
	case RoleEditor:
		return action == ActionRead || action == ActionComment || action == ActionWrite
	case RoleCommenter:
		return action == ActionRead || action == ActionComment
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// ForDocument resolves the role of an authenticated actor on a document.
// Tenant membership only counts when the actor carries a tenant.
func ForDocument(doc store.Document, actorID, actorOrgID string) Role {
	if actorID != "" && doc.OwnerID == actorID {
		return RoleOwner
	}
	if actorOrgID != "" && doc.OrgID == actorOrgID {
		return RoleMember
	}
	return RoleNone
}

// ForPermission maps a share permission to the role it grants.
func ForPermission(permission store.Permission) Role {
	switch permission {
	case store.PermissionView:
		return RoleViewer
	case store.PermissionComment:
		return RoleCommenter
	case store.PermissionEdit:
		return RoleEditor
	default:
		return RoleNone
	}
}

var allActions = []Action{ActionRead, ActionComment, ActionWrite, ActionShare, ActionDelete}

// Capabilities lists the actions role allows, in a stable order.
func Capabilities(role Role) []string {
	capabilities := []string{}
	for _, action := range allActions {
		if Can(role, action) {
			capabilities = append(capabilities, string(action))
		}
	}
	return capabilities
}
