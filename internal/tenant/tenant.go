package tenant

import (
	auditDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/audit"
)

// Resource identifies an owned row for the cross-tenant guard.
type Resource struct {
	Type  string
	ID    int64
	OrgID int64
}

// MembershipRepositoryAPI resolves the caller's active organization and role.
type MembershipRepositoryAPI interface {
	ActiveOrgForUser(userID int64) (int64, error)
	RoleInOrg(userID, orgID int64) (string, error)
}

// AuditRepositoryAPI persists cross-tenant access attempts. Writes are
// best-effort; a failed audit write never blocks the denial.
type AuditRepositoryAPI interface {
	Create(entry *auditDatamodel.CrossTenantAccessLog) error
}
