package tenant

import (
	"context"
	"log/slog"
	"time"

	"github.com/procurex/requisition-engine/internal"
	auditDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/audit"
)

// Resolver returns the single active organization for a caller. Every engine
// entry point takes the resolved org ID as an explicit argument afterwards,
// so a resolution failure can never silently widen to "all organizations".
type Resolver struct {
	memberships MembershipRepositoryAPI
	logger      *slog.Logger
}

func NewResolver(memberships MembershipRepositoryAPI, logger *slog.Logger) *Resolver {
	return &Resolver{
		memberships: memberships,
		logger:      logger,
	}
}

func (r *Resolver) Resolve(userID int64) (int64, error) {
	orgID, err := r.memberships.ActiveOrgForUser(userID)
	if err != nil {
		r.logger.Warn("no active organization for user", "user_id", userID, "error", err)
		return 0, internal.ErrNoOrganization
	}
	return orgID, nil
}

// RoleFor returns the caller's role in the given organization, or an
// authorization error when no active membership exists.
func (r *Resolver) RoleFor(userID, orgID int64) (string, error) {
	role, err := r.memberships.RoleInOrg(userID, orgID)
	if err != nil {
		r.logger.Warn("no membership for user in org", "user_id", userID, "org_id", orgID)
		return "", internal.ErrUnauthorized
	}
	return role, nil
}

// Guard enforces the tenant-isolation invariant on every by-ID access.
type Guard struct {
	audits AuditRepositoryAPI
	logger *slog.Logger
}

func NewGuard(audits AuditRepositoryAPI, logger *slog.Logger) *Guard {
	return &Guard{
		audits: audits,
		logger: logger,
	}
}

// Authorize verifies the resource belongs to the caller's organization. On a
// mismatch it records one audit entry and returns the same generic error a
// missing resource would produce, never revealing that the row exists in
// another tenant.
func (g *Guard) Authorize(ctx context.Context, callerOrgID, actorID int64, action string, res Resource) error {
	if res.OrgID == callerOrgID {
		return nil
	}

	g.logger.Warn("cross-tenant access attempt",
		"resource_type", res.Type,
		"resource_id", res.ID,
		"action", action,
		"caller_org_id", callerOrgID,
		"actor_id", actorID)

	entry := &auditDatamodel.CrossTenantAccessLog{
		ResourceType:  res.Type,
		ResourceID:    res.ID,
		ResourceOrgID: res.OrgID,
		Action:        action,
		CallerOrgID:   callerOrgID,
		ActorID:       actorID,
		CreatedAt:     time.Now(),
	}

	if err := g.audits.Create(entry); err != nil {
		// log-and-continue: the denial stands even if the audit write fails
		g.logger.Error("failed to write cross-tenant audit entry",
			"resource_type", res.Type,
			"resource_id", res.ID,
			"error", err)
	}

	return internal.ErrNotFoundOrDenied
}
