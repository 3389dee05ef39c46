package postgres

import (
	"errors"

	auditDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/audit"
	orgDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/organization"
	"github.com/procurex/requisition-engine/internal/tenant"
	"gorm.io/gorm"
)

var ErrNoMembership = errors.New("no active membership")

// MembershipRepository implements tenant.MembershipRepositoryAPI using GORM.
type MembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) tenant.MembershipRepositoryAPI {
	return &MembershipRepository{db: db}
}

// ActiveOrgForUser returns the user's active organization. Membership is
// single-org per user; suspended organizations do not resolve.
func (r *MembershipRepository) ActiveOrgForUser(userID int64) (int64, error) {
	var membership orgDatamodel.Membership
	err := r.db.
		Joins("JOIN organizations ON organizations.id = memberships.org_id AND organizations.status = ?", orgDatamodel.StatusActive).
		Where("memberships.user_id = ? AND memberships.is_active = ?", userID, true).
		Order("memberships.id ASC").
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNoMembership
		}
		return 0, err
	}
	return membership.OrgID, nil
}

func (r *MembershipRepository) RoleInOrg(userID, orgID int64) (string, error) {
	var membership orgDatamodel.Membership
	err := r.db.
		Where("user_id = ? AND org_id = ? AND is_active = ?", userID, orgID, true).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoMembership
		}
		return "", err
	}
	return membership.Role, nil
}

// AuditRepository implements tenant.AuditRepositoryAPI using GORM.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) tenant.AuditRepositoryAPI {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(entry *auditDatamodel.CrossTenantAccessLog) error {
	return r.db.Create(entry).Error
}
