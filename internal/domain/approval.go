package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListingApproval records that Identity approved the sale of AssetID. Absence means false.
type ListingApproval struct {
	ApprovalID uuid.UUID `gorm:"column:approval_id;type:uuid;primaryKey" json:"approval_id"`
	AssetID    uint64    `gorm:"column:asset_id;not null;uniqueIndex:idx_listing_approvals_asset_identity" json:"asset_id"`
	Identity   Identity  `gorm:"column:identity;type:varchar(128);not null;uniqueIndex:idx_listing_approvals_asset_identity" json:"identity"`
	CreatedAt  time.Time `gorm:"column:createdAt" json:"createdAt"`
}

func (ListingApproval) TableName() string {
	return "ListingApprovals"
}

func (a *ListingApproval) BeforeCreate(tx *gorm.DB) error {
	if a.ApprovalID == uuid.Nil {
		a.ApprovalID = uuid.New()
	}
	return nil
}
