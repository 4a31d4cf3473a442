package domain

import "time"

// Asset is a row of the ownership registry. Approved is the single operator allowed to move it
// on the owner's behalf; it is cleared on every transfer. PreviousOwner and PreviousApproved hold
// the owner and approval before the last transfer and are what a revert restores.
type Asset struct {
	AssetID          uint64    `gorm:"column:asset_id;primaryKey;autoIncrement:false" json:"asset_id"`
	Owner            Identity  `gorm:"column:owner;type:varchar(128);not null" json:"owner"`
	Approved         Identity  `gorm:"column:approved;type:varchar(128);not null;default:''" json:"approved"`
	PreviousOwner    Identity  `gorm:"column:previous_owner;type:varchar(128);not null;default:''" json:"previous_owner"`
	PreviousApproved Identity  `gorm:"column:previous_approved;type:varchar(128);not null;default:''" json:"-"`
	CreatedAt        time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt        time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Asset) TableName() string {
	return "Assets"
}
