package domain

import (
	"time"
)

// Listing is the escrow record for one asset. Seller, buyer and terms are immutable after creation.
type Listing struct {
	AssetID          uint64    `gorm:"column:asset_id;primaryKey;autoIncrement:false" json:"asset_id"`
	Seller           Identity  `gorm:"column:seller;type:varchar(128);not null" json:"seller"`
	Buyer            Identity  `gorm:"column:buyer;type:varchar(128);not null" json:"buyer"`
	PurchasePrice    Amount    `gorm:"column:purchase_price;type:varchar(78);not null" json:"purchase_price"`
	EscrowAmount     Amount    `gorm:"column:escrow_amount;type:varchar(78);not null" json:"escrow_amount"`
	DepositedBalance Amount    `gorm:"column:deposited_balance;type:varchar(78);not null;default:'0'" json:"deposited_balance"`
	IsListed         bool      `gorm:"column:is_listed;not null;default:false" json:"is_listed"`
	InspectionPassed bool      `gorm:"column:inspection_passed;not null;default:false" json:"inspection_passed"`
	Finalized        bool      `gorm:"column:finalized;not null;default:false" json:"finalized"`
	Cancelled        bool      `gorm:"column:cancelled;not null;default:false" json:"cancelled"`
	SettledTo        *Identity `gorm:"column:settled_to;type:varchar(128)" json:"settled_to"`
	SettledAmount    Amount    `gorm:"column:settled_amount;type:varchar(78);not null;default:'0'" json:"settled_amount"`
	Version          int64     `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt        time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt        time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Listing) TableName() string {
	return "Listings"
}

// Terminal reports whether the listing was finalized or cancelled.
func (l *Listing) Terminal() bool {
	return l.Finalized || l.Cancelled
}

// Active reports whether the listing still accepts deposits, inspection and approvals.
func (l *Listing) Active() bool {
	return l.IsListed && !l.Terminal()
}

// Status is a display value for API consumers.
func (l *Listing) Status() string {
	switch {
	case l.Finalized:
		return "finalized"
	case l.Cancelled:
		return "cancelled"
	case l.IsListed:
		return "listed"
	default:
		return "unlisted"
	}
}
