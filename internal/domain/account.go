package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account holds the spendable balance of one identity, the custodian included.
type Account struct {
	Identity  Identity  `gorm:"column:identity;type:varchar(128);primaryKey" json:"identity"`
	Balance   Amount    `gorm:"column:balance;type:varchar(78);not null;default:'0'" json:"balance"`
	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Account) TableName() string {
	return "Accounts"
}

// Funds transfer kinds.
const (
	TransferCollect = "collect"
	TransferPay     = "pay"
	TransferCredit  = "credit"
)

// FundsTransfer journals every balance movement, attributed to the asset it settles.
type FundsTransfer struct {
	TransferID uuid.UUID `gorm:"column:transfer_id;type:uuid;primaryKey" json:"transfer_id"`
	Kind       string    `gorm:"column:kind;type:varchar(20);not null" json:"kind"`
	AssetID    *uint64   `gorm:"column:asset_id;index" json:"asset_id"`
	FromID     *Identity `gorm:"column:from_id;type:varchar(128)" json:"from_id"`
	ToID       Identity  `gorm:"column:to_id;type:varchar(128);not null" json:"to_id"`
	Amount     Amount    `gorm:"column:amount;type:varchar(78);not null" json:"amount"`
	CreatedAt  time.Time `gorm:"column:createdAt" json:"createdAt"`
}

func (FundsTransfer) TableName() string {
	return "FundsTransfers"
}

func (t *FundsTransfer) BeforeCreate(tx *gorm.DB) error {
	if t.TransferID == uuid.Nil {
		t.TransferID = uuid.New()
	}
	return nil
}
