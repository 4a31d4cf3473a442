package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Listing event types, one per committed transition.
const (
	EventListed    = "LISTED"
	EventDeposited = "DEPOSITED"
	EventInspected = "INSPECTED"
	EventApproved  = "APPROVED"
	EventFinalized = "FINALIZED"
	EventCancelled = "CANCELLED"
)

type ListingEvent struct {
	EventID   uuid.UUID      `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	AssetID   uint64         `gorm:"column:asset_id;not null;index" json:"asset_id"`
	Seq       int64          `gorm:"column:seq;not null" json:"seq"`
	EventType string         `gorm:"column:event_type;type:varchar(30);not null" json:"event_type"`
	Actor     Identity       `gorm:"column:actor;type:varchar(128);not null" json:"actor"`
	EventData datatypes.JSON `gorm:"column:event_data;not null" json:"event_data"`
	CreatedAt time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (ListingEvent) TableName() string {
	return "ListingEvents"
}

func (le *ListingEvent) BeforeCreate(tx *gorm.DB) error {
	if le.EventID == uuid.Nil {
		le.EventID = uuid.New()
	}
	return nil
}
