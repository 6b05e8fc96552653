package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentCallbackHistory keeps one row per received gateway callback,
// verbatim, for audit and debugging. It is written even when the callback
// turns out to be a duplicate or a no-op.
type PaymentCallbackHistory struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Gateway   string          `gorm:"type:varchar(50);not null" json:"gateway"`
	Reference string          `gorm:"type:varchar(100);index" json:"reference"`
	Metadata  json.RawMessage `gorm:"type:jsonb" json:"metadata"`
}
