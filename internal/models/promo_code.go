package models

import (
	"time"

	"gorm.io/gorm"
)

// PromoCode grants a flat discount on a transaction at creation time
type PromoCode struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Code     string  `gorm:"type:varchar(50);uniqueIndex" json:"code"`
	Discount float64 `gorm:"type:decimal(15,2)" json:"discount"`
	IsActive bool    `gorm:"default:true" json:"is_active"`

	ValidUntil *time.Time `json:"valid_until"`
}

// Usable reports whether the code can still be applied at the given time
func (p PromoCode) Usable(at time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.ValidUntil != nil && at.After(*p.ValidUntil) {
		return false
	}
	return true
}
