package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentMethod distinguishes how a transaction gets settled
type PaymentMethod string

const (
	PaymentMethodGateway PaymentMethod = "gateway"
	PaymentMethodCash    PaymentMethod = "cash"
)

// TransactionStatus represents the lifecycle state of a transaction.
// "pending" is the only initial state; the other three are terminal.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusPaid    TransactionStatus = "paid"
	TransactionStatusExpired TransactionStatus = "expired"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// IsTerminal reports whether no further transition is permitted from s
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusPaid || s == TransactionStatusExpired || s == TransactionStatusFailed
}

// Transaction records one purchase attempt for a course and its financial terms
type Transaction struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	InvoiceNumber string `gorm:"type:varchar(100);uniqueIndex" json:"invoice_number"`

	UserID      uint  `gorm:"index" json:"user_id"`
	CourseID    uint  `gorm:"index" json:"course_id"`
	PromoCodeID *uint `json:"promo_code_id,omitempty"`

	// Total = Amount - Discount + AdminFee. AdminFee is 0 for cash.
	Amount   float64 `gorm:"type:decimal(15,2)" json:"amount"`
	Discount float64 `gorm:"type:decimal(15,2)" json:"discount"`
	AdminFee float64 `gorm:"type:decimal(15,2)" json:"admin_fee"`
	Total    float64 `gorm:"type:decimal(15,2)" json:"total"`

	PaymentMethod  PaymentMethod `gorm:"type:varchar(20);not null" json:"payment_method"`
	PaymentChannel *string       `gorm:"type:varchar(100)" json:"payment_channel"` // e.g. "QRIS", "BCA VA"; nil for cash
	Reference      *string       `gorm:"type:varchar(100);uniqueIndex" json:"reference"`
	PaymentURL     string        `gorm:"type:text" json:"payment_url"`

	Status TransactionStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`

	// Set exactly once, on entry to the matching terminal state
	PaidAt    *time.Time `json:"paid_at"`
	ExpiredAt *time.Time `json:"expired_at"`

	// RawPayload holds the last gateway callback body verbatim, overwritten
	// on every delivery regardless of whether the status changed
	RawPayload json.RawMessage `gorm:"type:jsonb" json:"raw_payload,omitempty"`

	Notes string `gorm:"type:text" json:"notes"`

	// Relationships
	User      User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Course    Course     `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	PromoCode *PromoCode `gorm:"foreignKey:PromoCodeID" json:"promo_code,omitempty"`
}
