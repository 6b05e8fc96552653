package handlers

import (
	"time"

	"kelasku_app/internal/models"
)

// CreateTransactionRequest is the buyer's purchase request
type CreateTransactionRequest struct {
	CourseID       uint   `json:"course_id"`
	PromoCode      string `json:"promo_code"`
	PaymentMethod  string `json:"payment_method"`  // "gateway" or "cash"
	PaymentChannel string `json:"payment_channel"` // gateway channel code, e.g. "QRIS"
}

// RejectTransactionRequest carries the administrator's rejection reason
type RejectTransactionRequest struct {
	Reason string `json:"reason"`
}

// TransactionResponse is the API shape of a transaction
type TransactionResponse struct {
	ID             uint       `json:"id"`
	InvoiceNumber  string     `json:"invoice_number"`
	UserID         uint       `json:"user_id"`
	CourseID       uint       `json:"course_id"`
	Amount         float64    `json:"amount"`
	Discount       float64    `json:"discount"`
	AdminFee       float64    `json:"admin_fee"`
	Total          float64    `json:"total"`
	PaymentMethod  string     `json:"payment_method"`
	PaymentChannel *string    `json:"payment_channel"`
	PaymentURL     string     `json:"payment_url,omitempty"`
	Status         string     `json:"status"`
	PaidAt         *time.Time `json:"paid_at"`
	ExpiredAt      *time.Time `json:"expired_at"`
	Notes          string     `json:"notes,omitempty"`
}

func newTransactionResponse(trx *models.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:             trx.ID,
		InvoiceNumber:  trx.InvoiceNumber,
		UserID:         trx.UserID,
		CourseID:       trx.CourseID,
		Amount:         trx.Amount,
		Discount:       trx.Discount,
		AdminFee:       trx.AdminFee,
		Total:          trx.Total,
		PaymentMethod:  string(trx.PaymentMethod),
		PaymentChannel: trx.PaymentChannel,
		PaymentURL:     trx.PaymentURL,
		Status:         string(trx.Status),
		PaidAt:         trx.PaidAt,
		ExpiredAt:      trx.ExpiredAt,
		Notes:          trx.Notes,
	}
}
