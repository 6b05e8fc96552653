package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"kelasku_app/internal/config"
)

// CallbackStatus is the engine's internal status vocabulary for gateway
// callbacks. Unknown must stay a safe no-op in the engine.
type CallbackStatus string

const (
	CallbackStatusPaid    CallbackStatus = "PAID"
	CallbackStatusExpired CallbackStatus = "EXPIRED"
	CallbackStatusFailed  CallbackStatus = "FAILED"
	CallbackStatusUnknown CallbackStatus = "UNKNOWN"
)

// MapStatus translates the gateway's own status strings into the engine's
// vocabulary. Anything unrecognized (including UNPAID and REFUND) maps to
// Unknown so the engine ignores it instead of erroring.
func MapStatus(gatewayStatus string) CallbackStatus {
	switch strings.ToUpper(strings.TrimSpace(gatewayStatus)) {
	case "PAID":
		return CallbackStatusPaid
	case "EXPIRED":
		return CallbackStatusExpired
	case "FAILED":
		return CallbackStatusFailed
	default:
		return CallbackStatusUnknown
	}
}

// CallbackPayload is the gateway's payment_status callback body
type CallbackPayload struct {
	Reference     string  `json:"reference"`
	MerchantRef   string  `json:"merchant_ref"`
	PaymentMethod string  `json:"payment_method"`
	TotalAmount   float64 `json:"total_amount"`
	FeeMerchant   float64 `json:"fee_merchant"`
	Status        string  `json:"status"`
	PaidAt        int64   `json:"paid_at"`
}

// CheckoutRequest describes a new checkout to create at the gateway
type CheckoutRequest struct {
	MerchantRef   string
	Channel       string
	Amount        float64
	CustomerName  string
	CustomerEmail string
	ItemName      string
}

// CheckoutResult is the gateway's side of a created checkout
type CheckoutResult struct {
	Reference   string
	CheckoutURL string
	ExpiredAt   time.Time
}

// TripayClient talks to the Tripay closed API and verifies its callbacks.
// The config is injected so tests can run against a different secret.
type TripayClient struct {
	cfg    config.TripayConfig
	client *resty.Client
}

// NewTripayClient creates a gateway client from explicit configuration
func NewTripayClient(cfg config.TripayConfig) *TripayClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Authorization", "Bearer "+cfg.APIKey)

	return &TripayClient{cfg: cfg, client: client}
}

// VerifyCallback recomputes the HMAC-SHA256 of the raw, unparsed callback
// body with the merchant private key and compares it to the signature
// header. This runs before any deserialization; a missing header, non-hex
// signature, or mismatch all reject.
func (c *TripayClient) VerifyCallback(signature string, rawBody []byte) bool {
	if signature == "" {
		return false
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.cfg.PrivateKey))
	mac.Write(rawBody)

	// hmac.Equal is constant-time
	return hmac.Equal(provided, mac.Sum(nil))
}

// checkoutSignature signs a checkout creation request:
// HMAC-SHA256(merchant_code + merchant_ref + amount)
func (c *TripayClient) checkoutSignature(merchantRef string, amount int64) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.PrivateKey))
	fmt.Fprintf(mac, "%s%s%d", c.cfg.MerchantCode, merchantRef, amount)
	return hex.EncodeToString(mac.Sum(nil))
}

type checkoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Reference   string `json:"reference"`
		CheckoutURL string `json:"checkout_url"`
		ExpiredTime int64  `json:"expired_time"`
	} `json:"data"`
}

// CreateCheckout creates a transaction at the gateway and returns its
// reference and the checkout URL the buyer is redirected to
func (c *TripayClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	amount := int64(req.Amount)

	body := map[string]interface{}{
		"method":         req.Channel,
		"merchant_ref":   req.MerchantRef,
		"amount":         amount,
		"customer_name":  req.CustomerName,
		"customer_email": req.CustomerEmail,
		"order_items": []map[string]interface{}{
			{"name": req.ItemName, "price": amount, "quantity": 1},
		},
		"callback_url": c.cfg.CallbackURL,
		"return_url":   c.cfg.ReturnURL,
		"signature":    c.checkoutSignature(req.MerchantRef, amount),
	}

	var result checkoutResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/transaction/create")
	if err != nil {
		return nil, fmt.Errorf("tripay create transaction: %w", err)
	}
	if resp.IsError() || !result.Success {
		msg := result.Message
		if msg == "" {
			msg = resp.Status()
		}
		return nil, fmt.Errorf("tripay create transaction rejected: %s", msg)
	}

	return &CheckoutResult{
		Reference:   result.Data.Reference,
		CheckoutURL: result.Data.CheckoutURL,
		ExpiredAt:   time.Unix(result.Data.ExpiredTime, 0),
	}, nil
}

// channelFees is the flat merchant admin fee per payment channel code.
// Unlisted channels fall back to the default.
var channelFees = map[string]float64{
	"QRIS":      750,
	"BCAVA":     5500,
	"BRIVA":     4250,
	"BNIVA":     4250,
	"MANDIRIVA": 4250,
	"OVO":       2500,
	"DANA":      2500,
}

const defaultChannelFee = 2500

// AdminFee returns the admin fee charged for a gateway payment channel
func (c *TripayClient) AdminFee(channel string) float64 {
	if fee, ok := channelFees[strings.ToUpper(channel)]; ok {
		return fee
	}
	return defaultChannelFee
}

// DecodeCallback parses a verified callback body. Call only after
// VerifyCallback has accepted the raw bytes.
func DecodeCallback(rawBody []byte) (*CallbackPayload, error) {
	var payload CallbackPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("malformed callback body: %w", err)
	}
	return &payload, nil
}
