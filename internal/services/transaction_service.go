package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kelasku_app/internal/models"
)

// PaymentNotifier enqueues a payment-confirmation message for later
// delivery. Enqueue failures are logged by the engine but never fail the
// confirming operation.
type PaymentNotifier interface {
	EnqueuePaymentConfirmation(ctx context.Context, trx *models.Transaction) error
}

// CheckoutGateway is the outbound side of the payment gateway: it issues
// checkout URLs and quotes channel admin fees at transaction-creation time
type CheckoutGateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	AdminFee(channel string) float64
}

// TransactionService is the single authority for transaction state
// transitions, whether triggered by a gateway callback or by an
// administrator. Every terminal transition is an atomic compare-and-set
// guarded on status = pending, so the pending -> {paid, expired, failed}
// DAG holds no matter which actor fires first, and only the CAS winner
// runs the activation and notification side effects.
type TransactionService struct {
	transactions TransactionStore
	enrollments  *EnrollmentService
	notifier     PaymentNotifier
	gateway      CheckoutGateway
	catalog      Catalog
}

// NewTransactionService wires the lifecycle engine
func NewTransactionService(
	transactions TransactionStore,
	enrollments *EnrollmentService,
	notifier PaymentNotifier,
	gateway CheckoutGateway,
	catalog Catalog,
) *TransactionService {
	return &TransactionService{
		transactions: transactions,
		enrollments:  enrollments,
		notifier:     notifier,
		gateway:      gateway,
		catalog:      catalog,
	}
}

// HandleCallback applies a verified, already-mapped gateway callback to the
// transaction identified by its external reference.
//
// Returns ErrTransactionNotFound for unknown references — the handler still
// acknowledges those so the gateway stops retrying a payload we can never
// match. Store failures during a paid transition propagate, so the gateway
// redelivers instead of silently dropping a confirmed payment.
func (s *TransactionService) HandleCallback(ctx context.Context, reference string, status CallbackStatus, rawPayload json.RawMessage) error {
	trx, err := s.transactions.FindByReference(ctx, reference)
	if err != nil {
		return err
	}

	logCtx := log.WithFields(log.Fields{
		"reference": reference,
		"invoice":   trx.InvoiceNumber,
		"status":    status,
	})

	// Keep the audit trail current on every delivery, duplicates included
	if err := s.transactions.SaveRawPayload(ctx, trx.ID, rawPayload); err != nil {
		logCtx.WithError(err).Warn("Failed to store callback payload snapshot")
	}
	if err := s.transactions.RecordCallback(ctx, &models.PaymentCallbackHistory{
		Gateway:   "tripay",
		Reference: reference,
		Metadata:  rawPayload,
	}); err != nil {
		logCtx.WithError(err).Warn("Failed to record callback history")
	}

	switch status {
	case CallbackStatusPaid:
		won, err := s.transactions.MarkPaid(ctx, trx.ID, time.Now())
		if err != nil {
			return fmt.Errorf("mark transaction %d paid: %w", trx.ID, err)
		}
		if !won {
			return s.handlePaidReplay(ctx, trx.ID, logCtx)
		}
		logCtx.Info("Transaction paid via gateway callback")
		return s.settle(ctx, trx)

	case CallbackStatusExpired:
		won, err := s.transactions.MarkExpired(ctx, trx.ID, time.Now())
		if err != nil {
			return fmt.Errorf("mark transaction %d expired: %w", trx.ID, err)
		}
		if won {
			logCtx.Info("Transaction expired via gateway callback")
		} else {
			logCtx.Info("Ignoring expired callback for non-pending transaction")
		}
		return nil

	case CallbackStatusFailed:
		won, err := s.transactions.MarkFailed(ctx, trx.ID, "")
		if err != nil {
			return fmt.Errorf("mark transaction %d failed: %w", trx.ID, err)
		}
		if won {
			logCtx.Info("Transaction failed via gateway callback")
		} else {
			logCtx.Info("Ignoring failed callback for non-pending transaction")
		}
		return nil

	default:
		logCtx.Info("Ignoring callback with unmapped gateway status")
		return nil
	}
}

// handlePaidReplay runs when a PAID callback lost the CAS. For a
// transaction that is already paid, the enrollment upsert is re-run: a
// gateway retry after an earlier activation failure then converges on an
// enrollment instead of a permanent no-op. No notification is re-sent —
// only the CAS winner notifies.
func (s *TransactionService) handlePaidReplay(ctx context.Context, id uint, logCtx *log.Entry) error {
	current, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != models.TransactionStatusPaid {
		logCtx.Warn("Ignoring paid callback for transaction in another terminal state")
		return nil
	}
	logCtx.Info("Duplicate paid callback, re-running enrollment upsert")
	return s.enrollments.Activate(ctx, current.UserID, current.CourseID)
}

// settle runs the first-paid-transition side effects, after the paid status
// is already durable: activation must succeed (or propagate so the caller
// retries), notification is enqueued best-effort.
func (s *TransactionService) settle(ctx context.Context, trx *models.Transaction) error {
	if err := s.enrollments.Activate(ctx, trx.UserID, trx.CourseID); err != nil {
		return err
	}

	if err := s.notifier.EnqueuePaymentConfirmation(ctx, trx); err != nil {
		log.WithError(err).WithField("invoice", trx.InvoiceNumber).
			Error("Failed to enqueue payment confirmation, continuing")
	}

	return nil
}

// ApproveCash confirms a cash transaction on behalf of an administrator.
// Only pending cash transactions qualify; gateway transactions are
// confirmed exclusively through the webhook path.
func (s *TransactionService) ApproveCash(ctx context.Context, id uint) (*models.Transaction, error) {
	trx, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if trx.PaymentMethod != models.PaymentMethodCash {
		return nil, ErrWrongPaymentMethod
	}

	won, err := s.transactions.MarkPaid(ctx, trx.ID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("approve transaction %d: %w", trx.ID, err)
	}
	if !won {
		return nil, ErrAlreadyProcessed
	}

	log.WithField("invoice", trx.InvoiceNumber).Info("Cash transaction approved")

	if err := s.settle(ctx, trx); err != nil {
		return nil, err
	}

	return s.transactions.FindByID(ctx, trx.ID)
}

// RejectCash fails a pending cash transaction, recording the
// administrator's reason in the notes. No activation side effect.
func (s *TransactionService) RejectCash(ctx context.Context, id uint, reason string) (*models.Transaction, error) {
	trx, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if trx.PaymentMethod != models.PaymentMethodCash {
		return nil, ErrWrongPaymentMethod
	}

	won, err := s.transactions.MarkFailed(ctx, trx.ID, reason)
	if err != nil {
		return nil, fmt.Errorf("reject transaction %d: %w", trx.ID, err)
	}
	if !won {
		return nil, ErrAlreadyProcessed
	}

	log.WithFields(log.Fields{
		"invoice": trx.InvoiceNumber,
		"reason":  reason,
	}).Info("Cash transaction rejected")

	return s.transactions.FindByID(ctx, trx.ID)
}

// CreateTransactionInput describes a new purchase attempt
type CreateTransactionInput struct {
	CourseID       uint
	PromoCode      string
	PaymentMethod  models.PaymentMethod
	PaymentChannel string
}

// CreateTransaction prices a purchase and persists it as pending. Gateway
// purchases get a checkout created at the gateway, which supplies the
// external reference and the payment URL; cash purchases carry no admin
// fee and no channel.
func (s *TransactionService) CreateTransaction(ctx context.Context, buyer *models.User, input CreateTransactionInput) (*models.Transaction, error) {
	course, err := s.catalog.Course(ctx, input.CourseID)
	if err != nil {
		return nil, err
	}

	trx := &models.Transaction{
		InvoiceNumber: newInvoiceNumber(),
		UserID:        buyer.ID,
		CourseID:      course.ID,
		Amount:        course.Price,
		PaymentMethod: input.PaymentMethod,
		Status:        models.TransactionStatusPending,
	}

	if input.PromoCode != "" {
		promo, err := s.catalog.PromoCode(ctx, input.PromoCode)
		if err != nil {
			return nil, err
		}
		trx.PromoCodeID = &promo.ID
		trx.Discount = promo.Discount
		if trx.Discount > trx.Amount {
			trx.Discount = trx.Amount
		}
	}

	if input.PaymentMethod == models.PaymentMethodGateway {
		trx.AdminFee = s.gateway.AdminFee(input.PaymentChannel)
		channel := input.PaymentChannel
		trx.PaymentChannel = &channel
	}

	trx.Total = trx.Amount - trx.Discount + trx.AdminFee

	if input.PaymentMethod == models.PaymentMethodGateway {
		checkout, err := s.gateway.CreateCheckout(ctx, CheckoutRequest{
			MerchantRef:   trx.InvoiceNumber,
			Channel:       input.PaymentChannel,
			Amount:        trx.Total,
			CustomerName:  buyer.Name,
			CustomerEmail: buyer.Email,
			ItemName:      course.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("create gateway checkout: %w", err)
		}
		trx.Reference = &checkout.Reference
		trx.PaymentURL = checkout.CheckoutURL
	}

	if err := s.transactions.Create(ctx, trx); err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"invoice": trx.InvoiceNumber,
		"method":  trx.PaymentMethod,
		"total":   trx.Total,
	}).Info("Transaction created")

	return trx, nil
}

func newInvoiceNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", time.Now().Format("20060102"), suffix)
}
