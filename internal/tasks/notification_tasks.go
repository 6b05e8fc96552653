package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"kelasku_app/internal/models"
	"kelasku_app/internal/services"
)

// PaymentNotificationArgs defines the arguments for a payment confirmation
// notification task
type PaymentNotificationArgs struct {
	TransactionID uint `json:"transaction_id"`
	AttemptCount  int  `json:"attempt_count"`
}

// SendPaymentNotificationTaskDef delivers a payment confirmation to the
// buyer over their preferred channel. Delivery runs in the worker, fully
// decoupled from the request that confirmed the payment; every failure is
// contained here and retried by re-scheduling.
type SendPaymentNotificationTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *SendPaymentNotificationTaskDef) TaskID() string {
	return "send_payment_notification"
}

// HandleExecution delivers the confirmation for one paid transaction
func (t *SendPaymentNotificationTaskDef) HandleExecution(ctx context.Context, deps *Deps, task models.ScheduledTask) (map[string]interface{}, error) {
	argsBytes, err := json.Marshal(task.Arguments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	var args PaymentNotificationArgs
	if err := json.Unmarshal(argsBytes, &args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}

	var trx models.Transaction
	if err := deps.DB.WithContext(ctx).Preload("User").Preload("Course").First(&trx, args.TransactionID).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %d: %w", args.TransactionID, err)
	}

	// A stale task for a transaction that never became paid is a skip, not
	// an error
	if trx.Status != models.TransactionStatusPaid {
		return map[string]interface{}{"status": "skipped", "reason": "transaction not paid"}, nil
	}

	channel := models.NotificationChannelEmail
	var pref models.UserNotifPreference
	err = deps.DB.WithContext(ctx).Where("user_id = ?", trx.UserID).First(&pref).Error
	if err == nil {
		channel = pref.Channel
	} else if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to fetch notification preference: %w", err)
	}

	logCtx := log.WithFields(log.Fields{
		"invoice": trx.InvoiceNumber,
		"user_id": trx.UserID,
		"channel": channel,
	})

	var sendErr error
	switch channel {
	case models.NotificationChannelEmail:
		sendErr = t.sendEmail(deps, &trx)
	case models.NotificationChannelWhatsapp:
		sendErr = t.sendWhatsapp(deps, &trx, pref)
	case models.NotificationChannelNone:
		logCtx.Info("Notifications disabled for user, skipping")
		return map[string]interface{}{"status": "skipped", "reason": "channel none"}, nil
	default:
		logCtx.Warnf("Unsupported notification channel %s, skipping", channel)
		return map[string]interface{}{"status": "skipped", "reason": "unsupported channel"}, nil
	}

	if sendErr == nil {
		logCtx.Info("Payment confirmation delivered")
		return map[string]interface{}{"status": "success"}, nil
	}

	logCtx.WithError(sendErr).Error("Failed to deliver payment confirmation")

	if args.AttemptCount+1 < task.MaxAttempt {
		retryArgs := args
		retryArgs.AttemptCount++

		retry, err := BuildScheduledTask(t.TaskID(), retryArgs, time.Now().Add(5*time.Minute), nil, models.ScheduledTaskTypeOneTime, task.MaxAttempt)
		if err == nil {
			if err := deps.DB.Create(retry).Error; err != nil {
				logCtx.WithError(err).Error("Failed to schedule notification retry")
			}
		}
		return map[string]interface{}{
			"status": "rescheduled",
			"error":  sendErr.Error(),
		}, nil
	}

	return map[string]interface{}{"status": "failure"}, fmt.Errorf("max attempts reached: %w", sendErr)
}

func (t *SendPaymentNotificationTaskDef) sendEmail(deps *Deps, trx *models.Transaction) error {
	emailService := services.NewEmailService(deps.Cfg.SMTP)
	subject := fmt.Sprintf("Pembayaran %s diterima", trx.InvoiceNumber)
	return emailService.SendEmail([]string{trx.User.Email}, subject, buildPaymentMessage(trx))
}

func (t *SendPaymentNotificationTaskDef) sendWhatsapp(deps *Deps, trx *models.Transaction, pref models.UserNotifPreference) error {
	wahaService := services.NewWahaService(deps.Cfg.Waha)

	var chatId string
	if pref.WhatsappTargetType == models.WhatsappTargetTypeGroup {
		chatId = pref.WhatsappGroupID
		if chatId == "" {
			return fmt.Errorf("group ID is empty")
		}
		if !strings.HasSuffix(chatId, "@g.us") {
			chatId = chatId + "@g.us"
		}
	} else {
		chatId = trx.User.Phone
		if chatId == "" {
			return fmt.Errorf("user has no phone number")
		}
	}

	return wahaService.SendMessage(chatId, buildPaymentMessage(trx))
}

// buildPaymentMessage renders the confirmation text for a paid transaction
func buildPaymentMessage(trx *models.Transaction) string {
	paidAt := ""
	if trx.PaidAt != nil {
		paidAt = trx.PaidAt.Format("02 Jan 2006 15:04")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Halo %s,\n\n", trx.User.Name)
	fmt.Fprintf(&b, "Pembayaran untuk kelas %q sudah kami terima.\n\n", trx.Course.Name)
	fmt.Fprintf(&b, "Invoice: %s\n", trx.InvoiceNumber)
	fmt.Fprintf(&b, "Total: Rp%.0f\n", trx.Total)
	if paidAt != "" {
		fmt.Fprintf(&b, "Dibayar pada: %s\n", paidAt)
	}
	b.WriteString("\nSelamat belajar!")
	return b.String()
}

// SendPaymentNotificationTask is the singleton instance
var SendPaymentNotificationTask = &SendPaymentNotificationTaskDef{}

// PaymentNotificationQueue enqueues confirmation tasks for the worker. It
// implements the lifecycle engine's PaymentNotifier.
type PaymentNotificationQueue struct {
	db *gorm.DB
}

// NewPaymentNotificationQueue creates the queue writer
func NewPaymentNotificationQueue(db *gorm.DB) *PaymentNotificationQueue {
	return &PaymentNotificationQueue{db: db}
}

// EnqueuePaymentConfirmation schedules a confirmation for immediate pickup
func (q *PaymentNotificationQueue) EnqueuePaymentConfirmation(ctx context.Context, trx *models.Transaction) error {
	task, err := BuildScheduledTask(
		SendPaymentNotificationTask.TaskID(),
		PaymentNotificationArgs{TransactionID: trx.ID},
		time.Now(),
		nil,
		models.ScheduledTaskTypeOneTime,
		3,
	)
	if err != nil {
		return err
	}
	return q.db.WithContext(ctx).Create(task).Error
}
