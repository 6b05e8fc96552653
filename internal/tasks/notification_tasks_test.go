package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kelasku_app/internal/models"
)

func TestBuildPaymentMessage(t *testing.T) {
	paidAt := time.Date(2026, 9, 1, 14, 30, 0, 0, time.Local)
	trx := &models.Transaction{
		InvoiceNumber: "INV-20260901-ABCD1234",
		Total:         100750,
		PaidAt:        &paidAt,
		User:          models.User{Name: "Budi"},
		Course:        models.Course{Name: "Belajar Go"},
	}

	msg := buildPaymentMessage(trx)

	assert.Contains(t, msg, "Halo Budi")
	assert.Contains(t, msg, `"Belajar Go"`)
	assert.Contains(t, msg, "INV-20260901-ABCD1234")
	assert.Contains(t, msg, "Rp100750")
	assert.Contains(t, msg, "01 Sep 2026 14:30")
}

func TestBuildPaymentMessageWithoutPaidAt(t *testing.T) {
	trx := &models.Transaction{
		InvoiceNumber: "INV-20260901-ABCD1234",
		Total:         150000,
		User:          models.User{Name: "Budi"},
		Course:        models.Course{Name: "Belajar Go"},
	}

	msg := buildPaymentMessage(trx)
	assert.NotContains(t, msg, "Dibayar pada")
}

func TestBuildScheduledTaskForNotification(t *testing.T) {
	task, err := BuildScheduledTask(
		SendPaymentNotificationTask.TaskID(),
		PaymentNotificationArgs{TransactionID: 42},
		time.Now(),
		nil,
		models.ScheduledTaskTypeOneTime,
		3,
	)
	require.NoError(t, err)

	assert.Equal(t, "send_payment_notification", task.TaskName)
	assert.Equal(t, models.ScheduledTaskStatusActive, task.Status)
	assert.Equal(t, models.ScheduledTaskTypeOneTime, task.TaskType)
	assert.Equal(t, 3, task.MaxAttempt)
	// json round-trip stores numbers as float64
	assert.Equal(t, float64(42), task.Arguments["transaction_id"])
}

func TestDefineTasksRegistersHandlers(t *testing.T) {
	DefineTasks()

	for _, name := range []string{"log_info", "send_payment_notification", "expire_stale_transactions"} {
		_, found := GetHandler(name)
		assert.True(t, found, "handler %s not registered", name)
	}
}
