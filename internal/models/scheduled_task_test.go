package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDueOneTime(t *testing.T) {
	due := time.Now().Add(-time.Hour)
	task := ScheduledTask{TaskType: ScheduledTaskTypeOneTime, Due: due}

	assert.Equal(t, due, task.NextDue())
}

func TestNextDueRecurring(t *testing.T) {
	rule := "FREQ=DAILY"
	due := time.Now().Add(-time.Hour)
	task := ScheduledTask{
		TaskType:          ScheduledTaskTypeRecurring,
		Due:               due,
		RecurringInterval: &rule,
	}

	next := task.NextDue()
	assert.True(t, next.After(due), "next due %s should be after %s", next, due)
	assert.True(t, next.After(time.Now().Add(-time.Minute)), "next due should not be in the past")
}

func TestNextDueInvalidRule(t *testing.T) {
	rule := "not an rrule"
	due := time.Now().Add(-time.Hour)
	task := ScheduledTask{
		TaskType:          ScheduledTaskTypeRecurring,
		Due:               due,
		RecurringInterval: &rule,
	}

	assert.Equal(t, due, task.NextDue())
}

func TestTransactionStatusIsTerminal(t *testing.T) {
	assert.False(t, TransactionStatusPending.IsTerminal())
	assert.True(t, TransactionStatusPaid.IsTerminal())
	assert.True(t, TransactionStatusExpired.IsTerminal())
	assert.True(t, TransactionStatusFailed.IsTerminal())
}

func TestPromoCodeUsable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, PromoCode{IsActive: true}.Usable(now))
	assert.False(t, PromoCode{IsActive: false}.Usable(now))
	assert.True(t, PromoCode{IsActive: true, ValidUntil: &future}.Usable(now))
	assert.False(t, PromoCode{IsActive: true, ValidUntil: &past}.Usable(now))
}
