package tasks

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"kelasku_app/internal/models"
	"kelasku_app/internal/services"
)

// ExpireStaleTransactionsTaskDef sweeps gateway transactions that stayed
// pending past their checkout lifetime to expired. Scheduled as a recurring
// task; the transition itself goes through the store's compare-and-set, so
// a sweep can never race a paid callback into overwriting it.
type ExpireStaleTransactionsTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *ExpireStaleTransactionsTaskDef) TaskID() string {
	return "expire_stale_transactions"
}

// HandleExecution expires pending gateway transactions older than the TTL.
// The TTL can be overridden per task via an "older_than_hours" argument.
func (t *ExpireStaleTransactionsTaskDef) HandleExecution(ctx context.Context, deps *Deps, task models.ScheduledTask) (map[string]interface{}, error) {
	ttl := deps.Cfg.TransactionTTL
	if hours, ok := task.Arguments["older_than_hours"].(float64); ok && hours > 0 {
		ttl = time.Duration(hours * float64(time.Hour))
	}

	cutoff := time.Now().Add(-ttl)
	store := services.NewGormTransactionStore(deps.DB)

	stale, err := store.FindStalePending(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	expired := 0
	for i := range stale {
		won, err := store.MarkExpired(ctx, stale[i].ID, time.Now())
		if err != nil {
			return map[string]interface{}{"expired": expired}, err
		}
		if won {
			expired++
		}
	}

	if expired > 0 {
		log.WithFields(log.Fields{
			"expired": expired,
			"cutoff":  cutoff,
		}).Info("Swept stale pending transactions")
	}

	return map[string]interface{}{
		"candidates": len(stale),
		"expired":    expired,
	}, nil
}

// ExpireStaleTransactionsTask is the singleton instance
var ExpireStaleTransactionsTask = &ExpireStaleTransactionsTaskDef{}
