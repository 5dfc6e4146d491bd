package services

import (
	"context"
	"fmt"
	"log"
	"ticketshop/src/lib"
	"ticketshop/src/models"
	"ticketshop/src/models/scopes"
	"ticketshop/src/types"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// ExpiryScheduler removes abandoned orders. Orders that never reached the
// gateway are deleted with their tickets; pending ones are expired and kept
// once the gateway confirms they are unpaid and closes their payment.
type ExpiryScheduler struct {
	db        *gorm.DB
	clock     clockwork.Clock
	orders    *OrderService
	payments  *PaymentCoordinator
	stayAlive time.Duration
	interval  time.Duration
}

type SweepResult struct {
	Deleted int
	Expired int
	Paid    int
	Failed  int
}

// Register adds the periodic sweep to the scheduler. Each run sweeps stale
// orders first, then polls the remaining pending ones.
func (e *ExpiryScheduler) Register(sched gocron.Scheduler) (string, error) {
	return lib.CreateIntervalJob(sched, "expire-orders", e.interval, func() {
		ctx := context.Background()
		res := e.Sweep(ctx)
		if res.Deleted+res.Expired+res.Paid+res.Failed > 0 {
			log.Printf("[expiry] Sweep done: deleted=%d expired=%d paid=%d failed=%d\n", res.Deleted, res.Expired, res.Paid, res.Failed)
		}
		e.payments.PollPending(ctx)
	})
}

// Sweep handles every stale order on its own; a failing order is logged and
// skipped.
func (e *ExpiryScheduler) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	cutoff := e.clock.Now().Add(-e.stayAlive)
	var ids []uint
	err := e.db.WithContext(ctx).
		Model(&models.Order{}).
		Scopes(
			scopes.WithStatus(types.ORDER_ANONYMOUS, types.ORDER_ASSIGNED, types.ORDER_PENDING),
			scopes.CreatedBefore(cutoff),
		).
		Order("id").
		Pluck("id", &ids).
		Error
	if err != nil {
		log.Printf("[expiry] Error listing stale orders: %s\n", err.Error())
		return res
	}
	for _, id := range ids {
		outcome, err := e.expireOrder(ctx, id, cutoff)
		if err != nil {
			log.Printf("[expiry] Order %d: %s\n", id, err.Error())
			lib.RecordSweptOrder("failed")
			res.Failed++
			continue
		}
		lib.RecordSweptOrder(outcome)
		switch outcome {
		case "deleted":
			res.Deleted++
		case "expired":
			res.Expired++
		case "paid":
			res.Paid++
		}
	}
	return res
}

func (e *ExpiryScheduler) expireOrder(ctx context.Context, id uint, cutoff time.Time) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	unlock := e.orders.locks.Lock(orderKey(id))
	defer unlock()

	order, err := e.orders.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !order.CreatedAt.Before(cutoff) {
		return "skipped", nil
	}
	switch order.Status {
	case types.ORDER_ANONYMOUS, types.ORDER_ASSIGNED:
		if err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return deleteOrder(tx, order)
		}); err != nil {
			return "", err
		}
		log.Printf("[expiry] Deleted abandoned order %d (%s)\n", id, order.Status)
		return "deleted", nil
	case types.ORDER_PENDING:
		// an unreachable gateway leaves the order pending until the next sweep
		if order.Reference != nil {
			status, err := e.payments.poll(ctx, *order.Reference)
			if err != nil {
				return "", fmt.Errorf("polling %s: %w", *order.Reference, err)
			}
			switch status {
			case types.GATEWAY_PAID:
				if _, err := e.orders.reconcileLocked(ctx, id, types.GATEWAY_PAID); err != nil {
					return "", err
				}
				return "paid", nil
			case types.GATEWAY_PENDING:
				if err := e.payments.expire(ctx, *order.Reference); err != nil {
					return "", fmt.Errorf("expiring %s: %w", *order.Reference, err)
				}
			}
		}
		if _, err := e.orders.reconcileLocked(ctx, id, types.GATEWAY_EXPIRED); err != nil {
			return "", err
		}
		log.Printf("[expiry] Expired pending order %d\n", id)
		return "expired", nil
	}
	return "skipped", nil
}
