package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"ticketshop/src/lib"
	"ticketshop/src/models"
	"ticketshop/src/models/scopes"
	"ticketshop/src/types"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker/v2"
	"gorm.io/gorm"
)

var errNoGateway = errors.New("no payment gateway configured")

// PaymentCoordinator wraps the payment gateway and turns its status reports
// into order transitions. Gateway calls are bounded by a timeout and guarded
// by a circuit breaker; every failure surfaces as *PaymentError.
type PaymentCoordinator struct {
	db       *gorm.DB
	clock    clockwork.Clock
	locks    *lib.KeyedMutex
	gateway  PaymentGateway
	cache    ReferenceCache
	breaker  *gobreaker.CircuitBreaker[any]
	timeout  time.Duration
	interval time.Duration
	currency string
	orders   *OrderService
}

func newPaymentCoordinator(db *gorm.DB, clock clockwork.Clock, locks *lib.KeyedMutex, gateway PaymentGateway, cache ReferenceCache, s Settings) *PaymentCoordinator {
	if gateway == nil {
		gateway = unavailableGateway{}
	}
	timeout := s.PaymentTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PaymentCoordinator{
		db:       db,
		clock:    clock,
		locks:    locks,
		gateway:  gateway,
		cache:    cache,
		timeout:  timeout,
		interval: s.SweepInterval,
		currency: s.Currency,
		breaker: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        "payment-gateway",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("[payments] Circuit breaker %s: %s -> %s\n", name, from, to)
			},
		}),
	}
}

// call runs fn against the gateway with the configured timeout.
func call[T any](p *PaymentCoordinator, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	started := time.Now()
	result, err := p.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return fn(ctx)
	})
	lib.RecordGatewayRequest(op, started, err)
	if err != nil {
		log.Printf("[payments] Gateway %s failed: %s\n", op, err.Error())
		return zero, &PaymentError{Op: op, Cause: err}
	}
	return result.(T), nil
}

type registration struct {
	reference string
	url       string
}

func (p *PaymentCoordinator) register(ctx context.Context, order *models.Order) (string, string, error) {
	reg, err := call(p, ctx, "register", func(ctx context.Context) (registration, error) {
		ref, url, err := p.gateway.RegisterOrder(ctx, order)
		if err == nil && ref == "" {
			err = errors.New("gateway returned an empty reference")
		}
		return registration{reference: ref, url: url}, err
	})
	if err != nil {
		return "", "", err
	}
	return reg.reference, reg.url, nil
}

func (p *PaymentCoordinator) paymentURL(ctx context.Context, reference string) (string, error) {
	return call(p, ctx, "payment_url", func(ctx context.Context) (string, error) {
		return p.gateway.GetPaymentURL(ctx, reference)
	})
}

func (p *PaymentCoordinator) poll(ctx context.Context, reference string) (types.GatewayStatus, error) {
	return call(p, ctx, "poll", func(ctx context.Context) (types.GatewayStatus, error) {
		return p.gateway.PollStatus(ctx, reference)
	})
}

func (p *PaymentCoordinator) expire(ctx context.Context, reference string) error {
	_, err := call(p, ctx, "expire", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.gateway.ExpirePayment(ctx, reference)
	})
	return err
}

// ReconcileByReference applies a status reported for a payment reference,
// typically from a webhook.
func (p *PaymentCoordinator) ReconcileByReference(ctx context.Context, reference string, status types.GatewayStatus) (*models.Order, error) {
	orderID, err := p.resolveReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return p.orders.Reconcile(ctx, orderID, status)
}

func (p *PaymentCoordinator) resolveReference(ctx context.Context, reference string) (uint, error) {
	if reference == "" {
		return 0, ErrOrderNotFound
	}
	id, ok, err := p.cache.Lookup(ctx, reference)
	if err != nil {
		log.Printf("[payments] Reference cache lookup failed for %s: %s\n", reference, err.Error())
	}
	if ok {
		return id, nil
	}
	var order models.Order
	if err := p.db.WithContext(ctx).Select("id").Where("reference = ?", reference).First(&order).Error; err != nil {
		return 0, notFound(err, fmt.Errorf("reference %s: %w", reference, ErrOrderNotFound))
	}
	return order.ID, nil
}

// UpdateOrderStatusByOrderID polls the gateway for a pending order and
// reconciles the answer. Orders that are not pending are returned unchanged.
func (p *PaymentCoordinator) UpdateOrderStatusByOrderID(ctx context.Context, orderID uint) (*models.Order, error) {
	unlock := p.locks.Lock(orderKey(orderID))
	defer unlock()
	return p.pollAndReconcileLocked(ctx, orderID)
}

func (p *PaymentCoordinator) pollAndReconcileLocked(ctx context.Context, orderID uint) (*models.Order, error) {
	order, err := p.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != types.ORDER_PENDING || order.Reference == nil {
		return order, nil
	}
	status, err := p.poll(ctx, *order.Reference)
	if err != nil {
		return nil, err
	}
	now := p.clock.Now()
	if err := p.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Update("last_polled_at", now).Error; err != nil {
		log.Printf("[payments] Could not record poll of order %d: %s\n", orderID, err.Error())
	}
	return p.orders.reconcileLocked(ctx, orderID, status)
}

// PollPending polls pending orders not polled within the last interval, so a
// lost webhook does not leave an order pending until it expires. Failures are
// isolated per order. It returns the number of orders polled.
func (p *PaymentCoordinator) PollPending(ctx context.Context) int {
	cutoff := p.clock.Now().Add(-p.interval)
	var ids []uint
	err := p.db.WithContext(ctx).
		Model(&models.Order{}).
		Scopes(scopes.WithPendingStatus, scopes.NotPolledSince(cutoff)).
		Order("id").
		Pluck("id", &ids).
		Error
	if err != nil {
		log.Printf("[payments] Error listing pending orders: %s\n", err.Error())
		return 0
	}
	polled := 0
	for _, id := range ids {
		if _, err := p.UpdateOrderStatusByOrderID(ctx, id); err != nil {
			log.Printf("[payments] Poll of order %d failed: %s\n", id, err.Error())
			continue
		}
		polled++
	}
	return polled
}

type unavailableGateway struct{}

func (unavailableGateway) RegisterOrder(context.Context, *models.Order) (string, string, error) {
	return "", "", errNoGateway
}

func (unavailableGateway) GetPaymentURL(context.Context, string) (string, error) {
	return "", errNoGateway
}

func (unavailableGateway) PollStatus(context.Context, string) (types.GatewayStatus, error) {
	return "", errNoGateway
}

func (unavailableGateway) ExpirePayment(context.Context, string) error {
	return errNoGateway
}
