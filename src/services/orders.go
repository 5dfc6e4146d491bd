package services

import (
	"context"
	"fmt"
	"log"
	"ticketshop/src/lib"
	"ticketshop/src/models"
	"ticketshop/src/models/scopes"
	"ticketshop/src/types"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// OrderService owns the order state machine. Every mutation of an order runs
// under that order's lock.
type OrderService struct {
	db         *gorm.DB
	clock      clockwork.Clock
	locks      *lib.KeyedMutex
	allocator  *TicketAllocator
	payments   *PaymentCoordinator
	users      UserDirectory
	notify     *notifications
	maxTickets int
	appHost    string
}

func (s *OrderService) Get(ctx context.Context, id uint) (*models.Order, error) {
	return loadOrder(s.db.WithContext(ctx), id)
}

// ListForUser returns the orders owned by the user, newest first.
func (s *OrderService) ListForUser(ctx context.Context, userID uint) ([]models.Order, error) {
	var orders []models.Order
	err := preloadTickets(s.db.WithContext(ctx)).
		Scopes(scopes.OwnedBy(userID)).
		Order("created_at desc, id desc").
		Find(&orders).
		Error
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].ComputeAmount()
	}
	return orders, nil
}

// Create opens an anonymous order holding one ticket of the given type.
func (s *OrderService) Create(ctx context.Context, typeName string, options []string) (*models.Order, error) {
	return s.create(ctx, typeName, options, AllocatorOptions{})
}

// CreateOverride is Create for operators: the sale window is ignored.
func (s *OrderService) CreateOverride(ctx context.Context, typeName string, options []string) (*models.Order, error) {
	return s.create(ctx, typeName, options, AllocatorOptions{Override: true})
}

func (s *OrderService) create(ctx context.Context, typeName string, options []string, opts AllocatorOptions) (*models.Order, error) {
	var orderID uint
	_, err := s.allocator.allocate(ctx, typeName, options, opts, func(tx *gorm.DB, ticket *models.Ticket) error {
		order := &models.Order{Status: types.ORDER_ANONYMOUS}
		order.CreatedAt = ticket.CreatedAt
		order.UpdatedAt = ticket.CreatedAt
		if err := tx.Omit("Tickets").Create(order).Error; err != nil {
			return err
		}
		ticket.OrderID = &order.ID
		orderID = order.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	lib.RecordOrderTransition("", string(types.ORDER_ANONYMOUS))
	log.Printf("[orders] Created order %d with a %s ticket\n", orderID, typeName)
	return s.Get(ctx, orderID)
}

// AddTicketToOrder allocates one more ticket into a mutable order. Tickets
// added to an assigned order belong to its owner but stay invalid.
func (s *OrderService) AddTicketToOrder(ctx context.Context, orderID uint, typeName string, options []string) (*models.Order, error) {
	unlock := s.locks.Lock(orderKey(orderID))
	defer unlock()

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.Mutable() {
		return nil, fmt.Errorf("order %d is %s: %w", orderID, order.Status, ErrImmutableOrder)
	}
	_, err = s.allocator.allocate(ctx, typeName, options, AllocatorOptions{}, func(tx *gorm.DB, ticket *models.Ticket) error {
		var current models.Order
		if err := tx.First(&current, orderID).Error; err != nil {
			return notFound(err, ErrOrderNotFound)
		}
		if !current.Status.Mutable() {
			return fmt.Errorf("order %d is %s: %w", orderID, current.Status, ErrImmutableOrder)
		}
		var count int64
		if err := tx.Model(&models.Ticket{}).Where("order_id = ?", orderID).Count(&count).Error; err != nil {
			return err
		}
		if int(count)+1 > s.maxTickets {
			return fmt.Errorf("order %d holds %d tickets: %w", orderID, count, ErrOrderLimitExceeded)
		}
		ticket.OrderID = &orderID
		ticket.Owner = current.Owner
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID)
}

// RemoveTicketFromOrder deletes a ticket of a mutable order, freeing its
// capacity.
func (s *OrderService) RemoveTicketFromOrder(ctx context.Context, orderID, ticketID uint) (*models.Order, error) {
	unlock := s.locks.Lock(orderKey(orderID))
	defer unlock()

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.HasTicket(ticketID) {
		return nil, fmt.Errorf("ticket %d in order %d: %w", ticketID, orderID, ErrTicketNotFound)
	}
	if !order.Status.Mutable() {
		return nil, fmt.Errorf("order %d is %s: %w", orderID, order.Status, ErrImmutableOrder)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteTickets(tx, []uint{ticketID})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID)
}

// AssignOrderToUser gives an anonymous order and its tickets an owner. An
// order is assigned at most once.
func (s *OrderService) AssignOrderToUser(ctx context.Context, orderID uint, email string) (*models.Order, error) {
	unlock := s.locks.Lock(orderKey(orderID))
	defer unlock()

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != types.ORDER_ANONYMOUS {
		return nil, fmt.Errorf("order %d is %s: %w", orderID, order.Status, ErrImmutableOrder)
	}
	user, err := s.users.Resolve(ctx, email)
	if err != nil {
		return nil, err
	}
	owner := types.UserOwner(user.ID)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := transition(tx, orderID, types.ORDER_ANONYMOUS, map[string]any{
			"owner_id": owner,
			"status":   types.ORDER_ASSIGNED,
		}); err != nil {
			return err
		}
		return tx.Model(&models.Ticket{}).
			Where("order_id = ?", orderID).
			Update("owner_id", owner).
			Error
	})
	if err != nil {
		return nil, err
	}
	lib.RecordOrderTransition(string(types.ORDER_ANONYMOUS), string(types.ORDER_ASSIGNED))
	log.Printf("[orders] Order %d assigned to user %d\n", orderID, user.ID)
	return s.Get(ctx, orderID)
}

// RequestPayment checks out an assigned order. A zero amount settles the order
// at once without contacting the gateway and returns the confirmation URL;
// otherwise the order is registered with the gateway, moves to PENDING and the
// payment URL is returned. A failing gateway leaves the order ASSIGNED.
func (s *OrderService) RequestPayment(ctx context.Context, orderID uint) (string, error) {
	unlock := s.locks.Lock(orderKey(orderID))
	defer unlock()

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if !order.Owner.Present() {
		return "", fmt.Errorf("order %d: %w", orderID, ErrUnassignedOrder)
	}
	if len(order.Tickets) == 0 {
		return "", fmt.Errorf("order %d: %w", orderID, ErrEmptyOrder)
	}
	if order.Status != types.ORDER_ASSIGNED {
		return "", fmt.Errorf("order %d is %s: %w", orderID, order.Status, ErrImmutableOrder)
	}

	if order.Amount.IsZero() {
		return s.settleFree(ctx, order)
	}

	reference, paymentURL, err := s.payments.register(ctx, order)
	if err != nil {
		log.Printf("[orders] Payment registration for order %d failed: %s\n", orderID, err.Error())
		return "", err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := transition(tx, orderID, types.ORDER_ASSIGNED, map[string]any{
			"status":      types.ORDER_PENDING,
			"reference":   reference,
			"payment_url": paymentURL,
		}); err != nil {
			return err
		}
		return tx.Create(&models.PaymentTransaction{
			OrderID:     orderID,
			ReferenceID: reference,
			Amount:      order.Amount,
			Currency:    s.payments.currency,
			SourceName:  "CheckoutSession",
			Status:      types.TRANSACTION_PENDING,
		}).Error
	})
	if err != nil {
		return "", err
	}
	if err := s.payments.cache.Remember(ctx, reference, orderID); err != nil {
		log.Printf("[orders] Could not cache reference %s: %s\n", reference, err.Error())
	}
	lib.RecordOrderTransition(string(types.ORDER_ASSIGNED), string(types.ORDER_PENDING))
	log.Printf("[orders] Order %d pending payment %s\n", orderID, reference)
	return paymentURL, nil
}

func (s *OrderService) settleFree(ctx context.Context, order *models.Order) (string, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := transition(tx, order.ID, types.ORDER_ASSIGNED, map[string]any{
			"status": types.ORDER_SETTLED_FREE,
		}); err != nil {
			return err
		}
		return tx.Model(&models.Ticket{}).
			Where("order_id = ?", order.ID).
			Update("valid", true).
			Error
	})
	if err != nil {
		return "", err
	}
	lib.RecordOrderTransition(string(types.ORDER_ASSIGNED), string(types.ORDER_SETTLED_FREE))
	log.Printf("[orders] Order %d settled without payment\n", order.ID)
	if settled, err := s.Get(ctx, order.ID); err == nil {
		s.notify.orderConfirmed(settled)
	}
	return s.confirmationURL(order.ID), nil
}

func (s *OrderService) confirmationURL(orderID uint) string {
	return fmt.Sprintf("%s/orders/%d/confirmation", s.appHost, orderID)
}

// GetPaymentURL returns the gateway URL of a pending order.
func (s *OrderService) GetPaymentURL(ctx context.Context, orderID uint) (string, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status != types.ORDER_PENDING || order.Reference == nil {
		return "", fmt.Errorf("order %d is %s: %w", orderID, order.Status, ErrImmutableOrder)
	}
	return s.payments.paymentURL(ctx, *order.Reference)
}

// Reconcile applies a gateway status to the order.
func (s *OrderService) Reconcile(ctx context.Context, orderID uint, status types.GatewayStatus) (*models.Order, error) {
	unlock := s.locks.Lock(orderKey(orderID))
	defer unlock()
	return s.reconcileLocked(ctx, orderID, status)
}

// reconcileLocked requires the order lock. Replaying the status the order
// already has is a no-op; a pending gateway status changes nothing.
func (s *OrderService) reconcileLocked(ctx context.Context, orderID uint, status types.GatewayStatus) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	target, ok := reconcileTarget(status)
	if !ok || order.Status == target {
		return order, nil
	}
	if target == types.ORDER_PAID && order.Status.Terminal() && !order.Status.Settled() {
		if err := s.recordLatePayment(ctx, order); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("order %d is %s, gateway reports %s: %w", orderID, order.Status, status, ErrImmutableOrder)
	}
	if order.Status != types.ORDER_PENDING {
		log.Printf("[orders] Gateway reports %s for order %d in status %s, ignoring\n", status, orderID, order.Status)
		return nil, fmt.Errorf("order %d is %s, gateway reports %s: %w", orderID, order.Status, status, ErrImmutableOrder)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := transition(tx, orderID, types.ORDER_PENDING, map[string]any{"status": target}); err != nil {
			return err
		}
		tickets := tx.Model(&models.Ticket{}).Where("order_id = ?", orderID)
		if target == types.ORDER_PAID {
			if err := tickets.Update("valid", true).Error; err != nil {
				return err
			}
		} else if err := tickets.Updates(map[string]any{"valid": false, "owner_id": types.NoOwner()}).Error; err != nil {
			return err
		}
		return tx.Model(&models.PaymentTransaction{}).
			Where("order_id = ? AND status = ?", orderID, types.TRANSACTION_PENDING).
			Update("status", transactionStatus(target)).
			Error
	})
	if err != nil {
		return nil, err
	}
	lib.RecordOrderTransition(string(types.ORDER_PENDING), string(target))
	log.Printf("[orders] Order %d reconciled to %s\n", orderID, target)
	if order.Reference != nil {
		if err := s.payments.cache.Forget(ctx, *order.Reference); err != nil {
			log.Printf("[orders] Could not evict reference %s: %s\n", *order.Reference, err.Error())
		}
	}
	updated, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if target == types.ORDER_PAID {
		s.notify.orderConfirmed(updated)
	}
	return updated, nil
}

// recordLatePayment flags the transaction of an order that was paid after it
// stopped waiting for payment. The tickets stay invalid.
func (s *OrderService) recordLatePayment(ctx context.Context, order *models.Order) error {
	q := s.db.WithContext(ctx).Model(&models.PaymentTransaction{}).Where("order_id = ?", order.ID)
	if order.Reference != nil {
		q = q.Where("reference_id = ?", *order.Reference)
	}
	res := q.Update("status", types.TRANSACTION_PAID_LATE)
	if res.Error != nil {
		return res.Error
	}
	lib.RecordLatePayment()
	log.Printf("[orders] Error: order %d is %s but the gateway reports it paid, refund required (%d transaction(s) flagged)\n", order.ID, order.Status, res.RowsAffected)
	return nil
}

// DeleteOrder removes an order and its tickets. Orders that are settled or
// waiting on the gateway cannot be deleted.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID uint) error {
	unlock := s.locks.Lock(orderKey(orderID))
	defer unlock()

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == types.ORDER_PENDING || order.Status.Settled() {
		return fmt.Errorf("order %d is %s: %w", orderID, order.Status, ErrImmutableOrder)
	}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteOrder(tx, order)
	}); err != nil {
		return err
	}
	log.Printf("[orders] Deleted order %d (%s)\n", orderID, order.Status)
	return nil
}

func reconcileTarget(status types.GatewayStatus) (types.OrderStatus, bool) {
	switch status {
	case types.GATEWAY_PAID:
		return types.ORDER_PAID, true
	case types.GATEWAY_EXPIRED:
		return types.ORDER_EXPIRED, true
	case types.GATEWAY_CANCELLED:
		return types.ORDER_CANCELLED, true
	}
	return "", false
}

func transactionStatus(status types.OrderStatus) types.TransactionStatus {
	switch status {
	case types.ORDER_PAID:
		return types.TRANSACTION_COMPLETED
	case types.ORDER_EXPIRED:
		return types.TRANSACTION_EXPIRED
	}
	return types.TRANSACTION_CANCELED
}

// transition updates the order only while it is still in status from.
func transition(tx *gorm.DB, orderID uint, from types.OrderStatus, changes map[string]any) error {
	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order %d left %s: %w", orderID, from, ErrImmutableOrder)
	}
	return nil
}

func preloadTickets(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Tickets", func(db *gorm.DB) *gorm.DB {
			return db.Order("tickets.id")
		}).
		Preload("Tickets.TicketType").
		Preload("Tickets.Options").
		Preload("Tickets.RFIDLink")
}

func loadOrder(db *gorm.DB, id uint) (*models.Order, error) {
	if id == 0 {
		return nil, ErrOrderNotFound
	}
	var order models.Order
	if err := preloadTickets(db).First(&order, id).Error; err != nil {
		return nil, notFound(err, fmt.Errorf("order %d: %w", id, ErrOrderNotFound))
	}
	order.ComputeAmount()
	return &order, nil
}

func deleteOrder(tx *gorm.DB, order *models.Order) error {
	if err := deleteTickets(tx, order.TicketIDs()); err != nil {
		return err
	}
	return tx.Delete(&models.Order{}, order.ID).Error
}

// deleteTickets removes tickets together with their option rows, rfid links
// and transfer tokens.
func deleteTickets(tx *gorm.DB, ticketIDs []uint) error {
	if len(ticketIDs) == 0 {
		return nil
	}
	if err := tx.Exec("DELETE FROM ticket_enabled_options WHERE ticket_id IN ?", ticketIDs).Error; err != nil {
		return err
	}
	if err := tx.Where("ticket_id IN ?", ticketIDs).Delete(&models.RFIDLink{}).Error; err != nil {
		return err
	}
	if err := tx.Where("ticket_id IN ?", ticketIDs).Delete(&models.Token{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ticketIDs).Delete(&models.Ticket{}).Error
}
