package services

import (
	"errors"
	"ticketshop/src/models"
	"ticketshop/src/types"
	"time"
)

func (s *EngineTestSuite) TestOrderAmounts() {
	order, err := s.engine.Orders.Create(s.ctx, "Weekend", []string{"student", "parking"})
	s.Require().NoError(err)
	s.Equal(types.ORDER_ANONYMOUS, order.Status)
	s.False(order.Owner.Present())
	s.Equal("27.5", order.Amount.String())

	order, err = s.engine.Orders.AddTicketToOrder(s.ctx, order.ID, "Weekend", nil)
	s.Require().NoError(err)
	s.Require().Len(order.Tickets, 2)
	s.Equal("57.5", order.Amount.String())

	order, err = s.engine.Orders.RemoveTicketFromOrder(s.ctx, order.ID, order.Tickets[1].ID)
	s.Require().NoError(err)
	s.Len(order.Tickets, 1)
	s.Equal("27.5", order.Amount.String())
}

func (s *EngineTestSuite) TestUnknownOrder() {
	for _, id := range []uint{0, 4242} {
		_, err := s.engine.Orders.Get(s.ctx, id)
		s.ErrorIs(err, ErrOrderNotFound)
		s.ErrorIs(err, ErrNotFound)
		_, err = s.engine.Orders.AddTicketToOrder(s.ctx, id, "Weekend", nil)
		s.ErrorIs(err, ErrOrderNotFound)
		_, err = s.engine.Orders.AssignOrderToUser(s.ctx, id, s.alice.Email)
		s.ErrorIs(err, ErrOrderNotFound)
		_, err = s.engine.Orders.RequestPayment(s.ctx, id)
		s.ErrorIs(err, ErrOrderNotFound)
		_, err = s.engine.Orders.GetPaymentURL(s.ctx, id)
		s.ErrorIs(err, ErrOrderNotFound)
		_, err = s.engine.Orders.Reconcile(s.ctx, id, types.GATEWAY_PAID)
		s.ErrorIs(err, ErrOrderNotFound)
	}
}

func (s *EngineTestSuite) TestOrderLimitLeavesNoDanglingTicket() {
	order, err := s.engine.Orders.Create(s.ctx, "Weekend", nil)
	s.Require().NoError(err)
	for i := 0; i < 2; i++ {
		_, err = s.engine.Orders.AddTicketToOrder(s.ctx, order.ID, "Weekend", nil)
		s.Require().NoError(err)
	}
	s.Equal(int64(3), s.ticketCount())

	_, err = s.engine.Orders.AddTicketToOrder(s.ctx, order.ID, "Limited", nil)
	s.ErrorIs(err, ErrOrderLimitExceeded)
	s.Equal(int64(3), s.ticketCount())

	stats, err := s.engine.Catalog.Stats(s.ctx, s.typeID("Limited"))
	s.Require().NoError(err)
	s.Equal(uint(0), stats.Allocated)
}

func (s *EngineTestSuite) TestAddTicketToAssignedOrderOwnsIt() {
	order := s.assignedOrder(s.alice, "Weekend")
	order, err := s.engine.Orders.AddTicketToOrder(s.ctx, order.ID, "Weekend", []string{"parking"})
	s.Require().NoError(err)
	s.Require().Len(order.Tickets, 2)
	for _, t := range order.Tickets {
		s.True(t.Owner.Is(s.alice.ID))
		s.False(t.Valid)
	}
}

func (s *EngineTestSuite) TestRemoveTicket() {
	order, err := s.engine.Orders.Create(s.ctx, "Limited", nil)
	s.Require().NoError(err)
	other, err := s.engine.Orders.Create(s.ctx, "Weekend", nil)
	s.Require().NoError(err)

	_, err = s.engine.Orders.RemoveTicketFromOrder(s.ctx, order.ID, other.Tickets[0].ID)
	s.ErrorIs(err, ErrTicketNotFound)

	order, err = s.engine.Orders.RemoveTicketFromOrder(s.ctx, order.ID, order.Tickets[0].ID)
	s.Require().NoError(err)
	s.Empty(order.Tickets)
	s.True(order.Amount.IsZero())

	stats, err := s.engine.Catalog.Stats(s.ctx, s.typeID("Limited"))
	s.Require().NoError(err)
	s.Equal(uint(0), stats.Allocated)
}

func (s *EngineTestSuite) TestAssignTwiceKeepsFirstOwner() {
	order := s.assignedOrder(s.alice, "Weekend")
	s.Equal(types.ORDER_ASSIGNED, order.Status)
	s.True(order.Owner.Is(s.alice.ID))
	s.True(order.Tickets[0].Owner.Is(s.alice.ID))

	_, err := s.engine.Orders.AssignOrderToUser(s.ctx, order.ID, s.bob.Email)
	s.ErrorIs(err, ErrImmutableOrder)
	_, err = s.engine.Orders.AssignOrderToUser(s.ctx, order.ID, s.alice.Email)
	s.ErrorIs(err, ErrImmutableOrder)

	order, err = s.engine.Orders.Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.True(order.Owner.Is(s.alice.ID))
}

func (s *EngineTestSuite) TestAssignUnknownUser() {
	order, err := s.engine.Orders.Create(s.ctx, "Weekend", nil)
	s.Require().NoError(err)
	_, err = s.engine.Orders.AssignOrderToUser(s.ctx, order.ID, "nobody@example.com")
	s.ErrorIs(err, ErrUserNotFound)

	// email lookup ignores case
	order, err = s.engine.Orders.AssignOrderToUser(s.ctx, order.ID, "ALICE@example.com")
	s.Require().NoError(err)
	s.True(order.Owner.Is(s.alice.ID))
}

func (s *EngineTestSuite) TestRequestPaymentPreconditions() {
	anonymous, err := s.engine.Orders.Create(s.ctx, "Weekend", nil)
	s.Require().NoError(err)
	_, err = s.engine.Orders.RequestPayment(s.ctx, anonymous.ID)
	s.ErrorIs(err, ErrUnassignedOrder)

	empty := s.assignedOrder(s.alice, "Weekend")
	_, err = s.engine.Orders.RemoveTicketFromOrder(s.ctx, empty.ID, empty.Tickets[0].ID)
	s.Require().NoError(err)
	_, err = s.engine.Orders.RequestPayment(s.ctx, empty.ID)
	s.ErrorIs(err, ErrEmptyOrder)

	pending := s.pendingOrder(s.alice)
	_, err = s.engine.Orders.RequestPayment(s.ctx, pending.ID)
	s.ErrorIs(err, ErrImmutableOrder)
	_, err = s.engine.Orders.AddTicketToOrder(s.ctx, pending.ID, "Weekend", nil)
	s.ErrorIs(err, ErrImmutableOrder)
	_, err = s.engine.Orders.RemoveTicketFromOrder(s.ctx, pending.ID, pending.Tickets[0].ID)
	s.ErrorIs(err, ErrImmutableOrder)
	s.Equal(1, s.gateway.registrations())
}

func (s *EngineTestSuite) TestZeroAmountSettlesWithoutGateway() {
	order := s.assignedOrder(s.alice, "Free")

	url, err := s.engine.Orders.RequestPayment(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal("https://shop.test/orders/"+itoa(order.ID)+"/confirmation", url)
	s.Equal(0, s.gateway.registrations())

	order, err = s.engine.Orders.Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_SETTLED_FREE, order.Status)
	s.Nil(order.Reference)
	s.True(order.Tickets[0].Valid)
	s.True(order.Tickets[0].Owner.Is(s.alice.ID))
	s.Eventually(func() bool { return len(s.notifier.confirmed()) == 1 }, time.Second, 10*time.Millisecond)

	_, err = s.engine.Orders.GetPaymentURL(s.ctx, order.ID)
	s.ErrorIs(err, ErrImmutableOrder)
}

func (s *EngineTestSuite) TestPaidFlow() {
	order := s.assignedOrder(s.alice, "Weekend", "parking")
	url, err := s.engine.Orders.RequestPayment(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal("https://pay.test/cs_test_1", url)

	order, err = s.engine.Orders.Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_PENDING, order.Status)
	s.Require().NotNil(order.Reference)
	s.Equal("cs_test_1", *order.Reference)

	url, err = s.engine.Orders.GetPaymentURL(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal("https://pay.test/cs_test_1", url)

	var txn models.PaymentTransaction
	s.Require().NoError(s.db.Where("order_id = ?", order.ID).First(&txn).Error)
	s.Equal("32.5", txn.Amount.String())
	s.Equal(types.TRANSACTION_PENDING, txn.Status)

	order, err = s.engine.Payments.ReconcileByReference(s.ctx, "cs_test_1", types.GATEWAY_PAID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_PAID, order.Status)
	s.True(order.Tickets[0].Valid)
	s.True(order.Tickets[0].Owner.Is(s.alice.ID))

	// replayed webhook
	order, err = s.engine.Payments.ReconcileByReference(s.ctx, "cs_test_1", types.GATEWAY_PAID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_PAID, order.Status)

	s.Require().NoError(s.db.First(&txn, txn.ID).Error)
	s.Equal(types.TRANSACTION_COMPLETED, txn.Status)
	s.Eventually(func() bool { return len(s.notifier.confirmed()) == 1 }, time.Second, 10*time.Millisecond)

	// a late expiry never downgrades a paid order
	_, err = s.engine.Orders.Reconcile(s.ctx, order.ID, types.GATEWAY_EXPIRED)
	s.ErrorIs(err, ErrImmutableOrder)
	tickets, err := s.engine.Tickets.ListValidForUser(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Len(tickets, 1)
}

func (s *EngineTestSuite) TestReconcileExpiredAndCancelled() {
	for _, c := range []struct {
		status types.GatewayStatus
		want   types.OrderStatus
	}{
		{types.GATEWAY_EXPIRED, types.ORDER_EXPIRED},
		{types.GATEWAY_CANCELLED, types.ORDER_CANCELLED},
	} {
		order := s.pendingOrder(s.alice)
		updated, err := s.engine.Orders.Reconcile(s.ctx, order.ID, c.status)
		s.Require().NoError(err)
		s.Equal(c.want, updated.Status)
		s.Require().Len(updated.Tickets, 1)
		s.False(updated.Tickets[0].Valid)
		s.False(updated.Tickets[0].Owner.Present())
		s.True(updated.Owner.Is(s.alice.ID))
	}
}

func (s *EngineTestSuite) TestPendingGatewayStatusChangesNothing() {
	order := s.pendingOrder(s.alice)
	updated, err := s.engine.Orders.Reconcile(s.ctx, order.ID, types.GATEWAY_PENDING)
	s.Require().NoError(err)
	s.Equal(types.ORDER_PENDING, updated.Status)
}

func (s *EngineTestSuite) TestReconcileUnknownReference() {
	_, err := s.engine.Payments.ReconcileByReference(s.ctx, "cs_unknown", types.GATEWAY_PAID)
	s.ErrorIs(err, ErrOrderNotFound)
	_, err = s.engine.Payments.ReconcileByReference(s.ctx, "", types.GATEWAY_PAID)
	s.ErrorIs(err, ErrOrderNotFound)
}

func (s *EngineTestSuite) TestGatewayFailureKeepsOrderAssigned() {
	order := s.assignedOrder(s.alice, "Weekend")
	s.gateway.err = errors.New("connection reset by peer")

	_, err := s.engine.Orders.RequestPayment(s.ctx, order.ID)
	var paymentErr *PaymentError
	s.Require().ErrorAs(err, &paymentErr)
	s.Equal("register", paymentErr.Op)
	s.ErrorIs(err, ErrExternal)
	s.NotContains(err.Error(), "connection reset")

	order, err = s.engine.Orders.Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_ASSIGNED, order.Status)
	s.Nil(order.Reference)
	var count int64
	s.Require().NoError(s.db.Model(&models.PaymentTransaction{}).Count(&count).Error)
	s.Equal(int64(0), count)
}

func (s *EngineTestSuite) TestGatewayTimeout() {
	order := s.assignedOrder(s.alice, "Weekend")
	s.gateway.block = true

	started := time.Now()
	_, err := s.engine.Orders.RequestPayment(s.ctx, order.ID)
	s.ErrorIs(err, ErrExternal)
	s.Less(time.Since(started), 5*time.Second)

	s.gateway.block = false
	_, err = s.engine.Orders.RequestPayment(s.ctx, order.ID)
	s.NoError(err)
}

func (s *EngineTestSuite) TestUpdateOrderStatusByOrderID() {
	order := s.pendingOrder(s.alice)

	updated, err := s.engine.Payments.UpdateOrderStatusByOrderID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_PENDING, updated.Status)
	s.NotNil(updated.LastPolledAt)

	s.gateway.set(*order.Reference, types.GATEWAY_PAID)
	updated, err = s.engine.Payments.UpdateOrderStatusByOrderID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_PAID, updated.Status)

	// settled orders are not polled again
	polled := s.gateway.polled
	_, err = s.engine.Payments.UpdateOrderStatusByOrderID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(polled, s.gateway.polled)
}

func (s *EngineTestSuite) TestPollPending() {
	first := s.pendingOrder(s.alice)
	second := s.pendingOrder(s.bob)
	s.gateway.set(*first.Reference, types.GATEWAY_PAID)

	s.Equal(2, s.engine.Payments.PollPending(s.ctx))
	// both were polled just now
	s.Equal(0, s.engine.Payments.PollPending(s.ctx))

	s.clock.Advance(2 * time.Minute)
	s.gateway.set(*second.Reference, types.GATEWAY_CANCELLED)
	s.Equal(1, s.engine.Payments.PollPending(s.ctx))

	order, err := s.engine.Orders.Get(s.ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_PAID, order.Status)
	order, err = s.engine.Orders.Get(s.ctx, second.ID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_CANCELLED, order.Status)
}

func (s *EngineTestSuite) TestListForUser() {
	s.assignedOrder(s.alice, "Weekend")
	s.assignedOrder(s.alice, "Free")
	s.assignedOrder(s.bob, "Weekend")

	orders, err := s.engine.Orders.ListForUser(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Len(orders, 2)
	for _, o := range orders {
		s.True(o.Owner.Is(s.alice.ID))
	}
}

func (s *EngineTestSuite) TestDeleteOrder() {
	pending := s.pendingOrder(s.alice)
	s.ErrorIs(s.engine.Orders.DeleteOrder(s.ctx, pending.ID), ErrImmutableOrder)

	_, err := s.engine.Orders.Reconcile(s.ctx, pending.ID, types.GATEWAY_EXPIRED)
	s.Require().NoError(err)
	s.Require().NoError(s.engine.Orders.DeleteOrder(s.ctx, pending.ID))
	_, err = s.engine.Orders.Get(s.ctx, pending.ID)
	s.ErrorIs(err, ErrOrderNotFound)
	s.Equal(int64(0), s.ticketCount())
}
