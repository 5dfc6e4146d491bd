package services

import (
	"errors"
	"ticketshop/src/models"
	"ticketshop/src/types"
	"time"

	"github.com/go-co-op/gocron/v2"
)

func (s *EngineTestSuite) TestSweepDeletesAbandonedOrders() {
	anonymous, err := s.engine.Orders.Create(s.ctx, "Limited", nil)
	s.Require().NoError(err)
	assigned := s.assignedOrder(s.alice, "Weekend")

	s.clock.Advance(20 * time.Minute)
	fresh, err := s.engine.Orders.Create(s.ctx, "Weekend", nil)
	s.Require().NoError(err)

	s.clock.Advance(11 * time.Minute)
	res := s.engine.Expiry.Sweep(s.ctx)
	s.Equal(2, res.Deleted)
	s.Equal(0, res.Failed)

	for _, id := range []uint{anonymous.ID, assigned.ID} {
		_, err := s.engine.Orders.Get(s.ctx, id)
		s.ErrorIs(err, ErrOrderNotFound)
	}
	_, err = s.engine.Orders.Get(s.ctx, fresh.ID)
	s.NoError(err)
	s.Equal(int64(1), s.ticketCount())

	stats, err := s.engine.Catalog.Stats(s.ctx, s.typeID("Limited"))
	s.Require().NoError(err)
	s.Equal(uint(0), stats.Allocated)
}

func (s *EngineTestSuite) TestSweepExpiresPendingOrders() {
	pending := s.pendingOrder(s.alice)
	paid := s.paidTicket(s.bob)

	s.clock.Advance(31 * time.Minute)
	res := s.engine.Expiry.Sweep(s.ctx)
	s.Equal(1, res.Expired)
	s.Equal(0, res.Deleted)

	order, err := s.engine.Orders.Get(s.ctx, pending.ID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_EXPIRED, order.Status)
	s.False(order.Tickets[0].Valid)
	s.False(order.Tickets[0].Owner.Present())
	s.Equal([]string{*pending.Reference}, s.gateway.expired)

	ticket, err := s.engine.Tickets.Get(s.ctx, paid.ID)
	s.Require().NoError(err)
	s.True(ticket.Valid)

	// terminal orders are left alone afterwards
	res = s.engine.Expiry.Sweep(s.ctx)
	s.Equal(SweepResult{}, res)
}

func (s *EngineTestSuite) TestSweepSettlesPaidPendingOrders() {
	pending := s.pendingOrder(s.alice)
	s.gateway.set(*pending.Reference, types.GATEWAY_PAID)

	s.clock.Advance(31 * time.Minute)
	res := s.engine.Expiry.Sweep(s.ctx)
	s.Equal(1, res.Paid)

	order, err := s.engine.Orders.Get(s.ctx, pending.ID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_PAID, order.Status)
}

func (s *EngineTestSuite) TestSweepKeepsPendingOrdersWhileGatewayIsDown() {
	pending := s.pendingOrder(s.alice)
	s.gateway.set(*pending.Reference, types.GATEWAY_PAID)
	s.gateway.err = errors.New("connection refused")

	s.clock.Advance(31 * time.Minute)
	res := s.engine.Expiry.Sweep(s.ctx)
	s.Equal(1, res.Failed)
	s.Equal(0, res.Expired)

	order, err := s.engine.Orders.Get(s.ctx, pending.ID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_PENDING, order.Status)
	s.Empty(s.gateway.expired)

	s.gateway.err = nil
	res = s.engine.Expiry.Sweep(s.ctx)
	s.Equal(1, res.Paid)
	order, err = s.engine.Orders.Get(s.ctx, pending.ID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_PAID, order.Status)
	s.True(order.Tickets[0].Valid)
}

func (s *EngineTestSuite) TestLatePaymentIsFlagged() {
	pending := s.pendingOrder(s.alice)
	s.clock.Advance(31 * time.Minute)
	s.Equal(1, s.engine.Expiry.Sweep(s.ctx).Expired)

	_, err := s.engine.Payments.ReconcileByReference(s.ctx, *pending.Reference, types.GATEWAY_PAID)
	s.ErrorIs(err, ErrImmutableOrder)

	var txn models.PaymentTransaction
	s.Require().NoError(s.db.Where("order_id = ?", pending.ID).First(&txn).Error)
	s.Equal(types.TRANSACTION_PAID_LATE, txn.Status)

	order, err := s.engine.Orders.Get(s.ctx, pending.ID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_EXPIRED, order.Status)
	s.False(order.Tickets[0].Valid)
}

func (s *EngineTestSuite) TestSweepIsolatesFailures() {
	broken := s.pendingOrder(s.alice)
	healthy := s.pendingOrder(s.bob)
	s.gateway.panicOn = *broken.Reference

	s.clock.Advance(31 * time.Minute)
	res := s.engine.Expiry.Sweep(s.ctx)
	s.Equal(1, res.Failed)
	s.Equal(1, res.Expired)

	order, err := s.engine.Orders.Get(s.ctx, healthy.ID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_EXPIRED, order.Status)
	order, err = s.engine.Orders.Get(s.ctx, broken.ID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_PENDING, order.Status)

	// the order lock was released despite the panic
	s.gateway.panicOn = ""
	res = s.engine.Expiry.Sweep(s.ctx)
	s.Equal(1, res.Expired)
}

func (s *EngineTestSuite) TestExpiryRegistersJob() {
	sched, err := gocron.NewScheduler(gocron.WithClock(s.clock))
	s.Require().NoError(err)
	defer sched.Shutdown()

	id, err := s.engine.Expiry.Register(sched)
	s.Require().NoError(err)
	s.NotEmpty(id)
	s.Require().Len(sched.Jobs(), 1)
	s.Equal("expire-orders", sched.Jobs()[0].Name())
}
