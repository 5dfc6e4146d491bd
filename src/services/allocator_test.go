package services

import (
	"errors"
	"sync"
	"ticketshop/src/models"
	"ticketshop/src/types"

	"github.com/shopspring/decimal"
)

func (s *EngineTestSuite) TestRequestTicketOfType() {
	ticket, err := s.engine.Allocator.RequestTicketOfType(s.ctx, "Weekend", []string{"student"}, AllocatorOptions{})
	s.Require().NoError(err)
	s.False(ticket.Valid)
	s.False(ticket.Owner.Present())
	s.Nil(ticket.OrderID)
	s.Equal("25", ticket.Price().String())

	_, err = s.engine.Allocator.RequestTicketOfType(s.ctx, "Nope", nil, AllocatorOptions{})
	s.ErrorIs(err, ErrTypeNotFound)
}

func (s *EngineTestSuite) TestSaleWindow() {
	_, err := s.engine.Allocator.RequestTicketOfType(s.ctx, "Closed", nil, AllocatorOptions{})
	s.ErrorIs(err, ErrSaleWindowClosed)
	_, err = s.engine.Allocator.RequestTicketOfType(s.ctx, "Hidden", nil, AllocatorOptions{})
	s.ErrorIs(err, ErrSaleWindowClosed)

	_, err = s.engine.Allocator.RequestTicketOfType(s.ctx, "Closed", nil, AllocatorOptions{Override: true})
	s.NoError(err)
	order, err := s.engine.Orders.CreateOverride(s.ctx, "Hidden", nil)
	s.Require().NoError(err)
	s.Len(order.Tickets, 1)
}

func (s *EngineTestSuite) TestCapacity() {
	_, err := s.engine.Allocator.RequestTicketOfType(s.ctx, "Limited", nil, AllocatorOptions{})
	s.Require().NoError(err)
	_, err = s.engine.Allocator.RequestTicketOfType(s.ctx, "Limited", nil, AllocatorOptions{})
	s.Require().NoError(err)

	_, err = s.engine.Allocator.RequestTicketOfType(s.ctx, "Limited", nil, AllocatorOptions{})
	s.ErrorIs(err, ErrTicketsUnavailable)
	// capacity also binds operators
	_, err = s.engine.Allocator.RequestTicketOfType(s.ctx, "Limited", nil, AllocatorOptions{Override: true})
	s.ErrorIs(err, ErrTicketsUnavailable)
}

func (s *EngineTestSuite) TestInvalidOption() {
	_, err := s.engine.Allocator.RequestTicketOfType(s.ctx, "Weekend", []string{"backstage"}, AllocatorOptions{})
	s.ErrorIs(err, ErrInvalidOption)
	_, err = s.engine.Allocator.RequestTicketOfType(s.ctx, "Weekend", []string{"unknown"}, AllocatorOptions{})
	s.ErrorIs(err, ErrInvalidOption)
	s.Equal(int64(0), s.ticketCount())
}

func (s *EngineTestSuite) TestPriceNeverNegative() {
	_, err := s.engine.Catalog.CreateOption(s.ctx, "voucher", decimal.NewFromInt(-100))
	s.Require().NoError(err)
	weekend, err := s.engine.Catalog.GetType(s.ctx, "Weekend")
	s.Require().NoError(err)
	_, err = s.engine.Catalog.PermitOption(s.ctx, weekend.ID, "voucher")
	s.Require().NoError(err)

	order, err := s.engine.Orders.Create(s.ctx, "Weekend", []string{"voucher"})
	s.Require().NoError(err)
	s.True(order.Amount.IsZero())
}

func (s *EngineTestSuite) TestConcurrentAllocationNeverExceedsCapacity() {
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, soldOut := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.engine.Orders.Create(s.ctx, "Limited", nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, ErrTicketsUnavailable) {
				soldOut++
			}
		}()
	}
	wg.Wait()

	s.Equal(2, succeeded)
	s.Equal(18, soldOut)
	stats, err := s.engine.Catalog.Stats(s.ctx, s.typeID("Limited"))
	s.Require().NoError(err)
	s.Equal(uint(2), stats.Allocated)
	s.Equal(uint(0), stats.Free)
}

func (s *EngineTestSuite) TestExpiredOrdersKeepCapacityUntilDeleted() {
	order := s.assignedOrder(s.alice, "Limited")
	_, err := s.engine.Orders.RequestPayment(s.ctx, order.ID)
	s.Require().NoError(err)
	_, err = s.engine.Orders.Reconcile(s.ctx, order.ID, types.GATEWAY_EXPIRED)
	s.Require().NoError(err)

	_, err = s.engine.Orders.Create(s.ctx, "Limited", nil)
	s.Require().NoError(err)
	_, err = s.engine.Orders.Create(s.ctx, "Limited", nil)
	s.Require().ErrorIs(err, ErrTicketsUnavailable)

	stats, err := s.engine.Catalog.Stats(s.ctx, s.typeID("Limited"))
	s.Require().NoError(err)
	s.Equal(uint(2), stats.Allocated)
	s.Equal(uint(0), stats.Free)

	s.Require().NoError(s.engine.Orders.DeleteOrder(s.ctx, order.ID))
	_, err = s.engine.Orders.Create(s.ctx, "Limited", nil)
	s.NoError(err)

	var live int64
	s.Require().NoError(s.db.Model(&models.Ticket{}).Where("ticket_type_id = ?", s.typeID("Limited")).Count(&live).Error)
	s.Equal(int64(2), live)
}

func (s *EngineTestSuite) TestCapacityCannotDropBelowRetainedTickets() {
	order := s.assignedOrder(s.alice, "Limited")
	_, err := s.engine.Orders.RequestPayment(s.ctx, order.ID)
	s.Require().NoError(err)
	_, err = s.engine.Orders.Reconcile(s.ctx, order.ID, types.GATEWAY_CANCELLED)
	s.Require().NoError(err)

	_, err = s.engine.Orders.Create(s.ctx, "Limited", nil)
	s.Require().NoError(err)

	one := uint(1)
	_, err = s.engine.Catalog.UpdateType(s.ctx, s.typeID("Limited"), TicketTypeUpdate{Capacity: &one})
	s.ErrorIs(err, ErrCapacityBelowAllocation)
}

func (s *EngineTestSuite) typeID(name string) uint {
	tt, err := s.engine.Catalog.GetType(s.ctx, name)
	s.Require().NoError(err)
	return tt.ID
}
