package services

import (
	"context"
	"fmt"
	"log"
	"ticketshop/src/lib"
	"ticketshop/src/models"
	"ticketshop/src/types"

	"gorm.io/gorm"
)

type TicketService struct {
	db    *gorm.DB
	locks *lib.KeyedMutex
}

func (s *TicketService) Get(ctx context.Context, id uint) (*models.Ticket, error) {
	return loadTicket(s.db.WithContext(ctx), id)
}

// ListValidForUser returns the valid tickets the user owns.
func (s *TicketService) ListValidForUser(ctx context.Context, userID uint) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.WithContext(ctx).
		Preload("TicketType").
		Preload("Options").
		Preload("RFIDLink").
		Where("owner_id = ? AND valid = ?", userID, true).
		Order("id").
		Find(&tickets).
		Error
	return tickets, err
}

// DeleteTicket removes a ticket administratively. Tickets of settled orders,
// of orders waiting on the gateway and tickets linked to an rfid stay.
func (s *TicketService) DeleteTicket(ctx context.Context, id uint) error {
	ticket, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if ticket.OrderID != nil {
		unlock := s.locks.Lock(orderKey(*ticket.OrderID))
		defer unlock()
	}
	unlock := s.locks.Lock(ticketKey(id))
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ticket, err := loadTicket(tx, id)
		if err != nil {
			return err
		}
		if ticket.RFIDLink != nil {
			return fmt.Errorf("ticket %d: %w", id, ErrTicketAlreadyLinked)
		}
		if ticket.OrderID != nil {
			var order models.Order
			if err := tx.Select("id", "status").First(&order, *ticket.OrderID).Error; err != nil {
				return notFound(err, ErrOrderNotFound)
			}
			switch {
			case order.Status.Settled():
				return fmt.Errorf("ticket %d: %w", id, ErrTicketLocked)
			case order.Status == types.ORDER_PENDING:
				return fmt.Errorf("order %d is %s: %w", order.ID, order.Status, ErrImmutableOrder)
			}
		}
		return deleteTickets(tx, []uint{id})
	})
	if err != nil {
		return err
	}
	log.Printf("[tickets] Deleted ticket %d\n", id)
	return nil
}

func loadTicket(db *gorm.DB, id uint) (*models.Ticket, error) {
	if id == 0 {
		return nil, ErrTicketNotFound
	}
	var ticket models.Ticket
	err := db.
		Preload("TicketType").
		Preload("Options").
		Preload("RFIDLink").
		First(&ticket, id).
		Error
	if err != nil {
		return nil, notFound(err, fmt.Errorf("ticket %d: %w", id, ErrTicketNotFound))
	}
	return &ticket, nil
}
