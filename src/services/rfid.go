package services

import (
	"context"
	"fmt"
	"log"
	"ticketshop/src/lib"
	"ticketshop/src/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// RFIDLinkRegistry binds valid tickets to rfid badges, one to one. A ticket
// with a pending transfer cannot be linked.
type RFIDLinkRegistry struct {
	db     *gorm.DB
	clock  clockwork.Clock
	locks  *lib.KeyedMutex
	length int
}

// ValidRFID reports whether rfid has the configured length and only digits.
func ValidRFID(rfid string, length int) bool {
	if len(rfid) != length {
		return false
	}
	for _, c := range rfid {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (r *RFIDLinkRegistry) AddRFIDLink(ctx context.Context, rfid string, ticketID uint) (*models.RFIDLink, error) {
	if !ValidRFID(rfid, r.length) {
		return nil, fmt.Errorf("%q: %w", rfid, ErrInvalidRFID)
	}
	unlockTicket := r.locks.Lock(ticketKey(ticketID))
	defer unlockTicket()
	unlockRFID := r.locks.Lock(rfidKey(rfid))
	defer unlockRFID()

	link := &models.RFIDLink{RFID: rfid, TicketID: ticketID}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.RFIDLink{}).Where("rfid = ?", rfid).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("%s: %w", rfid, ErrRFIDTaken)
		}
		ticket, err := loadTicket(tx, ticketID)
		if err != nil {
			return err
		}
		if !ticket.Valid {
			return fmt.Errorf("ticket %d: %w", ticketID, ErrInvalidTicket)
		}
		if ticket.RFIDLink != nil {
			return fmt.Errorf("ticket %d: %w", ticketID, ErrTicketAlreadyLinked)
		}
		now := r.clock.Now()
		outstanding, err := hasOutstandingToken(tx, ticketID, now)
		if err != nil {
			return err
		}
		if outstanding {
			return fmt.Errorf("ticket %d has a pending transfer: %w", ticketID, ErrTicketAlreadyLinked)
		}
		link.CreatedAt = now
		link.UpdatedAt = now
		return tx.Create(link).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[rfid] Linked %s to ticket %d\n", rfid, ticketID)
	return link, nil
}

// RemoveRFIDLink unlinks the badge and returns the removed link.
func (r *RFIDLinkRegistry) RemoveRFIDLink(ctx context.Context, rfid string) (*models.RFIDLink, error) {
	var link models.RFIDLink
	if err := r.db.WithContext(ctx).Where("rfid = ?", rfid).First(&link).Error; err != nil {
		return nil, notFound(err, fmt.Errorf("%s: %w", rfid, ErrRFIDNotFound))
	}
	return r.remove(ctx, link.TicketID, "rfid = ?", rfid)
}

// RemoveRFIDLinkForTicket unlinks whatever badge the ticket is bound to.
func (r *RFIDLinkRegistry) RemoveRFIDLinkForTicket(ctx context.Context, ticketID uint) (*models.RFIDLink, error) {
	return r.remove(ctx, ticketID, "ticket_id = ?", ticketID)
}

func (r *RFIDLinkRegistry) remove(ctx context.Context, ticketID uint, query string, arg any) (*models.RFIDLink, error) {
	unlock := r.locks.Lock(ticketKey(ticketID))
	defer unlock()

	var link models.RFIDLink
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(query, arg).First(&link).Error; err != nil {
			return notFound(err, fmt.Errorf("%v: %w", arg, ErrRFIDNotFound))
		}
		return tx.Delete(&link).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[rfid] Unlinked %s from ticket %d\n", link.RFID, link.TicketID)
	return &link, nil
}

func (r *RFIDLinkRegistry) Get(ctx context.Context, rfid string) (*models.RFIDLink, error) {
	var link models.RFIDLink
	if err := r.db.WithContext(ctx).Where("rfid = ?", rfid).First(&link).Error; err != nil {
		return nil, notFound(err, fmt.Errorf("%s: %w", rfid, ErrRFIDNotFound))
	}
	return &link, nil
}
