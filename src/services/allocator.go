package services

import (
	"context"
	"errors"
	"fmt"
	"ticketshop/src/lib"
	"ticketshop/src/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// TicketAllocator creates tickets against a ticket type. The capacity check
// and the insert run under the type lock and commit before it is released.
type TicketAllocator struct {
	db      *gorm.DB
	clock   clockwork.Clock
	locks   *lib.KeyedMutex
	catalog *CatalogService
}

type AllocatorOptions struct {
	// Override skips the sale window and buyable checks. Capacity still applies.
	Override bool
}

// RequestTicketOfType allocates a ticket that belongs to no order.
func (a *TicketAllocator) RequestTicketOfType(ctx context.Context, typeName string, options []string, opts AllocatorOptions) (*models.Ticket, error) {
	return a.allocate(ctx, typeName, options, opts, nil)
}

// allocate runs attach inside the allocation transaction right before the
// ticket row is written. An error from attach rolls the allocation back.
func (a *TicketAllocator) allocate(
	ctx context.Context,
	typeName string,
	optionNames []string,
	opts AllocatorOptions,
	attach func(tx *gorm.DB, ticket *models.Ticket) error,
) (*models.Ticket, error) {
	ticketType, err := a.catalog.GetType(ctx, typeName)
	if err != nil {
		lib.RecordAllocation(typeName, "not_found")
		return nil, err
	}
	unlock := a.locks.Lock(typeKey(ticketType.ID))
	defer unlock()

	var ticket *models.Ticket
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := getTypeByName(tx, typeName)
		if err != nil {
			return err
		}
		now := a.clock.Now()
		if !opts.Override && !current.SaleOpen(now) {
			return fmt.Errorf("%s: %w", current.Name, ErrSaleWindowClosed)
		}
		if !current.Unlimited() {
			allocated, err := countLiveTickets(tx, current.ID)
			if err != nil {
				return err
			}
			if allocated >= int64(current.Capacity) {
				return fmt.Errorf("%s: %w", current.Name, ErrTicketsUnavailable)
			}
		}
		options, err := findOptions(tx, optionNames, ErrInvalidOption)
		if err != nil {
			return err
		}
		for _, o := range options {
			if !current.Permits(o.ID) {
				return fmt.Errorf("option %q on %s: %w", o.Name, current.Name, ErrInvalidOption)
			}
		}

		t := &models.Ticket{
			TicketTypeID: current.ID,
			Options:      options,
			Valid:        false,
		}
		t.CreatedAt = now
		t.UpdatedAt = now
		if attach != nil {
			if err := attach(tx, t); err != nil {
				return err
			}
		}
		if err := tx.Omit("TicketType", "Options.*").Create(t).Error; err != nil {
			return err
		}
		t.TicketType = *current
		ticket = t
		return nil
	})
	lib.RecordAllocation(ticketType.Name, allocationResult(err))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func allocationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSaleWindowClosed):
		return "sale_closed"
	case errors.Is(err, ErrTicketsUnavailable):
		return "sold_out"
	case errors.Is(err, ErrInvalidOption):
		return "invalid_option"
	}
	return "rejected"
}
