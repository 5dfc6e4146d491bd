package models

import (
	"errors"
	"fmt"
	"ticketshop/src/types"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrOwnerMismatch = errors.New("order owner does not match its status")

type Order struct {
	ID           uint              `gorm:"primarykey" json:"id"`
	Owner        types.Owner       `gorm:"column:owner_id;index" json:"owner_id"`
	Status       types.OrderStatus `gorm:"type:text;index;not null" json:"status"`
	Reference    *string           `gorm:"uniqueIndex" json:"reference,omitempty"`
	PaymentURL   *string           `json:"-"`
	LastPolledAt *time.Time        `json:"-"`

	Tickets []Ticket `gorm:"foreignKey:OrderID" json:"tickets,omitempty"`

	Amount decimal.Decimal `gorm:"-" json:"amount"`

	types.Timestamps
}

// BeforeSave rejects an order whose owner presence disagrees with its status.
// Column updates are checked when they set both status and owner.
func (o *Order) BeforeSave(tx *gorm.DB) error {
	status, owner := o.Status, o.Owner
	if changes, ok := tx.Statement.Dest.(map[string]any); ok {
		s, hasStatus := changes["status"].(types.OrderStatus)
		w, hasOwner := changes["owner_id"].(types.Owner)
		if !hasStatus || !hasOwner {
			return nil
		}
		status, owner = s, w
	}
	if status == "" {
		return nil
	}
	if owner.Present() != status.RequiresOwner() {
		return fmt.Errorf("order %d is %s with owner %s: %w", o.ID, status, owner, ErrOwnerMismatch)
	}
	return nil
}

// ComputeAmount sums the prices of the loaded tickets into Amount.
func (o *Order) ComputeAmount() decimal.Decimal {
	amount := decimal.Zero
	for i := range o.Tickets {
		amount = amount.Add(o.Tickets[i].Price())
	}
	o.Amount = amount
	return amount
}

func (o *Order) HasTicket(ticketID uint) bool {
	for _, t := range o.Tickets {
		if t.ID == ticketID {
			return true
		}
	}
	return false
}

func (o *Order) TicketIDs() []uint {
	ids := make([]uint, 0, len(o.Tickets))
	for _, t := range o.Tickets {
		ids = append(ids, t.ID)
	}
	return ids
}
