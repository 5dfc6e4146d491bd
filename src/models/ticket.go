package models

import (
	"ticketshop/src/types"

	"github.com/shopspring/decimal"
)

type Ticket struct {
	ID           uint        `gorm:"primarykey" json:"id"`
	TicketTypeID uint        `gorm:"index;not null" json:"ticket_type_id"`
	OrderID      *uint       `gorm:"index" json:"order_id,omitempty"`
	Owner        types.Owner `gorm:"column:owner_id;index" json:"owner_id"`
	Valid        bool        `json:"valid"`

	TicketType TicketType     `gorm:"foreignKey:TicketTypeID" json:"ticket_type,omitempty"`
	Options    []TicketOption `gorm:"many2many:ticket_enabled_options;" json:"options,omitempty"`
	RFIDLink   *RFIDLink      `gorm:"foreignKey:TicketID" json:"rfid_link,omitempty"`

	types.Timestamps
}

// Price is the type price plus the enabled option deltas, floored at zero.
// TicketType and Options must be loaded.
func (t *Ticket) Price() decimal.Decimal {
	price := t.TicketType.Price
	for _, o := range t.Options {
		price = price.Add(o.PriceDelta)
	}
	if price.IsNegative() {
		return decimal.Zero
	}
	return price
}
