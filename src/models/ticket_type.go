package models

import (
	"ticketshop/src/types"
	"time"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TicketType struct {
	ID       uint            `gorm:"primarykey" json:"id"`
	Name     string          `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Slug     string          `gorm:"uniqueIndex;size:160;not null" json:"slug"`
	Price    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Capacity uint            `json:"capacity"`
	SaleEnd  time.Time       `json:"sale_end"`
	Buyable  bool            `json:"buyable"`

	Options []TicketOption `gorm:"many2many:ticket_type_options;" json:"options,omitempty"`

	Stats *TicketTypeStats `gorm:"-" json:"stats,omitempty"`

	types.Timestamps
}

func (t *TicketType) BeforeCreate(tx *gorm.DB) error {
	if t.Slug == "" {
		t.Slug = slug.Make(t.Name)
	}
	return nil
}

// Unlimited reports whether the type has no capacity cap.
func (t *TicketType) Unlimited() bool {
	return t.Capacity == 0
}

// SaleOpen reports whether regular customers may still buy the type at now.
func (t *TicketType) SaleOpen(now time.Time) bool {
	return t.Buyable && now.Before(t.SaleEnd)
}

func (t *TicketType) Permits(optionID uint) bool {
	for _, o := range t.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

type TicketTypeStats struct {
	TicketTypeID uint `json:"ticket_type_id,omitempty"`
	Capacity     uint `json:"capacity"`
	Allocated    uint `json:"allocated"`
	Free         uint `json:"free"`
	Unlimited    bool `json:"unlimited"`
}

type TicketOption struct {
	ID         uint            `gorm:"primarykey" json:"id"`
	Name       string          `gorm:"uniqueIndex;size:128;not null" json:"name"`
	PriceDelta decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price_delta"`

	types.Timestamps
}
