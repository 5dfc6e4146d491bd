package models

import (
	"ticketshop/src/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentTransaction is the audit record of one gateway registration.
type PaymentTransaction struct {
	ID          uint                    `gorm:"primarykey" json:"id"`
	RequestID   uuid.UUID               `gorm:"type:uuid;uniqueIndex" json:"request_id"`
	OrderID     uint                    `gorm:"index;not null" json:"order_id"`
	ReferenceID string                  `gorm:"index" json:"reference_id"`
	Amount      decimal.Decimal         `gorm:"type:numeric(12,2)" json:"amount"`
	Currency    string                  `json:"currency"`
	SourceName  string                  `json:"source_name"`
	Status      types.TransactionStatus `gorm:"type:text" json:"status"`

	types.Timestamps
}

func (t *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.RequestID == uuid.Nil {
		t.RequestID = uuid.New()
	}
	return nil
}
