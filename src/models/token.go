package models

import (
	"ticketshop/src/types"
	"time"
)

// Token is a random secret bound to a user with an expiry and a used flag.
// Kind selects the payload: ticket transfers carry TicketID and
// DestinationEmail, every other kind carries nothing extra.
type Token struct {
	ID        uint            `gorm:"primarykey" json:"-"`
	Value     string          `gorm:"uniqueIndex;size:64;not null" json:"token"`
	Kind      types.TokenKind `gorm:"type:text;index;not null" json:"kind"`
	UserID    uint            `gorm:"index;not null" json:"user_id"`
	ExpiresAt time.Time       `json:"expires_at"`
	Used      bool            `json:"used"`

	TicketID         *uint   `gorm:"index" json:"ticket_id,omitempty"`
	DestinationEmail *string `json:"destination_email,omitempty"`

	types.Timestamps
}

// IsValid reports whether the token can still be redeemed at now.
func (t *Token) IsValid(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

type TicketTransfer struct {
	TicketID         uint
	SourceUserID     uint
	DestinationEmail string
}

// Transfer returns the ticket transfer payload of the token, if it is one.
func (t *Token) Transfer() (TicketTransfer, bool) {
	if t.Kind != types.TOKEN_TICKET_TRANSFER || t.TicketID == nil || t.DestinationEmail == nil {
		return TicketTransfer{}, false
	}
	return TicketTransfer{
		TicketID:         *t.TicketID,
		SourceUserID:     t.UserID,
		DestinationEmail: *t.DestinationEmail,
	}, true
}

func NewTicketTransferToken(value string, ticketID, sourceUserID uint, destination string, expiresAt time.Time) *Token {
	return &Token{
		Value:            value,
		Kind:             types.TOKEN_TICKET_TRANSFER,
		UserID:           sourceUserID,
		ExpiresAt:        expiresAt,
		TicketID:         &ticketID,
		DestinationEmail: &destination,
	}
}
