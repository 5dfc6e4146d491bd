package types

import "time"

type Timestamps struct {
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Environment string

const (
	Local      Environment = "local"
	Test       Environment = "test"
	Production Environment = "production"
)

type OrderStatus string

const (
	ORDER_ANONYMOUS    OrderStatus = "anonymous"
	ORDER_ASSIGNED     OrderStatus = "assigned"
	ORDER_PENDING      OrderStatus = "pending"
	ORDER_PAID         OrderStatus = "paid"
	ORDER_SETTLED_FREE OrderStatus = "settled_free"
	ORDER_EXPIRED      OrderStatus = "expired"
	ORDER_CANCELLED    OrderStatus = "cancelled"
)

// Mutable reports whether tickets may still be added to or removed from an
// order in this status.
func (s OrderStatus) Mutable() bool {
	return s == ORDER_ANONYMOUS || s == ORDER_ASSIGNED
}

// Settled is true for the statuses in which the order's tickets are valid.
func (s OrderStatus) Settled() bool {
	return s == ORDER_PAID || s == ORDER_SETTLED_FREE
}

func (s OrderStatus) Terminal() bool {
	switch s {
	case ORDER_PAID, ORDER_SETTLED_FREE, ORDER_EXPIRED, ORDER_CANCELLED:
		return true
	}
	return false
}

// RequiresOwner reports the owner invariant for the status: every status but
// ANONYMOUS carries a user.
func (s OrderStatus) RequiresOwner() bool {
	return s != ORDER_ANONYMOUS
}

// GatewayStatus is the payment status reported by the external gateway.
type GatewayStatus string

const (
	GATEWAY_PENDING   GatewayStatus = "pending"
	GATEWAY_PAID      GatewayStatus = "paid"
	GATEWAY_EXPIRED   GatewayStatus = "expired"
	GATEWAY_CANCELLED GatewayStatus = "cancelled"
)

type TransactionStatus string

const (
	TRANSACTION_PENDING   TransactionStatus = "pending"
	TRANSACTION_COMPLETED TransactionStatus = "paid"
	TRANSACTION_CANCELED  TransactionStatus = "canceled"
	TRANSACTION_EXPIRED   TransactionStatus = "expired"
	// paid at the gateway after the order expired or was cancelled; needs a refund
	TRANSACTION_PAID_LATE TransactionStatus = "paid_late"
)

type TokenKind string

const (
	TOKEN_PASSWORD_RESET  TokenKind = "password_reset"
	TOKEN_VERIFICATION    TokenKind = "verification"
	TOKEN_TEAM_INVITE     TokenKind = "team_invite"
	TOKEN_TICKET_TRANSFER TokenKind = "ticket_transfer"
)

const (
	ROLE_USER  = "user"
	ROLE_ADMIN = "admin"
)

type SimpleRequestParams struct {
	ID uint `uri:"id" binding:"required"`
}

type OrderTicketURIParams struct {
	OrderID  uint `uri:"id" binding:"required"`
	TicketID uint `uri:"ticketId" binding:"required"`
}

type TokenURIParams struct {
	Token string `uri:"token" binding:"required,uuid"`
}

type RFIDURIParams struct {
	RFID string `uri:"rfid" binding:"required,rfid"`
}

type TicketRequestBody struct {
	Type    string   `json:"type" binding:"required"`
	Options []string `json:"options,omitempty"`
}

type TransferRequestBody struct {
	Email string `json:"email" binding:"required,email"`
}

type CreateRFIDLinkRequestBody struct {
	RFID     string `json:"rfid" binding:"required,rfid"`
	TicketID uint   `json:"ticket" binding:"required"`
}

type CreateTicketTypeRequestBody struct {
	Name     string    `json:"name" binding:"required"`
	Price    string    `json:"price" binding:"required,numeric"`
	Capacity uint      `json:"capacity,omitempty"`
	SaleEnd  time.Time `json:"sale_end" binding:"required"`
	Buyable  bool      `json:"buyable,omitempty"`
	Options  []string  `json:"options,omitempty"`
}

type UpdateTicketTypeRequestBody struct {
	Price    *string    `json:"price,omitempty" binding:"omitempty,numeric"`
	Capacity *uint      `json:"capacity,omitempty"`
	Buyable  *bool      `json:"buyable,omitempty"`
	SaleEnd  *time.Time `json:"sale_end,omitempty"`
}

type CreateTicketOptionRequestBody struct {
	Name       string `json:"name" binding:"required"`
	PriceDelta string `json:"price_delta" binding:"required,numeric"`
}
