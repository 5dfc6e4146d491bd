package lib

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"ticketshop/src/models"
	"ticketshop/src/types"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

var stripeClient *stripe.Client

func GetStripeClient() *stripe.Client {
	if stripeClient != nil {
		return stripeClient
	}
	apiKey := os.Getenv("STRIPE_SECRET_KEY")
	sc := stripe.NewClient(apiKey)
	stripeClient = sc

	return sc
}

func NewStripeClient(c *stripe.Client) {
	stripeClient = c
}

// StripeGateway registers orders as Stripe Checkout sessions. The session ID
// is the payment reference.
type StripeGateway struct {
	client     *stripe.Client
	currency   string
	appHost    string
	sessionTTL time.Duration
}

// MinCheckoutSessionTTL is the shortest expiry Stripe accepts for a session.
const MinCheckoutSessionTTL = 30 * time.Minute

func NewStripeGateway(c *stripe.Client, currency, appHost string, sessionTTL time.Duration) *StripeGateway {
	return &StripeGateway{client: c, currency: currency, appHost: appHost, sessionTTL: sessionTTL}
}

// CheckoutSessionExpiry is the unix time at which a session opened at now
// stops accepting payments.
func CheckoutSessionExpiry(now time.Time, ttl time.Duration) int64 {
	if ttl < MinCheckoutSessionTTL {
		ttl = MinCheckoutSessionTTL
	}
	return now.Add(ttl).Unix()
}

func (g *StripeGateway) RegisterOrder(ctx context.Context, order *models.Order) (string, string, error) {
	orderID := strconv.FormatUint(uint64(order.ID), 10)
	lineItems := make([]*stripe.CheckoutSessionCreateLineItemParams, 0, len(order.Tickets))
	for i := range order.Tickets {
		ticket := &order.Tickets[i]
		lineItems = append(lineItems, &stripe.CheckoutSessionCreateLineItemParams{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency:   stripe.String(g.currency),
				UnitAmount: stripe.Int64(ToMinorUnits(ticket.Price())),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripe.String(ticket.TicketType.Name),
				},
			},
			Quantity: stripe.Int64(1),
		})
	}
	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(orderID),
		SuccessURL:        stripe.String(fmt.Sprintf("%s/orders/%s/confirmation", g.appHost, orderID)),
		CancelURL:         stripe.String(fmt.Sprintf("%s/orders/%s", g.appHost, orderID)),
		LineItems:         lineItems,
		ExpiresAt:         stripe.Int64(CheckoutSessionExpiry(time.Now(), g.sessionTTL)),
		Metadata: map[string]string{
			"orderId": orderID,
		},
	}
	cs, err := g.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return "", "", err
	}
	return cs.ID, cs.URL, nil
}

func (g *StripeGateway) GetPaymentURL(ctx context.Context, reference string) (string, error) {
	cs, err := g.client.V1CheckoutSessions.Retrieve(ctx, reference, &stripe.CheckoutSessionRetrieveParams{})
	if err != nil {
		return "", err
	}
	if cs.URL == "" {
		return "", fmt.Errorf("checkout session %s has no payment url (status %s)", cs.ID, cs.Status)
	}
	return cs.URL, nil
}

func (g *StripeGateway) PollStatus(ctx context.Context, reference string) (types.GatewayStatus, error) {
	cs, err := g.client.V1CheckoutSessions.Retrieve(ctx, reference, &stripe.CheckoutSessionRetrieveParams{})
	if err != nil {
		return "", err
	}
	return CheckoutSessionStatus(cs), nil
}

// ExpirePayment closes an open checkout session.
func (g *StripeGateway) ExpirePayment(ctx context.Context, reference string) error {
	_, err := g.client.V1CheckoutSessions.Expire(ctx, reference, &stripe.CheckoutSessionExpireParams{})
	return err
}

// CheckoutSessionStatus maps a checkout session onto the gateway status set.
// A completed session whose asynchronous payment is still clearing stays pending.
func CheckoutSessionStatus(cs *stripe.CheckoutSession) types.GatewayStatus {
	switch cs.Status {
	case stripe.CheckoutSessionStatusComplete:
		if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
			cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
			return types.GATEWAY_PAID
		}
		return types.GATEWAY_PENDING
	case stripe.CheckoutSessionStatusExpired:
		return types.GATEWAY_EXPIRED
	}
	return types.GATEWAY_PENDING
}

// ToMinorUnits converts an amount to the smallest currency unit, e.g. cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

type CheckoutEvent struct {
	Type      string
	Reference string
	Status    types.GatewayStatus
	// Handled is false for event types that carry no order status.
	Handled bool
}

// ParseCheckoutEvent verifies the webhook signature and extracts the checkout
// session status change carried by the event.
func ParseCheckoutEvent(payload []byte, signature, secret string) (*CheckoutEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, err
	}
	out := &CheckoutEvent{Type: string(event.Type)}
	var status types.GatewayStatus
	switch event.Type {
	case "checkout.session.completed":
		status = ""
	case "checkout.session.async_payment_succeeded":
		status = types.GATEWAY_PAID
	case "checkout.session.async_payment_failed":
		status = types.GATEWAY_CANCELLED
	case "checkout.session.expired":
		status = types.GATEWAY_EXPIRED
	default:
		return out, nil
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("error parsing CheckoutSession: %w", err)
	}
	if status == "" {
		// completed sessions may still wait on a delayed payment method
		status = CheckoutSessionStatus(&cs)
	}
	out.Reference = cs.ID
	out.Status = status
	out.Handled = true
	return out, nil
}
