package services

import (
	"context"
	"fmt"
	"log"
	"ticketshop/src/config"
	"ticketshop/src/lib"
	"ticketshop/src/models"
	"ticketshop/src/types"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// PaymentGateway is the external payment provider. The reference returned by
// RegisterOrder identifies the payment in every later call and webhook.
type PaymentGateway interface {
	RegisterOrder(ctx context.Context, order *models.Order) (reference string, paymentURL string, err error)
	GetPaymentURL(ctx context.Context, reference string) (string, error)
	PollStatus(ctx context.Context, reference string) (types.GatewayStatus, error)
	// ExpirePayment closes an open payment so it can no longer be paid.
	ExpirePayment(ctx context.Context, reference string) error
}

// ReferenceCache remembers which order a payment reference belongs to.
type ReferenceCache interface {
	Remember(ctx context.Context, reference string, orderID uint) error
	Lookup(ctx context.Context, reference string) (uint, bool, error)
	Forget(ctx context.Context, reference string) error
}

// Notifier delivers mails. Calls are made from a separate goroutine and
// their errors are only logged.
type Notifier interface {
	SendOrderConfirmation(order *models.Order, recipient *models.User) error
	SendTransferInvitation(token *models.Token, ticket *models.Ticket, source *models.User) error
}

type UserDirectory interface {
	Resolve(ctx context.Context, email string) (*models.User, error)
	Get(ctx context.Context, id uint) (*models.User, error)
}

type Settings struct {
	MaxTicketsPerOrder int
	OrderStayAlive     time.Duration
	SweepInterval      time.Duration
	TransferTokenTTL   time.Duration
	RFIDLength         int
	PaymentTimeout     time.Duration
	Currency           string
	AppHost            string
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MaxTicketsPerOrder: cfg.MaxTicketsPerOrder,
		OrderStayAlive:     cfg.OrderStayAlive,
		SweepInterval:      cfg.SweepInterval,
		TransferTokenTTL:   cfg.TransferTokenTTL,
		RFIDLength:         cfg.RFIDLength,
		PaymentTimeout:     cfg.PaymentTimeout,
		Currency:           cfg.Currency,
		AppHost:            cfg.AppHost,
	}
}

type Dependencies struct {
	DB       *gorm.DB
	Clock    clockwork.Clock
	Gateway  PaymentGateway
	Cache    ReferenceCache
	Notifier Notifier
	Users    UserDirectory
	Settings Settings
}

// Engine bundles the lifecycle services. They share one lock table, so the
// per-order, per-type and per-ticket exclusion holds across all of them.
type Engine struct {
	Catalog   *CatalogService
	Allocator *TicketAllocator
	Orders    *OrderService
	Tickets   *TicketService
	Payments  *PaymentCoordinator
	Transfers *TransferTokenService
	RFID      *RFIDLinkRegistry
	Expiry    *ExpiryScheduler
	Users     UserDirectory
}

func NewEngine(deps Dependencies) *Engine {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Users == nil {
		deps.Users = NewDBUserDirectory(deps.DB)
	}
	if deps.Cache == nil {
		deps.Cache = noopCache{}
	}
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	s := deps.Settings
	locks := lib.NewKeyedMutex()
	notify := &notifications{notifier: deps.Notifier, users: deps.Users}

	catalog := &CatalogService{db: deps.DB, clock: deps.Clock, locks: locks}
	allocator := &TicketAllocator{db: deps.DB, clock: deps.Clock, locks: locks, catalog: catalog}
	payments := newPaymentCoordinator(deps.DB, deps.Clock, locks, deps.Gateway, deps.Cache, s)
	orders := &OrderService{
		db:         deps.DB,
		clock:      deps.Clock,
		locks:      locks,
		allocator:  allocator,
		payments:   payments,
		users:      deps.Users,
		notify:     notify,
		maxTickets: s.MaxTicketsPerOrder,
		appHost:    s.AppHost,
	}
	payments.orders = orders
	return &Engine{
		Catalog:   catalog,
		Allocator: allocator,
		Orders:    orders,
		Tickets:   &TicketService{db: deps.DB, locks: locks},
		Payments:  payments,
		Transfers: &TransferTokenService{db: deps.DB, clock: deps.Clock, locks: locks, users: deps.Users, notify: notify, ttl: s.TransferTokenTTL},
		RFID:      &RFIDLinkRegistry{db: deps.DB, clock: deps.Clock, locks: locks, length: s.RFIDLength},
		Expiry:    &ExpiryScheduler{db: deps.DB, clock: deps.Clock, orders: orders, payments: payments, stayAlive: s.OrderStayAlive, interval: s.SweepInterval},
		Users:     deps.Users,
	}
}

func orderKey(id uint) string  { return fmt.Sprintf("order:%d", id) }
func typeKey(id uint) string   { return fmt.Sprintf("type:%d", id) }
func ticketKey(id uint) string { return fmt.Sprintf("ticket:%d", id) }
func rfidKey(rfid string) string {
	return "rfid:" + rfid
}

type notifications struct {
	notifier Notifier
	users    UserDirectory
}

func (n *notifications) orderConfirmed(order *models.Order) {
	ownerID, ok := order.Owner.UserID()
	if !ok {
		return
	}
	go func() {
		user, err := n.users.Get(context.Background(), ownerID)
		if err != nil {
			log.Printf("[notify] Could not load owner of order %d: %s\n", order.ID, err.Error())
			return
		}
		if err := n.notifier.SendOrderConfirmation(order, user); err != nil {
			log.Printf("[notify] Error sending confirmation for order %d: %s\n", order.ID, err.Error())
		}
	}()
}

func (n *notifications) transferOffered(token *models.Token, ticket *models.Ticket, source *models.User) {
	go func() {
		if err := n.notifier.SendTransferInvitation(token, ticket, source); err != nil {
			log.Printf("[notify] Error sending transfer invitation for ticket %d: %s\n", ticket.ID, err.Error())
		}
	}()
}

type noopNotifier struct{}

func (noopNotifier) SendOrderConfirmation(*models.Order, *models.User) error { return nil }

func (noopNotifier) SendTransferInvitation(*models.Token, *models.Ticket, *models.User) error {
	return nil
}

type noopCache struct{}

func (noopCache) Remember(context.Context, string, uint) error { return nil }

func (noopCache) Lookup(context.Context, string) (uint, bool, error) { return 0, false, nil }

func (noopCache) Forget(context.Context, string) error { return nil }
