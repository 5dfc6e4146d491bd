package boot

import (
	"log"
	"ticketshop/src/config"
	"ticketshop/src/db"
	"ticketshop/src/lib"
	"ticketshop/src/models"
	"ticketshop/src/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return db
}

// InitEngine wires the lifecycle services to Stripe, Redis and SMTP. A
// missing Stripe key leaves payments unavailable; a missing Redis host leaves
// reference lookups on the database.
func InitEngine(cfg *config.Config, d *gorm.DB) *services.Engine {
	return services.NewEngine(engineDependencies(cfg, d))
}

func engineDependencies(cfg *config.Config, d *gorm.DB) services.Dependencies {
	deps := services.Dependencies{
		DB:       d,
		Clock:    clockwork.NewRealClock(),
		Settings: services.SettingsFromConfig(cfg),
	}
	if cfg.StripeSecretKey != "" {
		deps.Gateway = lib.NewStripeGateway(lib.GetStripeClient(), cfg.Currency, cfg.AppHost, cfg.OrderStayAlive)
	} else {
		log.Println("[boot] STRIPE_SECRET_KEY not set, payments are disabled")
	}
	if rdb := lib.GetRedisClient(); rdb != nil {
		deps.Cache = lib.NewRedisReferenceCache(rdb, cfg.PaymentCacheTTL)
	}
	if cfg.SMTPHost != "" {
		deps.Notifier = lib.NewMailNotifier(cfg.MailFrom, cfg.AppHost)
	} else {
		log.Println("[boot] SMTP_HOST not set, mails are disabled")
	}
	return deps
}

// InitScheduler starts the expiry sweep on the engine's schedule.
func InitScheduler(e *services.Engine, clock clockwork.Clock) gocron.Scheduler {
	sched, err := lib.GetScheduler(clock)
	if err != nil {
		log.Fatalf("Error initializing scheduler: %s\n", err.Error())
	}
	if _, err := e.Expiry.Register(sched); err != nil {
		log.Fatalf("Error registering expiry job: %s\n", err.Error())
	}
	sched.Start()
	log.Println("Jobs in queue:", len(sched.Jobs()))
	return sched
}
