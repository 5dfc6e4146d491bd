package main

import (
	"errors"
	"io"
	"log"
	"net/http"
	"ticketshop/src/lib"
	"ticketshop/src/services"

	"github.com/gin-gonic/gin"
)

// stripeWebhookRoute reconciles orders from checkout session events. Events
// that cannot change the order any more are acknowledged so Stripe stops
// retrying them; gateway and database failures are not.
func stripeWebhookRoute(g *gin.Engine, e *services.Engine, whsecret string) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.POST("/webhook/stripe", func(ctx *gin.Context) {
		payload, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			log.Printf("Error reading request body: %s\n", err.Error())
			ctx.Status(http.StatusServiceUnavailable)
			return
		}
		event, err := lib.ParseCheckoutEvent(payload, ctx.GetHeader("Stripe-Signature"), whsecret)
		if err != nil {
			log.Printf("Error verifying webhook signature: %s\n", err.Error())
			ctx.Status(http.StatusBadRequest)
			return
		}
		log.Printf("[StripeEvent] %s\n", event.Type)
		if !event.Handled {
			ctx.Status(http.StatusNoContent)
			return
		}
		order, err := e.Payments.ReconcileByReference(ctx, event.Reference, event.Status)
		switch {
		case err == nil:
			log.Printf("[Stripe] Order %d is %s after %s\n", order.ID, order.Status, event.Type)
		case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrConflict):
			log.Printf("[Stripe] Ignoring %s for %s: %s\n", event.Type, event.Reference, err.Error())
		default:
			log.Printf("[Stripe] Error reconciling %s: %s\n", event.Reference, err.Error())
			ctx.Status(http.StatusInternalServerError)
			return
		}
		ctx.Status(http.StatusNoContent)
	})
	return apiv1
}
