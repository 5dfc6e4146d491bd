package lib

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketAllocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketshop_ticket_allocations_total",
			Help: "Ticket allocation attempts by ticket type and result",
		},
		[]string{"ticket_type", "result"},
	)

	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketshop_order_transitions_total",
			Help: "Order status transitions",
		},
		[]string{"from", "to"},
	)

	sweptOrders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketshop_expiry_sweep_orders_total",
			Help: "Orders handled by the expiry sweep by outcome",
		},
		[]string{"outcome"},
	)

	gatewayRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticketshop_payment_gateway_request_seconds",
			Help:    "Latency of payment gateway calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)

	latePayments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketshop_late_payments_total",
			Help: "Payments reported for orders that already expired or were cancelled",
		},
	)

	transferTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketshop_transfer_tokens_total",
			Help: "Transfer token lifecycle events",
		},
		[]string{"event"},
	)
)

func RecordAllocation(ticketType, result string) {
	ticketAllocations.WithLabelValues(ticketType, result).Inc()
}

func RecordOrderTransition(from, to string) {
	orderTransitions.WithLabelValues(from, to).Inc()
}

func RecordSweptOrder(outcome string) {
	sweptOrders.WithLabelValues(outcome).Inc()
}

func RecordGatewayRequest(operation string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	gatewayRequests.WithLabelValues(operation, result).Observe(time.Since(started).Seconds())
}

func RecordLatePayment() {
	latePayments.Inc()
}

func RecordTransferToken(event string) {
	transferTokens.WithLabelValues(event).Inc()
}
