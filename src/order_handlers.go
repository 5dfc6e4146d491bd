package main

import (
	"net/http"
	"ticketshop/src/middlewares"
	"ticketshop/src/models"
	"ticketshop/src/services"
	"ticketshop/src/types"

	"github.com/gin-gonic/gin"
)

func orderHandlers(g *gin.RouterGroup, e *services.Engine) *gin.RouterGroup {
	cart := g.Group("/orders", middlewares.OptionalAuthMiddleware)
	cart.
		POST("", func(ctx *gin.Context) {
			var body types.TicketRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			order, err := e.Orders.Create(ctx, body.Type, body.Options)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": order})
		}).
		GET("/:id", func(ctx *gin.Context) {
			order, ok := accessibleOrder(ctx, e)
			if !ok {
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": order})
		}).
		POST("/:id/tickets", func(ctx *gin.Context) {
			var body types.TicketRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			order, ok := accessibleOrder(ctx, e)
			if !ok {
				return
			}
			order, err := e.Orders.AddTicketToOrder(ctx, order.ID, body.Type, body.Options)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": order})
		}).
		DELETE("/:id/tickets/:ticketId", func(ctx *gin.Context) {
			var params types.OrderTicketURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			if _, ok := accessibleOrder(ctx, e); !ok {
				return
			}
			order, err := e.Orders.RemoveTicketFromOrder(ctx, params.OrderID, params.TicketID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": order})
		})

	owned := g.Group("/orders", middlewares.AuthMiddleware)
	owned.
		PUT("/:id/assign", func(ctx *gin.Context) {
			order, ok := accessibleOrder(ctx, e)
			if !ok {
				return
			}
			order, err := e.Orders.AssignOrderToUser(ctx, order.ID, ctx.GetString("email"))
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": order})
		}).
		POST("/:id/checkout", func(ctx *gin.Context) {
			order, ok := accessibleOrder(ctx, e)
			if !ok {
				return
			}
			url, err := e.Orders.RequestPayment(ctx, order.ID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"url": url})
		}).
		GET("/:id/payment", func(ctx *gin.Context) {
			order, ok := accessibleOrder(ctx, e)
			if !ok {
				return
			}
			url, err := e.Orders.GetPaymentURL(ctx, order.ID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"url": url})
		}).
		PUT("/:id/status", func(ctx *gin.Context) {
			order, ok := accessibleOrder(ctx, e)
			if !ok {
				return
			}
			order, err := e.Payments.UpdateOrderStatusByOrderID(ctx, order.ID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": order})
		})
	return g
}

// accessibleOrder loads the order named in the path and writes the error
// response when it is missing or belongs to someone else.
func accessibleOrder(ctx *gin.Context, e *services.Engine) (*models.Order, bool) {
	var params types.SimpleRequestParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.AbortWithStatus(http.StatusBadRequest)
		return nil, false
	}
	order, err := e.Orders.Get(ctx, params.ID)
	if err != nil {
		abortWithError(ctx, err)
		return nil, false
	}
	if !canAccessOrder(ctx, order) {
		ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "order belongs to another user"})
		return nil, false
	}
	return order, true
}

func adminOrderHandlers(g *gin.RouterGroup, e *services.Engine) *gin.RouterGroup {
	g.
		POST("/orders", func(ctx *gin.Context) {
			var body types.TicketRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			order, err := e.Orders.CreateOverride(ctx, body.Type, body.Options)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": order})
		}).
		GET("/orders/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			order, err := e.Orders.Get(ctx, params.ID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": order})
		}).
		DELETE("/orders/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			if err := e.Orders.DeleteOrder(ctx, params.ID); err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.Status(http.StatusNoContent)
		}).
		DELETE("/tickets/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			if err := e.Tickets.DeleteTicket(ctx, params.ID); err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.Status(http.StatusNoContent)
		})
	return g
}
