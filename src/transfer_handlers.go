package main

import (
	"net/http"
	"ticketshop/src/lib"
	"ticketshop/src/middlewares"
	"ticketshop/src/services"
	"ticketshop/src/types"

	"github.com/gin-gonic/gin"
)

func accountHandlers(g *gin.RouterGroup, e *services.Engine, appHost string) *gin.RouterGroup {
	me := g.Group("/me", middlewares.AuthMiddleware)
	me.
		GET("/orders", func(ctx *gin.Context) {
			id, _ := callerID(ctx)
			orders, err := e.Orders.ListForUser(ctx, id)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": orders, "count": len(orders)})
		}).
		GET("/tickets", func(ctx *gin.Context) {
			id, _ := callerID(ctx)
			tickets, err := e.Tickets.ListValidForUser(ctx, id)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": tickets, "count": len(tickets)})
		}).
		GET("/tickets/:id/eticket", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			ticket, err := e.Tickets.Get(ctx, params.ID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			if id, _ := callerID(ctx); !ticket.Owner.Is(id) || !ticket.Valid {
				ctx.JSON(http.StatusForbidden, gin.H{"error": "not a valid ticket of yours"})
				return
			}
			img, err := lib.TicketQRCode(appHost, ticket.ID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.Header("Content-Disposition", `attachment; filename="eticket.jpeg"`)
			ctx.Data(http.StatusOK, "image/jpeg", img)
		}).
		GET("/transfers", func(ctx *gin.Context) {
			id, _ := callerID(ctx)
			outgoing, err := e.Transfers.Outgoing(ctx, id)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			incoming, err := e.Transfers.Incoming(ctx, ctx.GetString("email"))
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"outgoing": outgoing, "incoming": incoming})
		})
	return me
}

func transferHandlers(g *gin.RouterGroup, e *services.Engine) *gin.RouterGroup {
	authed := g.Group("", middlewares.AuthMiddleware)
	authed.
		POST("/tickets/:id/transfer", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.TransferRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ticket, err := e.Tickets.Get(ctx, params.ID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			if id, _ := callerID(ctx); !ticket.Owner.Is(id) {
				ctx.JSON(http.StatusForbidden, gin.H{"error": "ticket belongs to another user"})
				return
			}
			token, err := e.Transfers.SetupForTransfer(ctx, ticket.ID, body.Email)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": token})
		}).
		POST("/transfers/:token/accept", func(ctx *gin.Context) {
			var params types.TokenURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			ticket, err := e.Transfers.TransferTicket(ctx, params.Token, caller(ctx))
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": ticket})
		}).
		DELETE("/transfers/:token", func(ctx *gin.Context) {
			var params types.TokenURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			if err := e.Transfers.CancelTicketTransfer(ctx, params.Token, caller(ctx)); err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.Status(http.StatusNoContent)
		})
	return authed
}
