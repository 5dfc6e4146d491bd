package main

import (
	"net/http"
	"ticketshop/src/services"
	"ticketshop/src/types"

	"github.com/gin-gonic/gin"
)

func rfidHandlers(g *gin.RouterGroup, e *services.Engine) *gin.RouterGroup {
	g.
		POST("/rfid", func(ctx *gin.Context) {
			var body types.CreateRFIDLinkRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			link, err := e.RFID.AddRFIDLink(ctx, body.RFID, body.TicketID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": link})
		}).
		GET("/rfid/:rfid", func(ctx *gin.Context) {
			var params types.RFIDURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			link, err := e.RFID.Get(ctx, params.RFID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": link})
		}).
		DELETE("/rfid/:rfid", func(ctx *gin.Context) {
			var params types.RFIDURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			link, err := e.RFID.RemoveRFIDLink(ctx, params.RFID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": link})
		}).
		DELETE("/tickets/:id/rfid", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			link, err := e.RFID.RemoveRFIDLinkForTicket(ctx, params.ID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": link})
		})
	return g
}
