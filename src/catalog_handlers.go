package main

import (
	"net/http"
	"ticketshop/src/services"
	"ticketshop/src/types"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func catalogHandlers(g *gin.RouterGroup, e *services.Engine) *gin.RouterGroup {
	g.
		GET("/ticket-types", func(ctx *gin.Context) {
			ticketTypes, err := e.Catalog.ListTypes(ctx)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": ticketTypes, "count": len(ticketTypes)})
		}).
		GET("/ticket-types/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			ticketType, err := e.Catalog.GetTypeByID(ctx, params.ID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": ticketType})
		}).
		POST("/ticket-types", func(ctx *gin.Context) {
			var body types.CreateTicketTypeRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			price, err := decimal.NewFromString(body.Price)
			if err != nil || price.IsNegative() {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
				return
			}
			ticketType, err := e.Catalog.CreateType(ctx, services.TicketTypeParams{
				Name:     body.Name,
				Price:    price,
				Capacity: body.Capacity,
				SaleEnd:  body.SaleEnd,
				Buyable:  body.Buyable,
				Options:  body.Options,
			})
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": ticketType})
		}).
		PATCH("/ticket-types/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.UpdateTicketTypeRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			update := services.TicketTypeUpdate{
				Capacity: body.Capacity,
				SaleEnd:  body.SaleEnd,
				Buyable:  body.Buyable,
			}
			if body.Price != nil {
				price, err := decimal.NewFromString(*body.Price)
				if err != nil || price.IsNegative() {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
					return
				}
				update.Price = &price
			}
			ticketType, err := e.Catalog.UpdateType(ctx, params.ID, update)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": ticketType})
		}).
		POST("/ticket-types/:id/options", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body struct {
				Name string `json:"name" binding:"required"`
			}
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ticketType, err := e.Catalog.PermitOption(ctx, params.ID, body.Name)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": ticketType})
		}).
		POST("/ticket-options", func(ctx *gin.Context) {
			var body types.CreateTicketOptionRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			delta, err := decimal.NewFromString(body.PriceDelta)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid price delta"})
				return
			}
			option, err := e.Catalog.CreateOption(ctx, body.Name, delta)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": option})
		})
	return g
}

// publicCatalogRoutes lists what buyers can currently put in a cart.
func publicCatalogRoutes(g *gin.RouterGroup, e *services.Engine) *gin.RouterGroup {
	g.GET("/ticket-types", func(ctx *gin.Context) {
		ticketTypes, err := e.Catalog.ListTypes(ctx)
		if err != nil {
			abortWithError(ctx, err)
			return
		}
		buyable := ticketTypes[:0]
		for _, t := range ticketTypes {
			if t.Buyable {
				buyable = append(buyable, t)
			}
		}
		ctx.JSON(http.StatusOK, gin.H{"data": buyable, "count": len(buyable)})
	})
	g.GET("/ticket-types/:slug", func(ctx *gin.Context) {
		ticketType, err := e.Catalog.GetTypeBySlug(ctx, ctx.Param("slug"))
		if err != nil {
			abortWithError(ctx, err)
			return
		}
		if !ticketType.Buyable {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "ticket type not found"})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"data": ticketType})
	})
	return g
}
