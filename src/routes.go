package main

import (
	"errors"
	"log"
	"net/http"
	"ticketshop/src/config"
	"ticketshop/src/middlewares"
	"ticketshop/src/models"
	"ticketshop/src/services"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	apiPrefix string = "/api/v1"
)

func setupRouter() *gin.Engine {
	router := gin.Default()
	router.Use(middlewares.SecureHeaders)
	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

func maintenanceModeMiddleware(g *gin.Engine) *gin.Engine {
	g.Use(func(ctx *gin.Context) {
		if config.IsMaintenanceMode() {
			err := errors.New("server is under maintenance")
			log.Println(err.Error())
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, err.Error())
			return
		}
	})
	return g
}

func apiv1Group(g *gin.Engine) *gin.RouterGroup {
	apiv1 := g.Group(apiPrefix)
	return apiv1
}

// registerRoutes mounts every API route served by the engine.
func registerRoutes(g *gin.Engine, e *services.Engine, cfg *config.Config) {
	stripeWebhookRoute(g, e, cfg.StripeWebhookSecret)
	apiv1 := apiv1Group(g)
	publicCatalogRoutes(apiv1, e)
	orderHandlers(apiv1, e)
	accountHandlers(apiv1, e, cfg.AppHost)
	transferHandlers(apiv1, e)
	admin := apiv1.Group("/admin", middlewares.AuthMiddleware, middlewares.AdminMiddleware)
	catalogHandlers(admin, e)
	rfidHandlers(admin, e)
	adminOrderHandlers(admin, e)
}

func registerValidators(rfidLength int) {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("rfid", func(fl validator.FieldLevel) bool {
			return services.ValidRFID(fl.Field().String(), rfidLength)
		})
	}
}

// errorStatus maps the service error classes to response codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrExternal):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abortWithError(ctx *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("[api] %s %s: %s\n", ctx.Request.Method, ctx.FullPath(), err.Error())
		ctx.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	ctx.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func callerID(ctx *gin.Context) (uint, bool) {
	id := ctx.GetUint("id")
	return id, id != 0
}

func caller(ctx *gin.Context) *models.User {
	v, ok := ctx.Get("user")
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// canAccessOrder lets anyone reach an anonymous order and only the owner reach
// an assigned one.
func canAccessOrder(ctx *gin.Context, order *models.Order) bool {
	if !order.Owner.Present() {
		return true
	}
	id, ok := callerID(ctx)
	return ok && order.Owner.Is(id)
}
