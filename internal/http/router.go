// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dashr/internal/http/handlers"
	"dashr/internal/http/middleware"
	"dashr/internal/infra"
	"dashr/internal/metrics"
	"dashr/internal/modules/order"
)

type RouterDeps struct {
	Orders     handlers.OrderService
	Deliveries handlers.DeliveryService
	Drivers    handlers.DriverService
	Locations  handlers.LocationService
	Stats      handlers.StatsService
	Verifier   infra.TokenVerifier
	Metrics    *metrics.Metrics
	Limiter    *middleware.RateLimiter
	Log        *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(d.Log), middleware.Logging(d.Log))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(d.Verifier))
	if d.Limiter != nil {
		api.Use(d.Limiter.Handler())
	}

	customer := string(order.RoleCustomer)
	driver := string(order.RoleDriver)
	staff := string(order.RoleCompanyMember)
	admin := string(order.RoleAdmin)

	orders := handlers.NewOrderHandler(d.Orders)
	api.POST("/orders", middleware.RequireRole(customer), orders.Create)
	api.GET("/orders", middleware.RequireRole(customer), orders.List)
	api.GET("/orders/:id", orders.Get)
	api.GET("/orders/:id/events", orders.Events)

	venues := api.Group("/venues/:id", middleware.RequireRole(staff, admin))
	venues.GET("/orders", orders.VenueList)
	venues.POST("/orders/:orderID/accept", orders.VenueAccept)
	venues.POST("/orders/:orderID/reject", orders.VenueReject)

	drivers := handlers.NewDriverHandler(d.Orders, d.Deliveries, d.Drivers, d.Locations)
	onlyDriver := middleware.RequireRole(driver)
	api.GET("/driver/delivery-requests", onlyDriver, drivers.ListRequests)
	api.POST("/delivery-requests/:id/accept", onlyDriver, drivers.AcceptRequest)
	api.POST("/delivery-requests/:id/reject", onlyDriver, drivers.RejectRequest)
	driverOrders := api.Group("/driver/orders/:id", onlyDriver)
	driverOrders.POST("/pickup", drivers.PickUp)
	driverOrders.POST("/identification", drivers.Identification)
	driverOrders.POST("/deliver", drivers.Deliver)
	driverOrders.POST("/fail", drivers.Fail)
	driverOrders.POST("/return", drivers.Return)
	api.PUT("/driver/location", onlyDriver, drivers.Location)
	api.POST("/driver/availability", onlyDriver, drivers.Availability)

	statsHandler := handlers.NewStatsHandler(d.Stats)
	adminGroup := api.Group("/admin", middleware.RequireRole(admin))
	adminGroup.POST("/orders/:id/reject", orders.AdminReject)
	adminGroup.POST("/customers/:id/redact", orders.AdminRedactCustomer)
	adminGroup.GET("/stats", statsHandler.Get)

	return r
}
