// README: Driver handlers for delivery requests, handover steps, availability and location.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dashr/internal/modules/delivery"
	"dashr/internal/modules/driver"
	"dashr/internal/modules/location"
	"dashr/internal/modules/order"
	"dashr/internal/types"
)

type DeliveryService interface {
	ListPending(ctx context.Context, driverID types.ID) ([]*delivery.Request, error)
	Accept(ctx context.Context, driverID, requestID types.ID) (*order.Order, error)
	Reject(ctx context.Context, driverID, requestID types.ID) (*delivery.Request, error)
}

type DriverService interface {
	SetAvailability(ctx context.Context, id types.ID, available bool) (*driver.Driver, error)
}

type LocationService interface {
	Update(ctx context.Context, u location.Update) (bool, error)
}

type DriverHandler struct {
	order      OrderService
	deliveries DeliveryService
	drivers    DriverService
	locations  LocationService
}

func NewDriverHandler(orderSvc OrderService, deliveries DeliveryService, drivers DriverService, locations LocationService) *DriverHandler {
	return &DriverHandler{order: orderSvc, deliveries: deliveries, drivers: drivers, locations: locations}
}

func (h *DriverHandler) ListRequests(c *gin.Context) {
	reqs, err := h.deliveries.ListPending(c.Request.Context(), actor(c).ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]requestView, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, newRequestView(r))
	}
	writeJSON(c, http.StatusOK, gin.H{"delivery_requests": out})
}

func (h *DriverHandler) AcceptRequest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.deliveries.Accept(c.Request.Context(), actor(c).ID, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newOrderView(o))
}

func (h *DriverHandler) RejectRequest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.deliveries.Reject(c.Request.Context(), actor(c).ID, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newRequestView(r))
}

// orderAction runs a driver step on the order in the path and writes the updated order.
func (h *DriverHandler) orderAction(c *gin.Context, step func(ctx context.Context, a order.Actor, id types.ID) (*order.Order, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := step(c.Request.Context(), actor(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newOrderView(o))
}

func (h *DriverHandler) PickUp(c *gin.Context) {
	h.orderAction(c, h.order.PickUp)
}

func (h *DriverHandler) Deliver(c *gin.Context) {
	h.orderAction(c, h.order.Deliver)
}

func (h *DriverHandler) Return(c *gin.Context) {
	h.orderAction(c, h.order.Return)
}

type identificationReq struct {
	Verified *bool `json:"verified" binding:"required"`
}

func (h *DriverHandler) Identification(c *gin.Context) {
	var req identificationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "verified is required")
		return
	}
	h.orderAction(c, func(ctx context.Context, a order.Actor, id types.ID) (*order.Order, error) {
		return h.order.VerifyIdentification(ctx, a, id, *req.Verified)
	})
}

func (h *DriverHandler) Fail(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	h.orderAction(c, func(ctx context.Context, a order.Actor, id types.ID) (*order.Order, error) {
		return h.order.Fail(ctx, a, id, reason)
	})
}

type availabilityReq struct {
	Available *bool `json:"available" binding:"required"`
}

func (h *DriverHandler) Availability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "available is required")
		return
	}
	d, err := h.drivers.SetAvailability(c.Request.Context(), actor(c).ID, *req.Available)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newDriverView(d))
}

type locationReq struct {
	Lat        float64    `json:"lat"`
	Lng        float64    `json:"lng"`
	RecordedAt *time.Time `json:"recorded_at"`
}

// Location stores the caller's position; a position older than the stored one is accepted but ignored.
func (h *DriverHandler) Location(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	at := time.Now()
	if req.RecordedAt != nil {
		at = *req.RecordedAt
	}
	applied, err := h.locations.Update(c.Request.Context(), location.Update{
		DriverID:   actor(c).ID,
		Position:   types.Point{Lat: req.Lat, Lng: req.Lng},
		RecordedAt: at,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"applied": applied})
}
