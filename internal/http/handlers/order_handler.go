// README: Order handlers for checkout, lookup, history and venue decisions.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"dashr/internal/modules/order"
	"dashr/internal/types"
)

type OrderService interface {
	Create(ctx context.Context, cmd order.CreateCommand) (*order.Order, error)
	Get(ctx context.Context, actor order.Actor, orderID types.ID) (*order.Order, error)
	Events(ctx context.Context, actor order.Actor, orderID types.ID) ([]order.Event, error)
	ListForCustomer(ctx context.Context, actor order.Actor) ([]*order.Order, error)
	ListForVenue(ctx context.Context, actor order.Actor, venueID types.ID) ([]*order.Order, error)
	AcceptByVenue(ctx context.Context, actor order.Actor, orderID types.ID) (*order.Order, error)
	RejectByVenue(ctx context.Context, actor order.Actor, orderID types.ID, reason string) (*order.Order, error)
	RejectByAdmin(ctx context.Context, actor order.Actor, orderID types.ID, reason string) (*order.Order, error)
	PickUp(ctx context.Context, actor order.Actor, orderID types.ID) (*order.Order, error)
	VerifyIdentification(ctx context.Context, actor order.Actor, orderID types.ID, verified bool) (*order.Order, error)
	Deliver(ctx context.Context, actor order.Actor, orderID types.ID) (*order.Order, error)
	Fail(ctx context.Context, actor order.Actor, orderID types.ID, reason string) (*order.Order, error)
	Return(ctx context.Context, actor order.Actor, orderID types.ID) (*order.Order, error)
	RedactCustomer(ctx context.Context, actor order.Actor, customerID types.ID) (int64, error)
}

type OrderHandler struct {
	order OrderService
}

func NewOrderHandler(svc OrderService) *OrderHandler {
	return &OrderHandler{order: svc}
}

type itemReq struct {
	ItemID   string `json:"item_id" binding:"required"`
	Quantity int    `json:"quantity"`
}

type addressReq struct {
	Street string  `json:"street" binding:"required"`
	City   string  `json:"city"`
	Zip    string  `json:"zip"`
	Notes  string  `json:"notes"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
}

type createOrderReq struct {
	VenueID       string     `json:"venue_id" binding:"required"`
	Items         []itemReq  `json:"items" binding:"required,dive"`
	Address       addressReq `json:"address" binding:"required"`
	Tip           int64      `json:"tip"`
	PaymentMethod string     `json:"payment_method"`
	Card          order.Card `json:"card"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if !isValidID(req.VenueID) {
		writeError(c, http.StatusBadRequest, "invalid venue_id")
		return
	}
	caller := actor(c)
	items := make([]order.ItemQuantity, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.ItemQuantity{ItemID: types.ID(it.ItemID), Quantity: it.Quantity})
	}
	o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		Customer: order.Customer{ID: caller.ID, Name: req.Name, Email: req.Email, Phone: req.Phone},
		VenueID:  types.ID(req.VenueID),
		Address: order.Address{
			Street:   req.Address.Street,
			City:     req.Address.City,
			Zip:      req.Address.Zip,
			Notes:    req.Address.Notes,
			Location: types.Point{Lat: req.Address.Lat, Lng: req.Address.Lng},
		},
		Items:         items,
		Tip:           req.Tip,
		PaymentMethod: req.PaymentMethod,
		Card:          req.Card,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, newOrderView(o))
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.order.Get(c.Request.Context(), actor(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newOrderView(o))
}

func (h *OrderHandler) List(c *gin.Context) {
	orders, err := h.order.ListForCustomer(c.Request.Context(), actor(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": newOrderViews(orders)})
}

func (h *OrderHandler) Events(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	events, err := h.order.Events(c.Request.Context(), actor(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{Field: e.Field, From: e.From, To: e.To, ActorType: e.ActorType, ActorID: e.ActorID, At: e.CreatedAt})
	}
	writeJSON(c, http.StatusOK, gin.H{"events": out})
}

type reasonReq struct {
	Reason string `json:"reason"`
}

// bindReason accepts an empty body; the reason is optional unless the service requires it.
func bindReason(c *gin.Context) (string, bool) {
	var req reasonReq
	if c.Request.ContentLength == 0 {
		return "", true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	return req.Reason, true
}

func (h *OrderHandler) VenueList(c *gin.Context) {
	venueID, ok := pathID(c, "id")
	if !ok {
		return
	}
	orders, err := h.order.ListForVenue(c.Request.Context(), actor(c), venueID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": newOrderViews(orders)})
}

// venueOrder checks the order in the path belongs to the venue in the path.
func (h *OrderHandler) venueOrder(c *gin.Context) (types.ID, bool) {
	venueID, ok := pathID(c, "id")
	if !ok {
		return "", false
	}
	orderID, ok := pathID(c, "orderID")
	if !ok {
		return "", false
	}
	o, err := h.order.Get(c.Request.Context(), actor(c), orderID)
	if err != nil {
		writeServiceError(c, err)
		return "", false
	}
	if o.VenueID != venueID {
		writeError(c, http.StatusNotFound, order.ErrNotFound.Error())
		return "", false
	}
	return orderID, true
}

func (h *OrderHandler) VenueAccept(c *gin.Context) {
	orderID, ok := h.venueOrder(c)
	if !ok {
		return
	}
	o, err := h.order.AcceptByVenue(c.Request.Context(), actor(c), orderID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newOrderView(o))
}

func (h *OrderHandler) VenueReject(c *gin.Context) {
	orderID, ok := h.venueOrder(c)
	if !ok {
		return
	}
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	o, err := h.order.RejectByVenue(c.Request.Context(), actor(c), orderID, reason)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newOrderView(o))
}

func (h *OrderHandler) AdminReject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	o, err := h.order.RejectByAdmin(c.Request.Context(), actor(c), id, reason)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newOrderView(o))
}

func (h *OrderHandler) AdminRedactCustomer(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	n, err := h.order.RedactCustomer(c.Request.Context(), actor(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"redacted_orders": n})
}
