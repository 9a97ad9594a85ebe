package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

// ReservationService reads and cancels reservations
type ReservationService interface {
	GetReservation(ctx context.Context, id string) (model.Reservation, error)
	Cancel(ctx context.Context, reservationID string) (model.Reservation, error)
}

// ReservationHandler handles reservation HTTP requests
type ReservationHandler struct {
	reservations ReservationService
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(reservations ReservationService) *ReservationHandler {
	return &ReservationHandler{reservations: reservations}
}

// Get handles GET /api/v1/reservations/:id
func (h *ReservationHandler) Get(c *gin.Context) {
	r, err := h.reservations.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Cancel handles POST /api/v1/reservations/:id/cancel. Cancelling twice is
// not an error.
func (h *ReservationHandler) Cancel(c *gin.Context) {
	r, err := h.reservations.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
