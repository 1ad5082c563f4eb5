package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/domain"
	"carpool/internal/middleware"
	"carpool/internal/service"
)

// RequestHandler handles HTTP requests for seat requests.
type RequestHandler struct {
	requestService *service.RequestService
	rideService    *service.RideService
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(requestService *service.RequestService, rideService *service.RideService) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
		rideService:    rideService,
	}
}

// SubmitRequest is the HTTP request body for requesting a seat.
type SubmitRequest struct {
	RideID string `json:"ride_id"`
}

// RequestResponse is the HTTP response for seat request operations.
type RequestResponse struct {
	ID            string  `json:"id"`
	RideID        string  `json:"ride_id"`
	PassengerID   string  `json:"passenger_id"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
	FeeAmount     float64 `json:"fee_amount,omitempty"`
	PayoutAmount  float64 `json:"payout_amount,omitempty"`
	CompletedAt   string  `json:"completed_at,omitempty"`
}

// CancelByPassengerResponse is the HTTP response for a passenger leaving a ride.
type CancelByPassengerResponse struct {
	Request    RequestResponse     `json:"request"`
	Assessment *AssessmentResponse `json:"assessment,omitempty"`
}

func requestResponse(req *domain.RideRequest) RequestResponse {
	r := RequestResponse{
		ID:            req.ID,
		RideID:        req.RideID,
		PassengerID:   req.PassengerID,
		Status:        string(req.Status),
		PaymentStatus: string(req.PaymentStatus),
		FeeAmount:     req.FeeAmount,
		PayoutAmount:  req.PayoutAmount,
	}
	if !req.CompletedAt.IsZero() {
		r.CompletedAt = req.CompletedAt.Format(time.RFC3339)
	}
	return r
}

// Submit handles POST /v1/requests
func (h *RequestHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.requestService.SubmitRequest(c.Request.Context(), req.RideID, middleware.ActorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, requestResponse(result))
}

// GetRequest handles GET /v1/requests/:id
func (h *RequestHandler) GetRequest(c *gin.Context) {
	req, err := h.requestService.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, requestResponse(req))
}

// Approve handles POST /v1/requests/:id/approve
func (h *RequestHandler) Approve(c *gin.Context) {
	req, err := h.requestService.Approve(c.Request.Context(), c.Param("id"), middleware.ActorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, requestResponse(req))
}

// Reject handles POST /v1/requests/:id/reject
func (h *RequestHandler) Reject(c *gin.Context) {
	req, err := h.requestService.Reject(c.Request.Context(), c.Param("id"), middleware.ActorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, requestResponse(req))
}

// Withdraw handles POST /v1/requests/:id/withdraw
func (h *RequestHandler) Withdraw(c *gin.Context) {
	req, err := h.requestService.Withdraw(c.Request.Context(), c.Param("id"), middleware.ActorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, requestResponse(req))
}

// CancelByPassenger handles POST /v1/requests/:id/cancel
func (h *RequestHandler) CancelByPassenger(c *gin.Context) {
	result, err := h.rideService.CancelByPassenger(c.Request.Context(), c.Param("id"), middleware.ActorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CancelByPassengerResponse{
		Request:    requestResponse(result.Request),
		Assessment: assessmentResponse(result.Assessment),
	})
}

// RemovePassenger handles POST /v1/requests/:id/remove
func (h *RequestHandler) RemovePassenger(c *gin.Context) {
	req, err := h.rideService.CancelSinglePassenger(c.Request.Context(), c.Param("id"), middleware.ActorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, requestResponse(req))
}
