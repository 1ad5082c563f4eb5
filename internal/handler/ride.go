package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/domain"
	"carpool/internal/middleware"
	"carpool/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService         *service.RideService
	verificationService *service.VerificationService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService, verificationService *service.VerificationService) *RideHandler {
	return &RideHandler{
		rideService:         rideService,
		verificationService: verificationService,
	}
}

// PostRideRequest is the HTTP request body for posting a ride.
type PostRideRequest struct {
	Kind             string  `json:"kind,omitempty"` // DRIVER_POSTING, PASSENGER_REQUEST
	OriginCity       string  `json:"origin_city"`
	OriginArea       string  `json:"origin_area"`
	DestinationCity  string  `json:"destination_city"`
	DestinationArea  string  `json:"destination_area"`
	DepartureTime    string  `json:"departure_time"`
	ArrivalTime      string  `json:"arrival_time,omitempty"`
	Price            float64 `json:"price"`
	SeatsTotal       int     `json:"seats_total"`
	GenderPreference string  `json:"gender_preference,omitempty"` // NONE, MALE_ONLY, FEMALE_ONLY
}

// VerifyCodeRequest is the HTTP request body for code verification.
type VerifyCodeRequest struct {
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// RideResponse is the HTTP response for ride operations.
type RideResponse struct {
	ID               string  `json:"id"`
	Kind             string  `json:"kind"`
	DriverID         string  `json:"driver_id"`
	OriginCity       string  `json:"origin_city"`
	OriginArea       string  `json:"origin_area"`
	DestinationCity  string  `json:"destination_city"`
	DestinationArea  string  `json:"destination_area"`
	DepartureTime    string  `json:"departure_time"`
	ArrivalTime      string  `json:"arrival_time,omitempty"`
	Price            float64 `json:"price"`
	SeatsTotal       int     `json:"seats_total"`
	SeatsLeft        int     `json:"seats_left"`
	GenderPreference string  `json:"gender_preference"`
	Status           string  `json:"status"`
	StartedAt        string  `json:"started_at,omitempty"`
	CompletedAt      string  `json:"completed_at,omitempty"`
	CancelledAt      string  `json:"cancelled_at,omitempty"`
}

// CodeResponse is the HTTP response for code generation.
type CodeResponse struct {
	RideID string `json:"ride_id"`
	Code   string `json:"code"`
}

// CancelRideResponse is the HTTP response for ride cancellation.
type CancelRideResponse struct {
	Ride       RideResponse        `json:"ride"`
	Assessment *AssessmentResponse `json:"assessment,omitempty"`
}

// AssessmentResponse contains the penalty outcome of a cancellation.
type AssessmentResponse struct {
	StrikeCount    int     `json:"strike_count"`
	PenaltyApplied bool    `json:"penalty_applied"`
	PenaltyAmount  float64 `json:"penalty_amount,omitempty"`
}

// VerifyCompletionResponse is the HTTP response for leg settlement.
type VerifyCompletionResponse struct {
	Request       RequestResponse `json:"request"`
	RideCompleted bool            `json:"ride_completed"`
}

func rideResponse(ride *domain.Ride) RideResponse {
	r := RideResponse{
		ID:               ride.ID,
		Kind:             string(ride.Kind),
		DriverID:         ride.DriverID,
		OriginCity:       ride.OriginCity,
		OriginArea:       ride.OriginArea,
		DestinationCity:  ride.DestinationCity,
		DestinationArea:  ride.DestinationArea,
		DepartureTime:    ride.DepartureTime.Format(time.RFC3339),
		Price:            ride.Price,
		SeatsTotal:       ride.SeatsTotal,
		SeatsLeft:        ride.SeatsLeft,
		GenderPreference: string(ride.GenderPreference),
		Status:           string(ride.Status),
	}
	if !ride.ArrivalTime.IsZero() {
		r.ArrivalTime = ride.ArrivalTime.Format(time.RFC3339)
	}
	if !ride.StartedAt.IsZero() {
		r.StartedAt = ride.StartedAt.Format(time.RFC3339)
	}
	if !ride.CompletedAt.IsZero() {
		r.CompletedAt = ride.CompletedAt.Format(time.RFC3339)
	}
	if !ride.CancelledAt.IsZero() {
		r.CancelledAt = ride.CancelledAt.Format(time.RFC3339)
	}
	return r
}

func assessmentResponse(a *service.CancellationAssessment) *AssessmentResponse {
	if a == nil {
		return nil
	}
	return &AssessmentResponse{
		StrikeCount:    a.StrikeCount,
		PenaltyApplied: a.PenaltyApplied,
		PenaltyAmount:  a.PenaltyAmount,
	}
}

// PostRide handles POST /v1/rides
func (h *RideHandler) PostRide(c *gin.Context) {
	var req PostRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	departureTime, err := time.Parse(time.RFC3339, req.DepartureTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "departure_time must be RFC3339"})
		return
	}

	var arrivalTime time.Time
	if req.ArrivalTime != "" {
		arrivalTime, err = time.Parse(time.RFC3339, req.ArrivalTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "arrival_time must be RFC3339"})
			return
		}
	}

	ride, err := h.rideService.PostRide(c.Request.Context(), service.PostRideRequest{
		DriverID:         middleware.ActorID(c),
		Kind:             domain.RideKind(req.Kind),
		OriginCity:       req.OriginCity,
		OriginArea:       req.OriginArea,
		DestinationCity:  req.DestinationCity,
		DestinationArea:  req.DestinationArea,
		DepartureTime:    departureTime,
		ArrivalTime:      arrivalTime,
		Price:            req.Price,
		SeatsTotal:       req.SeatsTotal,
		GenderPreference: domain.GenderPreference(req.GenderPreference),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, rideResponse(ride))
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.rideService.GetRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, rideResponse(ride))
}

// SnapshotResponse is the lightweight polled view of a ride.
type SnapshotResponse struct {
	ID        string  `json:"id"`
	DriverID  string  `json:"driver_id"`
	Status    string  `json:"status"`
	Price     float64 `json:"price"`
	SeatsLeft int     `json:"seats_left"`
}

// GetSnapshot handles GET /v1/rides/:id/snapshot
func (h *RideHandler) GetSnapshot(c *gin.Context) {
	snapshot, err := h.rideService.GetRideSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, SnapshotResponse{
		ID:        snapshot.ID,
		DriverID:  snapshot.DriverID,
		Status:    snapshot.Status,
		Price:     snapshot.Price,
		SeatsLeft: snapshot.SeatsLeft,
	})
}

// GetAll handles GET /v1/rides
func (h *RideHandler) GetAll(c *gin.Context) {
	rides, err := h.rideService.GetAllRides(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	var response []RideResponse
	for _, ride := range rides {
		response = append(response, rideResponse(ride))
	}

	c.JSON(http.StatusOK, response)
}

// ListRequests handles GET /v1/rides/:id/requests
func (h *RideHandler) ListRequests(c *gin.Context) {
	requests, err := h.rideService.ListRequests(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var response []RequestResponse
	for _, req := range requests {
		response = append(response, requestResponse(req))
	}

	c.JSON(http.StatusOK, response)
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	result, err := h.rideService.CancelRide(c.Request.Context(), c.Param("id"), middleware.ActorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CancelRideResponse{
		Ride:       rideResponse(result.Ride),
		Assessment: assessmentResponse(result.Assessment),
	})
}

// GenerateStartCode handles POST /v1/rides/:id/start-code
func (h *RideHandler) GenerateStartCode(c *gin.Context) {
	rideID := c.Param("id")

	code, err := h.verificationService.GenerateStartCode(c.Request.Context(), rideID, middleware.ActorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CodeResponse{RideID: rideID, Code: code})
}

// VerifyStart handles POST /v1/rides/:id/verify-start
func (h *RideHandler) VerifyStart(c *gin.Context) {
	var req VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.verificationService.VerifyStart(c.Request.Context(), c.Param("id"), middleware.ActorID(c), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, rideResponse(ride))
}

// GenerateCompletionCode handles POST /v1/rides/:id/completion-code
func (h *RideHandler) GenerateCompletionCode(c *gin.Context) {
	rideID := c.Param("id")

	code, err := h.verificationService.GenerateCompletionCode(c.Request.Context(), rideID, middleware.ActorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CodeResponse{RideID: rideID, Code: code})
}

// VerifyCompletion handles POST /v1/rides/:id/verify-completion
func (h *RideHandler) VerifyCompletion(c *gin.Context) {
	var req VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.verificationService.VerifyCompletion(
		c.Request.Context(), c.Param("id"), middleware.ActorID(c), req.Code, req.RequestID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, VerifyCompletionResponse{
		Request:       requestResponse(result.Request),
		RideCompleted: result.RideCompleted,
	})
}
