package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"carpool/internal/domain"
	"carpool/internal/repository"
	"carpool/internal/service"
)

// UserHandler handles HTTP requests for users.
type UserHandler struct {
	userRepo repository.UserRepository
	penalty  *service.PenaltyService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userRepo repository.UserRepository, penalty *service.PenaltyService) *UserHandler {
	return &UserHandler{
		userRepo: userRepo,
		penalty:  penalty,
	}
}

// RegisterRequest is the HTTP request body for user registration.
type RegisterRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Gender     string `json:"gender"` // MALE, FEMALE
	PayerToken string `json:"payer_token"`
}

// UserResponse is the HTTP response for user data.
type UserResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Gender string `json:"gender"`
}

// StrikeResponse is the HTTP response for a user's cancellation strikes.
type StrikeResponse struct {
	UserID      string `json:"user_id"`
	Month       string `json:"month"`
	StrikeCount int    `json:"strike_count"`
}

// Register handles POST /v1/users/register
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.Name == "" || req.Phone == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "name and phone are required"})
		return
	}

	gender := domain.Gender(req.Gender)
	if gender != domain.GenderMale && gender != domain.GenderFemale {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "gender must be MALE or FEMALE"})
		return
	}

	user := &domain.User{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Phone:      req.Phone,
		Gender:     gender,
		PayerToken: req.PayerToken,
		CreatedAt:  time.Now(),
	}

	if err := h.userRepo.Create(c.Request.Context(), user); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, UserResponse{
		ID:     user.ID,
		Name:   user.Name,
		Phone:  user.Phone,
		Gender: string(user.Gender),
	})
}

// GetUser handles GET /v1/users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.userRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, UserResponse{
		ID:     user.ID,
		Name:   user.Name,
		Phone:  user.Phone,
		Gender: string(user.Gender),
	})
}

// GetAll handles GET /v1/users
func (h *UserHandler) GetAll(c *gin.Context) {
	users, err := h.userRepo.GetAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	var response []UserResponse
	for _, u := range users {
		response = append(response, UserResponse{
			ID:     u.ID,
			Name:   u.Name,
			Phone:  u.Phone,
			Gender: string(u.Gender),
		})
	}

	c.JSON(http.StatusOK, response)
}

// GetStrikes handles GET /v1/users/:id/strikes
func (h *UserHandler) GetStrikes(c *gin.Context) {
	userID := c.Param("id")

	count, err := h.penalty.GetStrikeCount(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, StrikeResponse{
		UserID:      userID,
		Month:       time.Now().UTC().Format("2006-01"),
		StrikeCount: count,
	})
}
