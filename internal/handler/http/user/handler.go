package user

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"carelink-backend/internal/domain"
	"carelink-backend/internal/repository/cockroach"
	"carelink-backend/pkg/response"
)

// Store is the profile lookup surface backing the handler
type Store interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	ArePaired(ctx context.Context, a, b uuid.UUID) (bool, error)
	SetPairedWith(ctx context.Context, userID uuid.UUID, partner *uuid.UUID) error
}

// Handler handles user profile HTTP requests
type Handler struct {
	users Store
}

// NewHandler creates a new user handler
func NewHandler(users Store) *Handler {
	return &Handler{users: users}
}

// RegisterRoutes mounts the user endpoints on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/users/:userID", h.GetUser)
	rg.GET("/users/:userID/paired", h.CheckPairing)
	rg.PUT("/users/pair", h.Pair)
	rg.DELETE("/users/pair", h.Unpair)
}

// GetUser returns one user profile
// GET /v1/users/:userID
func (h *Handler) GetUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		response.ValidationError(c, "invalid user id")
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, cockroach.ErrUserNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		response.InternalError(c, "failed to get user")
		return
	}

	response.Success(c, http.StatusOK, user)
}

// CheckPairing reports whether the caller and :userID form a care pair
// GET /v1/users/:userID/paired
func (h *Handler) CheckPairing(c *gin.Context) {
	otherID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		response.ValidationError(c, "invalid user id")
		return
	}

	callerID, ok := callerIdentity(c)
	if !ok {
		return
	}

	paired, err := h.users.ArePaired(c.Request.Context(), callerID, otherID)
	if err != nil {
		response.InternalError(c, "failed to check pairing")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paired": paired})
}

// PairRequest names the partner to link the caller with
type PairRequest struct {
	PartnerID uuid.UUID `json:"partner_id" binding:"required"`
}

// Pair links the caller and the named partner in both directions
// PUT /v1/users/pair
func (h *Handler) Pair(c *gin.Context) {
	callerID, ok := callerIdentity(c)
	if !ok {
		return
	}

	var req PairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "partner_id is required")
		return
	}
	if req.PartnerID == callerID {
		response.ValidationError(c, "cannot pair with yourself")
		return
	}

	ctx := c.Request.Context()
	if err := h.users.SetPairedWith(ctx, callerID, &req.PartnerID); err != nil {
		pairingError(c, err)
		return
	}
	if err := h.users.SetPairedWith(ctx, req.PartnerID, &callerID); err != nil {
		pairingError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paired": true})
}

// Unpair clears the caller's care pairing
// DELETE /v1/users/pair
func (h *Handler) Unpair(c *gin.Context) {
	callerID, ok := callerIdentity(c)
	if !ok {
		return
	}

	if err := h.users.SetPairedWith(c.Request.Context(), callerID, nil); err != nil {
		pairingError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paired": false})
}

func callerIdentity(c *gin.Context) (uuid.UUID, bool) {
	callerVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "not authenticated")
		return uuid.Nil, false
	}
	callerID, ok := callerVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "invalid caller id")
		return uuid.Nil, false
	}
	return callerID, true
}

func pairingError(c *gin.Context, err error) {
	if errors.Is(err, cockroach.ErrUserNotFound) {
		response.NotFound(c, "user not found")
		return
	}
	response.InternalError(c, "failed to update pairing")
}
