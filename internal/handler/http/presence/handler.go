package presence

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"carelink-backend/internal/domain"
	"carelink-backend/pkg/response"
)

// Store reads mirrored presence state
type Store interface {
	Get(ctx context.Context, identity string) (*domain.Presence, error)
	OnlineIdentities(ctx context.Context) ([]string, error)
}

// Handler handles presence HTTP requests
type Handler struct {
	store Store
}

// NewHandler creates a new presence handler
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the presence endpoints on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/presence", h.ListOnline)
	rg.GET("/presence/:identity", h.GetPresence)
}

// GetPresence returns the online state of one identity
// GET /v1/presence/:identity
func (h *Handler) GetPresence(c *gin.Context) {
	identity := c.Param("identity")
	if identity == "" {
		response.ValidationError(c, "identity required")
		return
	}

	p, err := h.store.Get(c.Request.Context(), identity)
	if err != nil {
		response.InternalError(c, "failed to read presence")
		return
	}
	response.Success(c, http.StatusOK, p)
}

// ListOnline returns every currently online identity
// GET /v1/presence
func (h *Handler) ListOnline(c *gin.Context) {
	online, err := h.store.OnlineIdentities(c.Request.Context())
	if err != nil {
		response.InternalError(c, "failed to list presence")
		return
	}
	if online == nil {
		online = []string{}
	}
	response.Success(c, http.StatusOK, gin.H{"online": online})
}
