package assist

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carelink-backend/internal/service/assist"
	"carelink-backend/pkg/response"
)

// Handler handles assist HTTP requests
type Handler struct {
	assistService *assist.Service
}

// NewHandler creates a new assist handler
func NewHandler(assistService *assist.Service) *Handler {
	return &Handler{assistService: assistService}
}

// RegisterRoutes mounts the assist endpoint on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/assist", h.Generate)
}

// GenerateRequest is the request body of POST /v1/assist
type GenerateRequest struct {
	Prompt      string   `json:"prompt" binding:"required"`
	Context     []string `json:"context,omitempty"`
	ExtractJSON bool     `json:"extract_json,omitempty"`
}

// Generate proxies one prompt to the collaborator
// POST /v1/assist
func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	resp, err := h.assistService.Generate(c.Request.Context(), &assist.Request{
		Prompt:      req.Prompt,
		Context:     req.Context,
		ExtractJSON: req.ExtractJSON,
	})
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	response.Success(c, http.StatusOK, resp)
}
