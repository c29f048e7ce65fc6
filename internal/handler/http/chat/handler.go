package chat

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"carelink-backend/internal/domain"
	"carelink-backend/internal/service/chat"
	"carelink-backend/pkg/response"
)

// Handler handles chat HTTP requests
type Handler struct {
	chatService *chat.Service
}

// NewHandler creates a new chat handler
func NewHandler(chatService *chat.Service) *Handler {
	return &Handler{chatService: chatService}
}

// RegisterRoutes mounts the chat endpoints on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/messages", h.SendMessage)
	rg.GET("/messages", h.GetMessages)
}

// GetMessagesQuery represents query parameters for listing messages
type GetMessagesQuery struct {
	With      string `form:"with" binding:"required"`
	Limit     int    `form:"limit"`
	Bucket    int    `form:"bucket"`
	PageState string `form:"page_state"` // base64 encoded cursor
}

// MessagesPage is the paginated history response
type MessagesPage struct {
	Messages      []*domain.Message `json:"messages"`
	NextPageState string            `json:"next_page_state,omitempty"`
}

// SendMessage handles sending a new message
// POST /v1/messages
func (h *Handler) SendMessage(c *gin.Context) {
	var req domain.MessageCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	senderID, ok := callerIdentity(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}

	message, err := h.chatService.SendMessage(c.Request.Context(), senderID, &req)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidMessage) {
			response.ValidationError(c, "invalid message")
			return
		}
		response.InternalError(c, "failed to send message")
		return
	}

	response.Success(c, http.StatusCreated, message)
}

// GetMessages retrieves the caller's conversation with one peer
// GET /v1/messages?with=<identity>&limit=20&bucket=20260831&page_state=...
func (h *Handler) GetMessages(c *gin.Context) {
	var query GetMessagesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	callerID, ok := callerIdentity(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}

	// Without an explicit bucket the recent history is returned in one
	// shot; with one, history pages through that day's partition.
	if query.Bucket == 0 && query.PageState == "" {
		messages, err := h.chatService.GetRecentMessages(c.Request.Context(), callerID, query.With, query.Limit)
		if err != nil {
			response.InternalError(c, "failed to fetch messages")
			return
		}
		response.Success(c, http.StatusOK, MessagesPage{Messages: messages})
		return
	}

	var pageState []byte
	if query.PageState != "" {
		decoded, err := base64.StdEncoding.DecodeString(query.PageState)
		if err != nil {
			response.ValidationError(c, "invalid page_state")
			return
		}
		pageState = decoded
	}

	messages, next, err := h.chatService.GetConversationPage(
		c.Request.Context(), callerID, query.With, query.Bucket, query.Limit, pageState)
	if err != nil {
		response.InternalError(c, "failed to fetch messages")
		return
	}

	page := MessagesPage{Messages: messages}
	if len(next) > 0 {
		page.NextPageState = base64.StdEncoding.EncodeToString(next)
	}
	response.Success(c, http.StatusOK, page)
}

func callerIdentity(c *gin.Context) (string, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		return "", false
	}
	userID, ok := val.(uuid.UUID)
	if !ok {
		return "", false
	}
	return userID.String(), true
}
