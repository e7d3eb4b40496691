package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/app"
	"github.com/parleychat/parley/internal/domain"
)

type lastMessagesRequest struct {
	RoomIDs       []string `json:"roomIds"`
	LastMessageID uint64   `json:"lastMessageId"`
}

// handleLastMessages serves the catch-up query: every persisted message in
// the requested rooms with an id above the client's last seen one. A store
// failure is a plain error response, never a partial list.
func handleLastMessages(coord *app.Coordinator, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req lastMessagesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		msgs, err := coord.CatchUp(ctx, req.RoomIDs, req.LastMessageID)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("catch-up failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch messages"})
			return
		}
		if msgs == nil {
			msgs = []domain.Message{}
		}
		c.JSON(http.StatusOK, msgs)
	}
}

func handleRooms(coord *app.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": coord.Rooms.Known()})
	}
}
