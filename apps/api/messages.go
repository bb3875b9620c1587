package main

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mahaj/chatwire/pkg/db"
	"github.com/mahaj/chatwire/pkg/model"
)

type historyResponse struct {
	Messages   []model.Message `json:"messages"`
	HasMore    bool            `json:"hasMore"`
	NextCursor int64           `json:"nextCursor,omitempty"`
}

func (s *server) history(c *gin.Context) {
	roomID := c.Param("roomId")

	if _, err := s.rooms.Lookup(roomID); err != nil {
		if errors.Is(err, db.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up room"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	cursor, _ := strconv.ParseInt(c.Query("cursor"), 10, 64)

	messages, err := s.messages.History(roomID, limit, cursor)
	if err != nil {
		log.Printf("Failed to fetch history for room %s: %v", roomID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve history"})
		return
	}

	resp := historyResponse{Messages: messages, HasMore: len(messages) == limit}
	if len(messages) > 0 {
		resp.NextCursor = messages[len(messages)-1].ID
	}
	c.JSON(http.StatusOK, resp)
}

type editMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// editMessage updates the row and fans the edited message out to the room.
func (s *server) editMessage(c *gin.Context) {
	roomID := c.Param("roomId")
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	msg, err := s.messages.Get(roomID, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	claims := currentClaims(c)
	if msg.UserID != claims.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the message author"})
		return
	}

	if err := s.messages.Edit(roomID, id, req.Content); err != nil {
		log.Printf("Failed to edit message %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to edit message"})
		return
	}

	msg.Content = req.Content
	if room, err := s.rooms.Lookup(roomID); err == nil {
		msg.Room = model.MessageRoom{ID: room.ID, Name: room.Name}
	}
	if err := s.broadcaster.Publish(c.Request.Context(), roomID, model.EventMessageEdited, msg); err != nil {
		log.Printf("Failed to announce edit of message %d: %v", id, err)
	}

	c.JSON(http.StatusOK, msg)
}

// deleteMessage removes the row and fans the deletion out to the room.
func (s *server) deleteMessage(c *gin.Context) {
	roomID := c.Param("roomId")
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	msg, err := s.messages.Get(roomID, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	claims := currentClaims(c)
	if msg.UserID != claims.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the message author"})
		return
	}

	if err := s.messages.Delete(roomID, id); err != nil {
		log.Printf("Failed to delete message %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
		return
	}

	deleted := model.MessageDeletedData{ID: strconv.FormatInt(id, 10)}
	if err := s.broadcaster.Publish(c.Request.Context(), roomID, model.EventMessageDeleted, deleted); err != nil {
		log.Printf("Failed to announce deletion of message %d: %v", id, err)
	}

	c.Status(http.StatusNoContent)
}
