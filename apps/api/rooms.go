package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mahaj/chatwire/pkg/model"
)

type createRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

// createRoom persists the room and announces it to every connected client,
// since any authenticated user may see new rooms in their list.
func (s *server) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	claims := currentClaims(c)
	room, err := s.rooms.Create(req.Name, claims.UserID)
	if err != nil {
		log.Printf("Failed to create room %q: %v", req.Name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	newRoom := model.NewRoomData{ID: room.ID, Name: room.Name, UserID: claims.UserID}
	if err := s.broadcaster.PublishGlobal(c.Request.Context(), model.EventNewRoom, newRoom); err != nil {
		// The room exists either way; clients pick it up on next list.
		log.Printf("Failed to announce new room %s: %v", room.ID, err)
	}

	c.JSON(http.StatusCreated, room)
}

func (s *server) listRooms(c *gin.Context) {
	rooms, err := s.rooms.List()
	if err != nil {
		log.Printf("Failed to list rooms: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (s *server) roomUsers(c *gin.Context) {
	roomID := c.Param("roomId")

	users, err := s.presence.ListEntries(c.Request.Context(), roomID)
	if err != nil {
		log.Printf("Failed to fetch presence for room %s: %v", roomID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch presence"})
		return
	}
	c.JSON(http.StatusOK, users)
}

func (s *server) roomCount(c *gin.Context) {
	roomID := c.Param("roomId")

	count, err := s.presence.CountEntries(c.Request.Context(), roomID)
	if err != nil {
		log.Printf("Failed to count presence for room %s: %v", roomID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count presence"})
		return
	}
	c.JSON(http.StatusOK, model.OnlineCountData{RoomID: roomID, Count: count})
}

// markRead stamps the caller's read mark for the room, so unread badges
// clear when a room is opened.
func (s *server) markRead(c *gin.Context) {
	roomID := c.Param("roomId")
	claims := currentClaims(c)

	if err := s.reads.MarkRead(claims.UserID, roomID, time.Now().UTC()); err != nil {
		log.Printf("Failed to mark read for %s in room %s: %v", claims.UserID, roomID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}

	last, _ := s.reads.LastRead(claims.UserID, roomID)
	c.JSON(http.StatusOK, gin.H{"roomId": roomID, "lastRead": last})
}

func (s *server) presenceDebug(c *gin.Context) {
	rooms, err := s.presence.AllRooms(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	info, err := s.presence.GetInfo(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms, "keys": info})
}
