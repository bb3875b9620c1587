package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// queueStatus reflects live pipeline state: counters and the most recent
// dead letters.
func (s *server) queueStatus(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := s.ledger.GetStats(ctx)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"status":    "error",
			"queue":     "error",
			"timestamp": time.Now().UTC(),
			"error":     err.Error(),
		})
		return
	}

	dead, err := s.ledger.ListDead(ctx, 5)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"queue":             "connected",
		"timestamp":         time.Now().UTC(),
		"stats":             stats,
		"failedJobsDetails": dead,
	})
}

// queueClearFailed drops all parked dead letters. They never re-enter the
// queue; this is purely operator housekeeping.
func (s *server) queueClearFailed(c *gin.Context) {
	if err := s.ledger.ClearDead(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"message":   "All failed jobs cleared",
		"timestamp": time.Now().UTC(),
	})
}
