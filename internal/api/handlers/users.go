package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/wordrush/backend/internal/accounts"
	"github.com/wordrush/backend/internal/middleware"
)

// Me returns the authenticated user's profile.
func Me(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetInt(middleware.ContextUserID)
		user, err := accounts.GetByID(db, userID)
		if err != nil {
			log.Printf("[API] load user %d: %v", userID, err)
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// Leaderboard returns the top players by rating.
func Leaderboard(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		users, err := accounts.Leaderboard(db, limit)
		if err != nil {
			log.Printf("[API] leaderboard: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"leaderboard": users})
	}
}

// RecentMatches returns the authenticated user's match history.
func RecentMatches(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetInt(middleware.ContextUserID)
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		matches, err := accounts.RecentMatches(db, userID, limit)
		if err != nil {
			log.Printf("[API] matches for user %d: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"matches": matches})
	}
}
