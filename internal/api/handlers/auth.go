package handlers

import (
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/wordrush/backend/internal/accounts"
	"github.com/wordrush/backend/internal/config"
	"github.com/wordrush/backend/internal/middleware"
	"github.com/wordrush/backend/internal/models"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates a user and returns a session token.
func Register(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentials
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
			return
		}
		username := strings.TrimSpace(req.Username)
		if !usernamePattern.MatchString(username) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username must be 3-20 characters, letters, digits or underscore"})
			return
		}
		if len(req.Password) < 8 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("[AUTH] hash password: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		user, err := accounts.CreateUser(db, username, string(hash))
		if err != nil {
			if errors.Is(err, accounts.ErrUsernameTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
				return
			}
			log.Printf("[AUTH] create user %s: %v", username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		issueSession(c, cfg, user)
	}
}

// Login verifies credentials and returns a session token.
func Login(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentials
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
			return
		}

		user, err := accounts.GetByUsername(db, strings.TrimSpace(req.Username))
		if err != nil {
			// Same response for unknown user and bad password.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		issueSession(c, cfg, user)
	}
}

func issueSession(c *gin.Context, cfg *config.Config, user *models.User) {
	token, err := middleware.IssueToken(cfg.AuthTokenSecret, user.ID, user.Username, cfg.AuthTokenTTL)
	if err != nil {
		log.Printf("[AUTH] sign token for user %d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"elo":      user.Elo,
		},
	})
}
