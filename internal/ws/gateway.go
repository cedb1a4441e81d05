package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/wordrush/backend/internal/accounts"
	"github.com/wordrush/backend/internal/game"
	"github.com/wordrush/backend/internal/matchmaking"
	"github.com/wordrush/backend/internal/middleware"
	"github.com/wordrush/backend/internal/rating"
)

// Gateway authenticates WebSocket connections and routes client events to
// the matchmaking queue and the match manager.
type Gateway struct {
	hub    *Hub
	db     *sqlx.DB
	queue  *matchmaking.Queue
	secret string
}

func NewGateway(hub *Hub, db *sqlx.DB, queue *matchmaking.Queue, secret string) *Gateway {
	g := &Gateway{hub: hub, db: db, queue: queue, secret: secret}
	hub.onConnect = g.handleConnect
	hub.onDisconnect = g.handleDisconnect
	return g
}

// PlayerID maps a user id to the realtime player identity.
func PlayerID(userID int) string {
	return fmt.Sprintf("u:%d", userID)
}

// Handle upgrades an HTTP request to a WebSocket connection. The token rides
// in the query string because browsers cannot set headers on WebSocket
// handshakes. A connection without a token is allowed through the upgrade but
// gameplay events answer NOT_AUTHENTICATED until it reconnects with one; a
// token that fails to parse is rejected outright.
func (g *Gateway) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
	}

	client := &Client{
		send:    make(chan []byte, 256),
		gateway: g,
	}
	if token != "" {
		claims, err := middleware.ParseToken(g.secret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "NOT_AUTHENTICATED"})
			return
		}
		client.playerID = PlayerID(claims.UserID)
		client.username = claims.Username
		client.userID = claims.UserID
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}
	client.conn = conn

	go client.writePump()
	go client.readPump()
}

func (g *Gateway) handleConnect(playerID string) {
	game.Manager.HandleReconnect(playerID)
}

func (g *Gateway) handleDisconnect(playerID string) {
	g.queue.Cancel(playerID)
	game.Manager.HandleDisconnect(playerID)
}

type matchRef struct {
	GameID string `json:"gameId"`
}

type guessData struct {
	GameID string `json:"gameId"`
	Word   string `json:"word"`
}

func (g *Gateway) dispatch(c *Client, env Envelope) {
	if env.Type == "register" {
		g.registerClient(c)
		return
	}
	if !c.bound {
		c.sendError("NOT_AUTHENTICATED", "register this connection first")
		return
	}

	switch env.Type {
	case "matchmaking:start":
		g.startMatchmaking(c)

	case "matchmaking:cancel":
		// No-op when the player is not queued.
		g.queue.Cancel(c.playerID)

	case "game:guess":
		var data guessData
		if err := json.Unmarshal(env.Data, &data); err != nil || data.GameID == "" {
			c.sendError("INVALID_MESSAGE", "game:guess requires gameId and word")
			return
		}
		game.Manager.SubmitGuess(c.playerID, data.GameID, data.Word)

	case "game:forfeit":
		var data matchRef
		if err := json.Unmarshal(env.Data, &data); err != nil || data.GameID == "" {
			c.sendError("INVALID_MESSAGE", "game:forfeit requires gameId")
			return
		}
		game.Manager.Forfeit(c.playerID, data.GameID)

	case "game:rejoin":
		var data matchRef
		if err := json.Unmarshal(env.Data, &data); err != nil || data.GameID == "" {
			c.sendError("INVALID_MESSAGE", "game:rejoin requires gameId")
			return
		}
		game.Manager.Rejoin(c.playerID, data.GameID)

	default:
		c.sendError("UNKNOWN_EVENT", fmt.Sprintf("unknown event type %q", env.Type))
	}
}

// registerClient binds the connection to the identity proven at handshake.
// The payload is ignored; the token already named the player.
func (g *Gateway) registerClient(c *Client) {
	if c.playerID == "" {
		c.sendError("NOT_AUTHENTICATED", "connect with a token before registering")
		return
	}
	if c.bound {
		return
	}
	c.bound = true
	g.hub.register <- c
}

func (g *Gateway) startMatchmaking(c *Client) {
	if _, busy := game.Manager.MatchForPlayer(c.playerID); busy {
		c.sendError("ALREADY_IN_MATCH", "finish or forfeit the current match first")
		return
	}

	elo := rating.DefaultRating
	if g.db != nil {
		u, err := accounts.GetByID(g.db, c.userID)
		if err != nil {
			log.Printf("[WS] load user %d for matchmaking: %v", c.userID, err)
			c.sendError("INTERNAL", "could not load profile")
			return
		}
		elo = u.Elo
	}

	err := g.queue.Enqueue(game.PlayerInfo{
		ID:          c.playerID,
		UserID:      int64(c.userID),
		DisplayName: c.username,
		Rating:      elo,
	})
	if errors.Is(err, matchmaking.ErrAlreadyQueued) {
		c.sendError("ALREADY_QUEUED", "already searching for a match")
	}
}
