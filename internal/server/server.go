package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Scrimzay/botarena/internal/botstore"
	"github.com/Scrimzay/botarena/internal/types"
	"github.com/Scrimzay/botarena/internal/world"
)

// Game is the read side of the running engine.
type Game interface {
	State() world.State
	BotError(botID string) (string, bool)
	Tick() uint64
}

type BotStore interface {
	Get(id string) (types.BotCode, bool)
	Submit(username string, userID int64, code string) (types.BotCode, error)
}

func SetupRouter(game Game, bots BotStore, broadcaster *Broadcaster) *gin.Engine {
	r := gin.Default()

	api := r.Group("/api")
	api.GET("/state", stateHandler(game))
	api.POST("/bots", submitHandler(bots))
	api.GET("/bots/:id/error", botErrorHandler(game, bots))

	r.GET("/ws", HandleWebsocket(broadcaster))

	return r
}

func stateHandler(game Game) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, game.State())
	}
}

type submitRequest struct {
	Username string `json:"username" binding:"required"`
	UserID   int64  `json:"userId"`
	Code     string `json:"code" binding:"required"`
}

func submitHandler(bots BotStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		bot, err := bots.Submit(req.Username, req.UserID, req.Code)
		switch {
		case errors.Is(err, botstore.ErrInvalidSubmission):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case err != nil:
			log.Printf("server: submit for %s failed: %v", req.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save bot"})
			return
		}

		log.Printf("server: bot %s submitted by %s", bot.ID, bot.Username)
		c.JSON(http.StatusCreated, gin.H{
			"id":       bot.ID,
			"username": bot.Username,
			"userId":   bot.UserID,
		})
	}
}

// botErrorHandler shows a bot's last error to its owner only.
func botErrorHandler(game Game, bots BotStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		userID, err := strconv.ParseInt(c.Query("userId"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
			return
		}

		bot, ok := bots.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
			return
		}
		if bot.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your bot"})
			return
		}

		msg, ok := game.BotError(id)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"botId": id, "error": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"botId": id, "error": msg})
	}
}
