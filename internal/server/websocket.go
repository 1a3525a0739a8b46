package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type clientAction struct {
	Action string `json:"action"`
}

// HandleWebsocket streams state to the client. The only client message
// understood is {"action":"state"}, which asks for an immediate snapshot.
func HandleWebsocket(broadcaster *Broadcaster) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Println("WS upgrade error:", err)
			return
		}

		if !broadcaster.Register(conn) {
			conn.Close()
			return
		}

		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				broadcaster.Unregister(conn)
				break
			}
			if msgType != websocket.TextMessage {
				continue
			}

			var action clientAction
			if err := json.Unmarshal(msg, &action); err != nil {
				log.Println("JSON parse error:", err)
				continue
			}

			switch action.Action {
			case "state":
				if err := broadcaster.SendState(conn); err != nil {
					log.Println("State send error:", err)
					broadcaster.Unregister(conn)
					return
				}
			}
		}
	}
}
