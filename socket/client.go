package socket

import (
	"encoding/json"
	"net/http"
	"time"

	"typesync/pkg/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin allows the editor frontend's dev server to connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Client struct {
	Hub   *Hub
	Conn  *websocket.Conn
	DocID string
	Email string
	Send  chan []byte
}

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, email string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		logger.Sugar.Error("Missing docId")
		conn.Close()
		return
	}

	client := &Client{
		Hub:   hub,
		Conn:  conn,
		DocID: docID,
		Email: email,
		Send:  make(chan []byte, 256),
	}

	client.Hub.Register <- client

	// Start reading and writing in separate goroutines
	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			continue
		}

		// Set server-authoritative fields to prevent spoofing.
		msg.DocID = c.DocID
		msg.UserEmail = c.Email

		if msg.Type != UpdateType {
			continue
		}

		c.Hub.Broadcast <- msg
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second) // Send ping every 30s
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.Conn.WriteMessage(websocket.TextMessage, message)
		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		}
	}
}
