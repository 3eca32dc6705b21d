package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JonMunkholm/dataghost/internal/core"
	"github.com/JonMunkholm/dataghost/internal/logging"
	"github.com/JonMunkholm/dataghost/internal/session"
	mw "github.com/JonMunkholm/dataghost/internal/web/middleware"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 64 << 10
)

// socketCommand is a client frame on the session socket.
type socketCommand struct {
	Type     string `json:"type"` // "question" or "draft"
	Question string `json:"question,omitempty"`
	Draft    string `json:"draft,omitempty"`
}

// socketError reports a rejected command back over the socket.
type socketError struct {
	Type    string `json:"type"` // always "error"
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// handleSessionSocket streams the same events as handleSessionEvents over a
// WebSocket and accepts questions and drafts from the client.
func (s *Server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	c, r, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	logger := logging.FromContext(r.Context())

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return mw.OriginAllowed(s.cfg.Security.CORSOrigins, r.Header.Get("Origin"))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	// Replies to commands go through the writer loop; gorilla allows one
	// concurrent writer.
	replies := make(chan socketError, 8)
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		s.readSocket(conn, c, replies)
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}

		case reply := <-replies:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(reply); err != nil {
				return
			}

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-readerDone:
			return
		}
	}
}

// readSocket handles client commands until the connection fails.
func (s *Server) readSocket(conn *websocket.Conn, c *session.Controller, replies chan<- socketError) {
	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd socketCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			replyError(replies, errBadRequestBody)
			continue
		}

		switch cmd.Type {
		case "question":
			if err := c.SubmitQuestion(cmd.Question); err != nil {
				replyError(replies, err)
			}
		case "draft":
			c.SetDraft(cmd.Draft)
		default:
			replyError(replies, errBadRequestBody)
		}
	}
}

// replyError queues err for the writer loop, dropping it if the client is
// not keeping up.
func replyError(replies chan<- socketError, err error) {
	msg := core.MapError(err)
	select {
	case replies <- socketError{Type: "error", Message: msg.Message, Action: msg.Action, Code: msg.Code}:
	default:
	}
}
